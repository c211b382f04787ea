package expression

// historySize bounds the mood history. Drift only ever looks at the most
// recent entry, but status reporting shows the trail.
const historySize = 3

// MoodHistory is a ring of the last few expression names, oldest first.
// Only the engine mutates it.
type MoodHistory struct {
	names []string
}

// Push appends a name, dropping the oldest entry past the bound.
func (h *MoodHistory) Push(name string) {
	h.names = append(h.names, name)
	if len(h.names) > historySize {
		h.names = h.names[len(h.names)-historySize:]
	}
}

// Last returns the most recent name, or empty if nothing was set yet.
func (h *MoodHistory) Last() string {
	if len(h.names) == 0 {
		return ""
	}
	return h.names[len(h.names)-1]
}

// Names returns a copy of the ring, oldest first.
func (h *MoodHistory) Names() []string {
	out := make([]string, len(h.names))
	copy(out, h.names)
	return out
}

// Len returns how many entries the ring holds.
func (h *MoodHistory) Len() int {
	return len(h.names)
}
