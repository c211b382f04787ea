package remote

import (
	"time"

	"github.com/wrenlabs/go-wren/pkg/arbiter"
)

// ResourceState is one arbitrated resource as the feed reports it.
type ResourceState struct {
	Held     bool   `json:"held"`
	Holder   string `json:"holder,omitempty"`
	PID      int    `json:"pid,omitempty"`
	Priority string `json:"priority,omitempty"`
	Revoked  bool   `json:"revoked,omitempty"`
	Acquired int64  `json:"acquired_ms,omitempty"`
}

// StateSnapshot is one line of the state feed and the /api/status body.
type StateSnapshot struct {
	Time       int64                    `json:"ts"`
	Resources  map[string]ResourceState `json:"resources"`
	Expression string                   `json:"expression,omitempty"`
	Mood       []string                 `json:"mood,omitempty"`
	Speaking   bool                     `json:"speaking"`
	Watchers   int                      `json:"watchers"`
}

// snapshot assembles the current view. Resources that fail to read stay
// absent rather than poisoning the whole line.
func (s *Server) snapshot() StateSnapshot {
	snap := StateSnapshot{
		Time:      time.Now().UnixMilli(),
		Resources: make(map[string]ResourceState, len(arbiter.Resources())),
		Watchers:  s.hub.ClientCount(),
	}
	for _, res := range arbiter.Resources() {
		info, held, err := s.arb.Snapshot(res)
		if err != nil {
			s.logger.Debug("resource snapshot failed", "resource", res, "error", err)
			continue
		}
		st := ResourceState{Held: held}
		if held {
			st.Holder = info.ID
			st.PID = info.PID
			st.Priority = info.Priority.String()
			st.Revoked = info.Revoked
			st.Acquired = info.Acquired.UnixMilli()
		}
		snap.Resources[string(res)] = st
	}
	if s.engine != nil {
		snap.Expression = s.engine.Current()
		snap.Mood = s.engine.History()
	}
	if s.pipe != nil {
		snap.Speaking = s.pipe.Speaking()
	}
	return snap
}
