// Package actions executes ordered symbolic action lists against the
// expression engine, the LED collar and the speaker. Per-action failures
// are logged and skipped, never aborting the rest of a sequence; the
// caller gets a summary of what actually ran.
package actions

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/wrenlabs/go-wren/pkg/expression"
)

// Kind says which hardware path a descriptor takes.
type Kind int

const (
	// KindGesture plays a one-shot gesture through the expression engine.
	KindGesture Kind = iota
	// KindVisual applies a named expression's LED pattern only.
	KindVisual
	// KindPause sleeps without holding any lease.
	KindPause
	// KindSound plays a cue from the sound bank, straight to the speaker.
	KindSound
	// KindUnknown is a token Parse could not place. It fails at
	// execution, where it is logged and skipped like any other failure.
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindGesture:
		return "gesture"
	case KindVisual:
		return "visual"
	case KindPause:
		return "pause"
	case KindSound:
		return "sound"
	}
	return "unknown"
}

// Descriptor is one parsed action.
type Descriptor struct {
	Kind  Kind
	Name  string
	Pause time.Duration
}

func (d Descriptor) String() string {
	switch d.Kind {
	case KindPause:
		return fmt.Sprintf("pause:%d", d.Pause.Milliseconds())
	case KindUnknown:
		return d.Name
	}
	return fmt.Sprintf("%s:%s", d.Kind, d.Name)
}

// Parse converts symbolic action tokens into descriptors. Tokens take
// the form name or name:param; a bare token is a gesture when the
// gesture vocabulary knows it, otherwise a sound cue. Unrecognized
// tokens still parse, into descriptors that fail at execution, so one
// bad token never aborts a list.
func Parse(tokens []string) []Descriptor {
	out := make([]Descriptor, 0, len(tokens))
	for _, tok := range tokens {
		out = append(out, parseToken(tok))
	}
	return out
}

func parseToken(tok string) Descriptor {
	tok = strings.TrimSpace(tok)
	name, param, hasParam := strings.Cut(tok, ":")

	switch strings.ToLower(name) {
	case "pause", "wait":
		ms, err := strconv.Atoi(param)
		if err != nil || ms < 0 {
			return Descriptor{Kind: KindUnknown, Name: tok}
		}
		return Descriptor{Kind: KindPause, Pause: time.Duration(ms) * time.Millisecond}
	case "gesture":
		return Descriptor{Kind: KindGesture, Name: param}
	case "visual", "led":
		return Descriptor{Kind: KindVisual, Name: param}
	case "sound", "cue":
		return Descriptor{Kind: KindSound, Name: param}
	}
	if hasParam {
		return Descriptor{Kind: KindUnknown, Name: tok}
	}
	if expression.KnownGesture(name) {
		return Descriptor{Kind: KindGesture, Name: name}
	}
	if name == "" {
		return Descriptor{Kind: KindUnknown, Name: tok}
	}
	return Descriptor{Kind: KindSound, Name: name}
}
