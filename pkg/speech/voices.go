package speech

import (
	"embed"
	"fmt"
	"os"
	"sort"

	"github.com/goccy/go-yaml"
)

//go:embed data/voices.yaml
var embeddedVoices embed.FS

// VoiceProfile shapes how an utterance sounds for one emotion. Speed and
// volume are multipliers against the neutral voice; pitch is in semitones.
type VoiceProfile struct {
	Speed          float64 `yaml:"speed"`
	Volume         float64 `yaml:"volume"`
	PitchSemitones float64 `yaml:"pitch_semitones"`
}

// NeutralProfile is the identity transform.
func NeutralProfile() VoiceProfile {
	return VoiceProfile{Speed: 1, Volume: 1}
}

// Validate rejects profiles outside the range the transform chain handles
// gracefully.
func (p VoiceProfile) Validate() error {
	if p.Speed < 0.25 || p.Speed > 4 {
		return fmt.Errorf("voice profile: speed %.2f outside [0.25, 4]", p.Speed)
	}
	if p.Volume < 0 || p.Volume > 4 {
		return fmt.Errorf("voice profile: volume %.2f outside [0, 4]", p.Volume)
	}
	if p.PitchSemitones < -24 || p.PitchSemitones > 24 {
		return fmt.Errorf("voice profile: pitch %.1f semitones outside [-24, 24]", p.PitchSemitones)
	}
	return nil
}

// neutral reports whether the profile would leave audio untouched.
func (p VoiceProfile) neutral() bool {
	return p.Speed == 1 && p.Volume == 1 && p.PitchSemitones == 0
}

// VoiceTable maps emotion tags to voice profiles. Immutable after load.
type VoiceTable struct {
	profiles map[string]VoiceProfile
}

type voiceFile struct {
	Voices map[string]VoiceProfile `yaml:"voices"`
}

// LoadVoiceTable parses and validates a voice table. A bad profile fails
// the whole load.
func LoadVoiceTable(raw []byte) (*VoiceTable, error) {
	var file voiceFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("voice table: %w", err)
	}
	if len(file.Voices) == 0 {
		return nil, fmt.Errorf("voice table: no voices defined")
	}
	for tag, p := range file.Voices {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("voice table: %s: %w", tag, err)
		}
	}
	return &VoiceTable{profiles: file.Voices}, nil
}

// LoadBuiltinVoices loads the voice set Wren ships with.
func LoadBuiltinVoices() (*VoiceTable, error) {
	raw, err := embeddedVoices.ReadFile("data/voices.yaml")
	if err != nil {
		return nil, fmt.Errorf("voice table: read embedded: %w", err)
	}
	return LoadVoiceTable(raw)
}

// LoadVoiceFile loads a custom voice table from disk.
func LoadVoiceFile(path string) (*VoiceTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("voice table: %w", err)
	}
	return LoadVoiceTable(raw)
}

// Lookup returns the profile for an emotion tag. Unknown tags get the
// neutral profile, never an error; an unstyled voice beats a mute bird.
func (t *VoiceTable) Lookup(tag string) VoiceProfile {
	if t != nil {
		if p, ok := t.profiles[tag]; ok {
			return p
		}
	}
	return NeutralProfile()
}

// Has reports whether the table defines a profile for tag.
func (t *VoiceTable) Has(tag string) bool {
	_, ok := t.profiles[tag]
	return ok
}

// Names returns the defined emotion tags, sorted.
func (t *VoiceTable) Names() []string {
	out := make([]string, 0, len(t.profiles))
	for tag := range t.profiles {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}
