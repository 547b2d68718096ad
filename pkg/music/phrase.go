package music

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Policy derives the preview phrase for a key and scale. Implementations
// must be deterministic.
type Policy interface {
	Phrase(k Key, s Scale) []Note
}

// IntervalPolicy builds a phrase from semitone offsets above the tonic.
type IntervalPolicy struct {
	Name      string          `yaml:"name"`
	Octave    int             `yaml:"octave"`
	Intervals map[Scale][]int `yaml:"intervals"`
}

// DefaultPolicy plays tonic, third, fifth and back to the tonic.
var DefaultPolicy = &IntervalPolicy{
	Name:   "triad",
	Octave: 4,
	Intervals: map[Scale][]int{
		Major: {0, 4, 7, 0},
		Minor: {0, 3, 7, 0},
	},
}

// OctavePolicy climbs the triad and lands on the octave.
var OctavePolicy = &IntervalPolicy{
	Name:   "octave",
	Octave: 4,
	Intervals: map[Scale][]int{
		Major: {0, 4, 7, 12},
		Minor: {0, 3, 7, 12},
	},
}

func (p *IntervalPolicy) Phrase(k Key, s Scale) []Note {
	tonic := NewNote(k, p.Octave)
	intervals := p.Intervals[s]
	notes := make([]Note, 0, len(intervals))
	for _, i := range intervals {
		notes = append(notes, tonic.Transpose(i))
	}
	return notes
}

func (p *IntervalPolicy) validate() error {
	for _, s := range scales {
		if len(p.Intervals[s]) == 0 {
			return fmt.Errorf("music: policy %q has no intervals for %s", p.Name, s)
		}
	}
	for s := range p.Intervals {
		if !s.Valid() {
			return fmt.Errorf("music: policy %q has unknown scale %q", p.Name, s)
		}
	}
	return nil
}

// LoadPolicy reads an interval policy from a YAML file.
func LoadPolicy(path string) (*IntervalPolicy, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("music: couldn't read policy: %w", err)
	}
	return ParsePolicy(b)
}

func ParsePolicy(b []byte) (*IntervalPolicy, error) {
	p := &IntervalPolicy{Octave: 4}
	if err := yaml.Unmarshal(b, p); err != nil {
		return nil, fmt.Errorf("music: couldn't parse policy: %w", err)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// PolicyByName returns one of the built-in policies.
func PolicyByName(name string) (*IntervalPolicy, error) {
	switch name {
	case "", DefaultPolicy.Name:
		return DefaultPolicy, nil
	case OctavePolicy.Name:
		return OctavePolicy, nil
	default:
		return nil, fmt.Errorf("music: unknown policy %q", name)
	}
}
