package music

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidParams is returned when a parameter set is incomplete or out of
// its domain.
var ErrInvalidParams = errors.New("invalid parameters")

const (
	MinTempo = 40
	MaxTempo = 240
)

type Scale string

const (
	Major Scale = "major"
	Minor Scale = "minor"
)

var scales = []Scale{Major, Minor}

func (s Scale) Valid() bool {
	for _, sc := range scales {
		if s == sc {
			return true
		}
	}
	return false
}

func ParseScale(s string) (Scale, error) {
	v := Scale(strings.ToLower(strings.TrimSpace(s)))
	if v.Valid() {
		return v, nil
	}
	return "", fmt.Errorf("music: unknown scale %q: %w", s, ErrInvalidParams)
}

// Params is the set of inputs selected by the user.
type Params struct {
	Key   Key    `json:"key"`
	Scale Scale  `json:"scale"`
	Tempo int    `json:"tempo"`
	Genre string `json:"genre"`
}

func (p Params) String() string {
	return fmt.Sprintf("%s %s %d BPM %s", p.Key, p.Scale, p.Tempo, p.Genre)
}

// Validate checks that every field is present and inside its domain.
func (p Params) Validate() error {
	if !p.Key.Valid() {
		return fmt.Errorf("music: invalid key %q: %w", p.Key, ErrInvalidParams)
	}
	if !p.Scale.Valid() {
		return fmt.Errorf("music: invalid scale %q: %w", p.Scale, ErrInvalidParams)
	}
	if p.Tempo < MinTempo || p.Tempo > MaxTempo {
		return fmt.Errorf("music: tempo %d out of range [%d, %d]: %w", p.Tempo, MinTempo, MaxTempo, ErrInvalidParams)
	}
	if strings.TrimSpace(p.Genre) == "" {
		return fmt.Errorf("music: genre is empty: %w", ErrInvalidParams)
	}
	return nil
}

// Query returns the parameters as a flat string map.
func (p Params) Query() map[string]string {
	return map[string]string{
		"key":   string(p.Key),
		"scale": string(p.Scale),
		"tempo": strconv.Itoa(p.Tempo),
		"genre": p.Genre,
	}
}

// ParseParams builds a parameter set from raw string values.
func ParseParams(key, scale, tempo, genre string) (Params, error) {
	k, err := ParseKey(key)
	if err != nil {
		return Params{}, err
	}
	s, err := ParseScale(scale)
	if err != nil {
		return Params{}, err
	}
	t, err := strconv.Atoi(strings.TrimSpace(tempo))
	if err != nil {
		return Params{}, fmt.Errorf("music: invalid tempo %q: %w", tempo, ErrInvalidParams)
	}
	p := Params{Key: k, Scale: s, Tempo: t, Genre: strings.TrimSpace(genre)}
	if err := p.Validate(); err != nil {
		return Params{}, err
	}
	return p, nil
}
