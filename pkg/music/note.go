package music

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Key is one of the twelve pitch classes, spelled with sharps.
type Key string

var names = []string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

var flats = map[string]string{
	"DB": "C#",
	"EB": "D#",
	"GB": "F#",
	"AB": "G#",
	"BB": "A#",
}

// Keys returns the twelve pitch classes in chromatic order.
func Keys() []Key {
	keys := make([]Key, len(names))
	for i, n := range names {
		keys[i] = Key(n)
	}
	return keys
}

func (k Key) Valid() bool {
	return k.index() >= 0
}

func (k Key) index() int {
	for i, n := range names {
		if string(k) == n {
			return i
		}
	}
	return -1
}

// ParseKey normalizes a pitch class name. Flat spellings are converted to
// their sharp equivalent.
func ParseKey(s string) (Key, error) {
	v := strings.ToUpper(strings.TrimSpace(s))
	if f, ok := flats[v]; ok {
		v = f
	}
	k := Key(v)
	if !k.Valid() {
		return "", fmt.Errorf("music: unknown key %q: %w", s, ErrInvalidParams)
	}
	return k, nil
}

// Note is a pitch in scientific notation, C4 being MIDI note 60.
type Note struct {
	Key    Key
	Octave int
}

func NewNote(k Key, octave int) Note {
	return Note{Key: k, Octave: octave}
}

func (n Note) String() string {
	return fmt.Sprintf("%s%d", n.Key, n.Octave)
}

func (n Note) MarshalText() ([]byte, error) {
	return []byte(n.String()), nil
}

func (n *Note) UnmarshalText(b []byte) error {
	v, err := ParseNote(string(b))
	if err != nil {
		return err
	}
	*n = v
	return nil
}

// MIDI returns the MIDI note number.
func (n Note) MIDI() int {
	return 12*(n.Octave+1) + n.Key.index()
}

// Frequency returns the equal-tempered frequency with A4 at 440 Hz.
func (n Note) Frequency() float64 {
	return 440 * math.Pow(2, float64(n.MIDI()-69)/12)
}

// Transpose moves the note by the given number of semitones.
func (n Note) Transpose(semitones int) Note {
	return fromMIDI(n.MIDI() + semitones)
}

func fromMIDI(m int) Note {
	octave := m/12 - 1
	idx := m % 12
	if idx < 0 {
		idx += 12
		octave--
	}
	return Note{Key: Key(names[idx]), Octave: octave}
}

// ParseNote parses names like "C4", "F#3" or "Eb5".
func ParseNote(s string) (Note, error) {
	s = strings.TrimSpace(s)
	i := strings.IndexFunc(s, func(r rune) bool {
		return r == '-' || (r >= '0' && r <= '9')
	})
	if i <= 0 {
		return Note{}, fmt.Errorf("music: invalid note %q", s)
	}
	k, err := ParseKey(s[:i])
	if err != nil {
		return Note{}, err
	}
	octave, err := strconv.Atoi(s[i:])
	if err != nil {
		return Note{}, fmt.Errorf("music: invalid octave in note %q: %w", s, err)
	}
	return Note{Key: k, Octave: octave}, nil
}
