package music

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestParseParams(t *testing.T) {
	tests := []struct {
		key, scale, tempo, genre string
		want                     Params
		wantErr                  bool
	}{
		{"C", "major", "120", "pop", Params{Key: "C", Scale: Major, Tempo: 120, Genre: "pop"}, false},
		{"g", "Minor", "90", "jazz", Params{Key: "G", Scale: Minor, Tempo: 90, Genre: "jazz"}, false},
		{"Eb", "major", "100", "rock", Params{Key: "D#", Scale: Major, Tempo: 100, Genre: "rock"}, false},
		{"H", "major", "120", "pop", Params{}, true},
		{"C", "lydian", "120", "pop", Params{}, true},
		{"C", "major", "0", "pop", Params{}, true},
		{"C", "major", "fast", "pop", Params{}, true},
		{"C", "major", "300", "pop", Params{}, true},
		{"C", "major", "120", " ", Params{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.key+"/"+tt.scale+"/"+tt.tempo, func(t *testing.T) {
			got, err := ParseParams(tt.key, tt.scale, tt.tempo, tt.genre)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidParams) {
					t.Fatalf("ParseParams() err = %v; want ErrInvalidParams", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseParams() err = %v; want nil", err)
			}
			if got != tt.want {
				t.Fatalf("ParseParams() = %+v; want %+v", got, tt.want)
			}
		})
	}
}

func TestValidateZeroParams(t *testing.T) {
	if err := (Params{}).Validate(); !errors.Is(err, ErrInvalidParams) {
		t.Fatalf("Validate() err = %v; want ErrInvalidParams", err)
	}
}

func TestNote(t *testing.T) {
	tests := []struct {
		in        string
		midi      int
		transpose int
		want      string
	}{
		{"C4", 60, 4, "E4"},
		{"A4", 69, 3, "C5"},
		{"B3", 59, 1, "C4"},
		{"F#2", 42, 7, "C#3"},
		{"Db4", 61, -2, "B3"},
		{"C0", 12, -13, "B-2"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			n, err := ParseNote(tt.in)
			if err != nil {
				t.Fatalf("ParseNote(%q) err = %v; want nil", tt.in, err)
			}
			if got := n.MIDI(); got != tt.midi {
				t.Fatalf("MIDI() = %d; want %d", got, tt.midi)
			}
			if got := n.Transpose(tt.transpose).String(); got != tt.want {
				t.Fatalf("Transpose(%d) = %s; want %s", tt.transpose, got, tt.want)
			}
		})
	}
	if f := NewNote("A", 4).Frequency(); f != 440 {
		t.Fatalf("A4 frequency = %v; want 440", f)
	}
}

func TestDefaultPolicy(t *testing.T) {
	tests := []struct {
		key   Key
		scale Scale
		want  []string
	}{
		{"C", Major, []string{"C4", "E4", "G4", "C4"}},
		{"C", Minor, []string{"C4", "D#4", "G4", "C4"}},
		{"A", Minor, []string{"A4", "C5", "E5", "A4"}},
		{"B", Major, []string{"B4", "D#5", "F#5", "B4"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.key)+string(tt.scale), func(t *testing.T) {
			got := DefaultPolicy.Phrase(tt.key, tt.scale)
			if len(got) != len(tt.want) {
				t.Fatalf("Phrase() len = %d; want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i].String() != tt.want[i] {
					t.Fatalf("Phrase()[%d] = %s; want %s", i, got[i], tt.want[i])
				}
			}
			again := DefaultPolicy.Phrase(tt.key, tt.scale)
			for i := range got {
				if got[i] != again[i] {
					t.Fatalf("Phrase() not deterministic at %d: %s != %s", i, got[i], again[i])
				}
			}
		})
	}
}

func TestLoadPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	data := `
name: pentatonic
octave: 3
intervals:
  major: [0, 2, 4, 7, 9]
  minor: [0, 3, 5, 7, 10]
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	p, err := LoadPolicy(path)
	if err != nil {
		t.Fatalf("LoadPolicy() err = %v; want nil", err)
	}
	notes := p.Phrase("D", Major)
	if len(notes) != 5 {
		t.Fatalf("Phrase() len = %d; want 5", len(notes))
	}
	if notes[0].String() != "D3" || notes[4].String() != "B3" {
		t.Fatalf("Phrase() = %v; want D3 ... B3", notes)
	}

	if _, err := ParsePolicy([]byte("name: broken\nintervals:\n  major: [0]\n")); err == nil {
		t.Fatal("ParsePolicy() without minor intervals err = nil; want error")
	}
}
