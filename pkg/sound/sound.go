package sound

import (
	"bytes"
	"fmt"
	"io"
	"time"

	mp3 "github.com/hajimehoshi/go-mp3"
	"github.com/igolaizola/melodai/pkg/generation"
)

// Info summarizes a generated artifact.
type Info struct {
	Format     generation.Format `json:"format"`
	Size       int               `json:"size"`
	Duration   time.Duration     `json:"duration"`
	SampleRate int               `json:"sample_rate,omitempty"`
	Tracks     int               `json:"tracks,omitempty"`
	Notes      int               `json:"notes,omitempty"`
	Tempo      float64           `json:"tempo,omitempty"`
}

func (i *Info) String() string {
	switch i.Format {
	case generation.MIDI:
		return fmt.Sprintf("%s %d bytes, %d tracks, %d notes, %.f BPM, %s", i.Format.Name(), i.Size, i.Tracks, i.Notes, i.Tempo, i.Duration.Round(time.Millisecond))
	default:
		return fmt.Sprintf("%s %d bytes, %d Hz, %s", i.Format.Name(), i.Size, i.SampleRate, i.Duration.Round(time.Millisecond))
	}
}

// Inspect decodes the artifact enough to describe it.
func Inspect(f generation.Format, data []byte) (*Info, error) {
	switch f {
	case generation.MIDI:
		return inspectMIDI(data)
	case generation.MP3:
		return inspectMP3(data)
	default:
		return nil, fmt.Errorf("sound: unsupported format %q", f)
	}
}

func inspectMP3(data []byte) (*Info, error) {
	decoder, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("sound: couldn't decode mp3: %w", err)
	}
	// Decoded samples are 16-bit stereo
	length := decoder.Length()
	if length < 0 {
		n, err := io.Copy(io.Discard, decoder)
		if err != nil {
			return nil, fmt.Errorf("sound: couldn't read mp3: %w", err)
		}
		length = n
	}
	rate := decoder.SampleRate()
	var duration time.Duration
	if rate > 0 {
		duration = time.Duration(float64(length) / 4 / float64(rate) * float64(time.Second))
	}
	return &Info{
		Format:     generation.MP3,
		Size:       len(data),
		Duration:   duration,
		SampleRate: rate,
	}, nil
}
