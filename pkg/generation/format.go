package generation

import (
	"fmt"
	"strings"
)

type Format string

const (
	MIDI Format = "midi"
	MP3  Format = "mp3"
)

// Formats lists the supported output formats.
var Formats = []Format{MIDI, MP3}

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "midi", "mid":
		return MIDI, nil
	case "mp3":
		return MP3, nil
	default:
		return "", fmt.Errorf("generation: unknown format %q", s)
	}
}

func (f Format) Valid() bool {
	return f == MIDI || f == MP3
}

// Name is the user facing name of the format.
func (f Format) Name() string {
	return strings.ToUpper(string(f))
}

func (f Format) Ext() string {
	switch f {
	case MIDI:
		return "mid"
	default:
		return string(f)
	}
}

func (f Format) ContentType() string {
	switch f {
	case MIDI:
		return "audio/midi"
	case MP3:
		return "audio/mpeg"
	default:
		return "application/octet-stream"
	}
}

// Filename is the name used to save an artifact of this format.
func (f Format) Filename() string {
	return "generated_music." + f.Ext()
}
