package sound

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/igolaizola/melodai/pkg/generation"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

const defaultBPM = 120.0

type tempoChange struct {
	tick int64
	bpm  float64
}

func inspectMIDI(data []byte) (*Info, error) {
	s, err := smf.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("sound: couldn't decode midi: %w", err)
	}
	mt, ok := s.TimeFormat.(smf.MetricTicks)
	if !ok || mt == 0 {
		return nil, fmt.Errorf("sound: unsupported midi time format %v", s.TimeFormat)
	}

	var tempos []tempoChange
	var notes int
	var end int64
	for _, track := range s.Tracks {
		var tick int64
		for _, ev := range track {
			tick += int64(ev.Delta)
			var bpm float64
			if ev.Message.GetMetaTempo(&bpm) {
				tempos = append(tempos, tempoChange{tick: tick, bpm: bpm})
				continue
			}
			var ch, key, vel uint8
			if midi.Message(ev.Message).GetNoteStart(&ch, &key, &vel) {
				notes++
			}
		}
		if tick > end {
			end = tick
		}
	}
	sort.SliceStable(tempos, func(i, j int) bool {
		return tempos[i].tick < tempos[j].tick
	})

	info := &Info{
		Format:   generation.MIDI,
		Size:     len(data),
		Tracks:   len(s.Tracks),
		Notes:    notes,
		Tempo:    defaultBPM,
		Duration: ticksToDuration(end, uint16(mt), tempos),
	}
	if len(tempos) > 0 {
		info.Tempo = tempos[0].bpm
	}
	return info, nil
}

// ticksToDuration converts an absolute tick position to wall time following
// the tempo map.
func ticksToDuration(end int64, resolution uint16, tempos []tempoChange) time.Duration {
	perTick := func(bpm float64) float64 {
		return 60 / bpm / float64(resolution)
	}
	var seconds float64
	var last int64
	bpm := defaultBPM
	for _, t := range tempos {
		if t.tick >= end {
			break
		}
		seconds += float64(t.tick-last) * perTick(bpm)
		last = t.tick
		bpm = t.bpm
	}
	seconds += float64(end-last) * perTick(bpm)
	return time.Duration(math.Round(seconds * float64(time.Second)))
}
