package synth

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/hajimehoshi/oto/v2"
	"github.com/igolaizola/melodai/pkg/music"
)

const (
	channels = 2
	attack   = 10 * time.Millisecond
	release  = 40 * time.Millisecond
)

type Config struct {
	SampleRate int
	Volume     float64
	Debug      bool
}

// voice is a single sounding note. An oto player satisfies it.
type voice interface {
	Play()
	Pause()
	Close() error
}

// Synth is a polyphonic sine voice driven by an oto context. Its clock
// starts when the context is ready.
type Synth struct {
	newVoice func(pcm []byte) voice
	rate     int
	volume   float64
	debug    bool
	start    time.Time

	mu      sync.Mutex
	gen     uint64
	timers  map[*time.Timer]struct{}
	players map[voice]struct{}
}

func New(cfg *Config) (*Synth, error) {
	rate := cfg.SampleRate
	if rate == 0 {
		rate = 44100
	}
	volume := cfg.Volume
	if volume <= 0 || volume > 1 {
		volume = 0.5
	}
	ctx, ready, err := oto.NewContext(rate, channels, oto.FormatSignedInt16LE)
	if err != nil {
		return nil, fmt.Errorf("synth: couldn't create audio context: %w", err)
	}
	<-ready
	return newSynth(rate, volume, cfg.Debug, func(pcm []byte) voice {
		return ctx.NewPlayer(bytes.NewReader(pcm))
	}), nil
}

func newSynth(rate int, volume float64, debug bool, newVoice func([]byte) voice) *Synth {
	return &Synth{
		newVoice: newVoice,
		rate:     rate,
		volume:   volume,
		debug:    debug,
		start:    time.Now(),
		timers:   map[*time.Timer]struct{}{},
		players:  map[voice]struct{}{},
	}
}

func (s *Synth) log(format string, args ...interface{}) {
	if s.debug {
		format += "\n"
		log.Printf(format, args...)
	}
}

// Now returns the time elapsed on the audio clock.
func (s *Synth) Now() time.Duration {
	return time.Since(s.start)
}

// TriggerAttackRelease plays pitch for hold starting at start on the audio
// clock. Start times in the past play immediately.
func (s *Synth) TriggerAttackRelease(pitch music.Note, hold, start time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	gen := s.gen
	delay := start - s.Now()
	if delay < 0 {
		delay = 0
	}
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.timers, t)
		if gen != s.gen {
			return
		}
		s.play(pitch, hold)
	})
	s.timers[t] = struct{}{}
}

// play must be called with the lock held.
func (s *Synth) play(pitch music.Note, hold time.Duration) {
	pcm := Render(pitch.Frequency(), hold, s.rate, s.volume)
	p := s.newVoice(pcm)
	p.Play()
	s.players[p] = struct{}{}
	s.log("synth: %s for %s", pitch, hold)

	gen := s.gen
	var t *time.Timer
	t = time.AfterFunc(hold+release, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.timers, t)
		if gen != s.gen {
			return
		}
		if err := p.Close(); err != nil {
			s.log("synth: couldn't close player: %v", err)
		}
		delete(s.players, p)
	})
	s.timers[t] = struct{}{}
}

// ReleaseAll silences every voice and cancels pending ones.
func (s *Synth) ReleaseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	for t := range s.timers {
		t.Stop()
	}
	s.timers = map[*time.Timer]struct{}{}
	for p := range s.players {
		p.Pause()
		if err := p.Close(); err != nil {
			s.log("synth: couldn't close player: %v", err)
		}
	}
	s.players = map[voice]struct{}{}
}

// Render returns interleaved 16-bit little endian stereo samples of a sine
// wave with a linear attack and release.
func Render(freq float64, hold time.Duration, rate int, volume float64) []byte {
	total := hold + release
	n := int(total.Seconds() * float64(rate))
	na := int(attack.Seconds() * float64(rate))
	nh := int(hold.Seconds() * float64(rate))
	buf := make([]byte, n*channels*2)
	for i := 0; i < n; i++ {
		env := 1.0
		switch {
		case i < na:
			env = float64(i) / float64(na)
		case i >= nh:
			env = 1 - float64(i-nh)/float64(n-nh)
		}
		v := math.Sin(2*math.Pi*freq*float64(i)/float64(rate)) * env * volume
		sample := uint16(int16(v * math.MaxInt16))
		for c := 0; c < channels; c++ {
			binary.LittleEndian.PutUint16(buf[(i*channels+c)*2:], sample)
		}
	}
	return buf
}
