package preview

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/igolaizola/melodai/pkg/music"
)

// Sink is the audio synthesis capability the scheduler drives.
type Sink interface {
	// Now reads the sink's monotonic audio clock.
	Now() time.Duration
	// TriggerAttackRelease schedules pitch to sound for hold, starting at
	// start on the audio clock.
	TriggerAttackRelease(pitch music.Note, hold, start time.Duration)
	// ReleaseAll silences sounding notes and drops pending ones.
	ReleaseAll()
}

type State int

const (
	Idle State = iota
	Playing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Playing:
		return "playing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// NoteEvent is one scheduled sound.
type NoteEvent struct {
	Pitch music.Note    `json:"pitch"`
	Start time.Duration `json:"start"`
	Hold  time.Duration `json:"hold"`
}

type Option func(*Scheduler)

// WithPolicy sets the phrase derivation policy.
func WithPolicy(p music.Policy) Option {
	return func(s *Scheduler) {
		s.policy = p
	}
}

// WithDebug enables logging of scheduled events.
func WithDebug(debug bool) Option {
	return func(s *Scheduler) {
		s.debug = debug
	}
}

type Scheduler struct {
	mu     sync.Mutex
	sink   Sink
	policy music.Policy
	state  State
	events []NoteEvent
	debug  bool
}

func New(sink Sink, opts ...Option) *Scheduler {
	s := &Scheduler{
		sink:   sink,
		policy: music.DefaultPolicy,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Hold returns the duration of one beat at the given tempo.
func Hold(tempo int) (time.Duration, error) {
	if tempo <= 0 {
		return 0, fmt.Errorf("preview: invalid tempo %d: %w", tempo, music.ErrInvalidParams)
	}
	return time.Minute / time.Duration(tempo), nil
}

// Phrase derives the note events for p starting at now.
func Phrase(policy music.Policy, p music.Params, now time.Duration) ([]NoteEvent, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("preview: %w", err)
	}
	hold, err := Hold(p.Tempo)
	if err != nil {
		return nil, err
	}
	notes := policy.Phrase(p.Key, p.Scale)
	events := make([]NoteEvent, 0, len(notes))
	for i, n := range notes {
		events = append(events, NoteEvent{
			Pitch: n,
			Start: now + time.Duration(i)*hold,
			Hold:  hold,
		})
	}
	return events, nil
}

// Toggle starts the preview phrase when idle and halts it when playing.
func (s *Scheduler) Toggle(p music.Params) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Playing {
		s.halt()
		return s.state, nil
	}

	events, err := Phrase(s.policy, p, s.sink.Now())
	if err != nil {
		return s.state, err
	}
	for _, e := range events {
		s.sink.TriggerAttackRelease(e.Pitch, e.Hold, e.Start)
		s.log("preview: scheduled %s at %s for %s", e.Pitch, e.Start, e.Hold)
	}
	s.events = events
	s.state = Playing
	return s.state, nil
}

// Stop halts any playback and resets to idle. It is a no-op when idle.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Idle {
		return
	}
	s.halt()
}

func (s *Scheduler) halt() {
	s.sink.ReleaseAll()
	s.state = Idle
	s.log("preview: released all")
}

func (s *Scheduler) log(format string, args ...interface{}) {
	if s.debug {
		format += "\n"
		log.Printf(format, args...)
	}
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Events returns the last scheduled phrase.
func (s *Scheduler) Events() []NoteEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := make([]NoteEvent, len(s.events))
	copy(events, s.events)
	return events
}

// End returns the audio clock time at which the last scheduled note ends.
func (s *Scheduler) End() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		return 0
	}
	last := s.events[len(s.events)-1]
	return last.Start + last.Hold
}
