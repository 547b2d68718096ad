package melodai

import (
	"context"
	"sync"

	"github.com/igolaizola/melodai/pkg/generation"
	"github.com/igolaizola/melodai/pkg/music"
	"github.com/igolaizola/melodai/pkg/preview"
)

// DefaultParams are the values the controls start with.
var DefaultParams = music.Params{
	Key:   "C",
	Scale: music.Major,
	Tempo: 120,
	Genre: "pop",
}

// Surface owns the current parameter set and routes user actions to the
// preview scheduler and the generation coordinator.
type Surface struct {
	scheduler   *preview.Scheduler
	coordinator *generation.Coordinator

	mu     sync.Mutex
	params music.Params
}

func New(scheduler *preview.Scheduler, coordinator *generation.Coordinator, params music.Params) *Surface {
	return &Surface{
		scheduler:   scheduler,
		coordinator: coordinator,
		params:      params,
	}
}

// SetParams replaces the current parameter set. Values are validated when an
// action reads them, not here.
func (s *Surface) SetParams(p music.Params) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.params = p
}

func (s *Surface) Params() music.Params {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params
}

// TogglePreview starts the preview phrase with the current parameters or
// stops the one that is playing.
func (s *Surface) TogglePreview() (preview.State, error) {
	return s.scheduler.Toggle(s.Params())
}

func (s *Surface) StopPreview() {
	s.scheduler.Stop()
}

// Generate requests an artifact of format f with the current parameters.
func (s *Surface) Generate(ctx context.Context, f generation.Format) ([]byte, error) {
	return s.coordinator.Request(ctx, s.Params(), f)
}

// Download saves the last artifact of format f again.
func (s *Surface) Download(ctx context.Context, f generation.Format) error {
	return s.coordinator.Download(ctx, f)
}

func (s *Surface) Job(f generation.Format) generation.Job {
	return s.coordinator.Job(f)
}

type State struct {
	Params          music.Params        `json:"params"`
	Preview         preview.State       `json:"preview"`
	Events          []preview.NoteEvent `json:"events,omitempty"`
	Progress        int                 `json:"progress"`
	ControlsEnabled bool                `json:"controls_enabled"`
	Jobs            []generation.Job    `json:"jobs"`
}

// State returns a snapshot of everything the controls display.
func (s *Surface) State() State {
	st := State{
		Params:          s.Params(),
		Preview:         s.scheduler.State(),
		Progress:        s.coordinator.Progress(),
		ControlsEnabled: s.coordinator.ControlsEnabled(),
		Jobs:            s.coordinator.Jobs(),
	}
	if st.Preview == preview.Playing {
		st.Events = s.scheduler.Events()
	}
	return st
}
