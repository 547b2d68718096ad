package preview

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/igolaizola/melodai/pkg/music"
	"github.com/igolaizola/melodai/pkg/preview"
	"github.com/igolaizola/melodai/pkg/synth"
)

type Config struct {
	Debug      bool
	Key        string
	Scale      string
	Tempo      int
	Genre      string
	Policy     string
	PolicyFile string
	SampleRate int
	Volume     float64
}

// Policy returns the phrase policy selected by name or loaded from file.
func Policy(name, file string) (music.Policy, error) {
	if file != "" {
		return music.LoadPolicy(file)
	}
	return music.PolicyByName(name)
}

// Run plays the preview phrase on the default audio device and waits until
// it ends or the context is cancelled.
func Run(ctx context.Context, cfg *Config) error {
	log.Println("preview: process started")
	defer log.Println("preview: process ended")

	params, err := music.ParseParams(cfg.Key, cfg.Scale, strconv.Itoa(cfg.Tempo), cfg.Genre)
	if err != nil {
		return fmt.Errorf("preview: %w", err)
	}
	policy, err := Policy(cfg.Policy, cfg.PolicyFile)
	if err != nil {
		return fmt.Errorf("preview: couldn't load policy: %w", err)
	}

	sink, err := synth.New(&synth.Config{
		SampleRate: cfg.SampleRate,
		Volume:     cfg.Volume,
		Debug:      cfg.Debug,
	})
	if err != nil {
		return fmt.Errorf("preview: %w", err)
	}
	scheduler := preview.New(sink, preview.WithPolicy(policy), preview.WithDebug(cfg.Debug))
	defer scheduler.Stop()

	if _, err := scheduler.Toggle(params); err != nil {
		return fmt.Errorf("preview: %w", err)
	}
	for _, e := range scheduler.Events() {
		log.Printf("preview: %s for %s\n", e.Pitch, e.Hold)
	}

	// Leave room for the release tail of the last note.
	wait := scheduler.End() - sink.Now() + 100*time.Millisecond
	select {
	case <-ctx.Done():
	case <-time.After(wait):
	}
	return nil
}
