package generate

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/igolaizola/melodai/pkg/engine"
	"github.com/igolaizola/melodai/pkg/filestore"
	"github.com/igolaizola/melodai/pkg/generation"
	"github.com/igolaizola/melodai/pkg/music"
	"github.com/igolaizola/melodai/pkg/sound"
	"github.com/igolaizola/melodai/pkg/storage"
)

type Config struct {
	Debug   bool
	DBType  string
	DBConn  string
	FSType  string
	FSConn  string
	Proxy   string
	Timeout time.Duration

	Engine   string
	MIDIPath string
	MP3Path  string

	Key    string
	Scale  string
	Tempo  int
	Genre  string
	Format string
}

// Formats parses a format flag value, "all" selects every format.
func Formats(s string) ([]generation.Format, error) {
	if s == "all" {
		return generation.Formats, nil
	}
	f, err := generation.ParseFormat(s)
	if err != nil {
		return nil, err
	}
	return []generation.Format{f}, nil
}

// Run requests one artifact per selected format and saves it.
func Run(ctx context.Context, cfg *Config) error {
	var count int
	log.Println("generate: process started")
	defer func() {
		log.Printf("generate: process ended (%d)\n", count)
	}()

	debug := func(format string, args ...interface{}) {
		if !cfg.Debug {
			return
		}
		format += "\n"
		log.Printf(format, args...)
	}

	params, err := music.ParseParams(cfg.Key, cfg.Scale, strconv.Itoa(cfg.Tempo), cfg.Genre)
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}
	formats, err := Formats(cfg.Format)
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}

	client, err := engine.New(&engine.Config{
		BaseURL:  cfg.Engine,
		MIDIPath: cfg.MIDIPath,
		MP3Path:  cfg.MP3Path,
		Proxy:    cfg.Proxy,
		Timeout:  cfg.Timeout,
		Debug:    cfg.Debug,
	})
	if err != nil {
		return fmt.Errorf("generate: couldn't create engine client: %w", err)
	}

	fs, err := filestore.New(cfg.FSType, cfg.FSConn, cfg.Proxy, cfg.Debug)
	if err != nil {
		return fmt.Errorf("generate: couldn't create file storage: %w", err)
	}

	var journal generation.Journal
	if cfg.DBType != "" {
		store, err := storage.New(cfg.DBType, cfg.DBConn, cfg.Debug)
		if err != nil {
			return fmt.Errorf("generate: couldn't create orm store: %w", err)
		}
		if err := store.Start(ctx); err != nil {
			return fmt.Errorf("generate: couldn't start orm store: %w", err)
		}
		journal = store
	}

	coord := generation.New(client, &generation.Config{
		Downloader: fs,
		Journal:    journal,
		Debug:      cfg.Debug,
		OnProgress: func(v int) {
			debug("generate: progress %d%%", v)
		},
	})

	var nErr int
	for _, f := range formats {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		data, err := coord.Request(ctx, params, f)
		if err != nil {
			log.Println(err)
			nErr++
		}
		if data == nil {
			continue
		}
		count++
		info, err := sound.Inspect(f, data)
		if err != nil {
			log.Printf("generate: couldn't inspect %s: %v\n", f.Name(), err)
			continue
		}
		log.Printf("generate: %s saved as %s (%s)\n", f.Name(), f.Filename(), info)
	}
	if nErr > 0 {
		return fmt.Errorf("generate: %d of %d formats failed", nErr, len(formats))
	}
	return nil
}
