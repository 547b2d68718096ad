package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/igolaizola/melodai/pkg/engine"
	"github.com/igolaizola/melodai/pkg/filestore"
	"github.com/igolaizola/melodai/pkg/generation"
	"github.com/igolaizola/melodai/pkg/music"
	"github.com/igolaizola/melodai/pkg/storage"
	"github.com/oklog/ulid/v2"
)

type Config struct {
	Debug   bool
	DBType  string
	DBConn  string
	FSType  string
	FSConn  string
	Proxy   string
	Timeout time.Duration
	Limit   int
	Wait    time.Duration

	Engine   string
	MIDIPath string
	MP3Path  string

	Input  string
	Key    string
	Scale  string
	Tempo  int
	Genre  string
	Format string
}

type row struct {
	Key    string `json:"key" csv:"key"`
	Scale  string `json:"scale" csv:"scale"`
	Tempo  int    `json:"tempo" csv:"tempo"`
	Genre  string `json:"genre" csv:"genre"`
	Format string `json:"format" csv:"format"`
}

// withDefaults fills empty row fields with the command defaults.
func (r *row) withDefaults(cfg *Config) row {
	v := *r
	if v.Key == "" {
		v.Key = cfg.Key
	}
	if v.Scale == "" {
		v.Scale = cfg.Scale
	}
	if v.Tempo == 0 {
		v.Tempo = cfg.Tempo
	}
	if v.Genre == "" {
		v.Genre = cfg.Genre
	}
	if v.Format == "" {
		v.Format = cfg.Format
	}
	return v
}

func readRows(path string) ([]*row, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("couldn't read input file: %w", err)
	}
	var rows []*row
	switch ext := filepath.Ext(path); ext {
	case ".json":
		if err := json.Unmarshal(b, &rows); err != nil {
			return nil, fmt.Errorf("couldn't unmarshal rows: %w", err)
		}
	case ".csv":
		if err := gocsv.UnmarshalBytes(b, &rows); err != nil {
			return nil, fmt.Errorf("couldn't unmarshal rows: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported input format: %s", ext)
	}
	return rows, nil
}

// Run generates artifacts for every row of the input file, one request at a
// time. Each row is saved under its own folder.
func Run(ctx context.Context, cfg *Config) error {
	var count int
	log.Println("batch: process started")
	defer func() {
		log.Printf("batch: process ended (%d)\n", count)
	}()

	debug := func(format string, args ...interface{}) {
		if !cfg.Debug {
			return
		}
		format += "\n"
		log.Printf(format, args...)
	}

	rows, err := readRows(cfg.Input)
	if err != nil {
		return fmt.Errorf("batch: %w", err)
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
		return fmt.Errorf("batch: couldn't create engine client: %w", err)
	}

	fs, err := filestore.New(cfg.FSType, cfg.FSConn, cfg.Proxy, cfg.Debug)
	if err != nil {
		return fmt.Errorf("batch: couldn't create file storage: %w", err)
	}

	var journal generation.Journal
	if cfg.DBType != "" {
		store, err := storage.New(cfg.DBType, cfg.DBConn, cfg.Debug)
		if err != nil {
			return fmt.Errorf("batch: couldn't create orm store: %w", err)
		}
		if err := store.Start(ctx); err != nil {
			return fmt.Errorf("batch: couldn't start orm store: %w", err)
		}
		journal = store
	}

	var nErr int
	for i, r := range rows {
		if cfg.Limit > 0 && count >= cfg.Limit {
			break
		}
		if i > 0 && cfg.Wait > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(cfg.Wait):
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		v := r.withDefaults(cfg)
		js, _ := json.Marshal(v)
		debug("batch: row %d %s", i+1, js)

		params, err := music.ParseParams(v.Key, v.Scale, strconv.Itoa(v.Tempo), v.Genre)
		if err != nil {
			log.Printf("batch: row %d skipped: %v\n", i+1, err)
			nErr++
			continue
		}
		formats := generation.Formats
		if v.Format != "all" {
			f, err := generation.ParseFormat(v.Format)
			if err != nil {
				log.Printf("batch: row %d skipped: %v\n", i+1, err)
				nErr++
				continue
			}
			formats = []generation.Format{f}
		}

		id := ulid.Make().String()
		coord := generation.New(client, &generation.Config{
			Downloader: fs.WithPrefix(id),
			Journal:    journal,
			Debug:      cfg.Debug,
		})
		for _, f := range formats {
			if _, err := coord.Request(ctx, params, f); err != nil {
				log.Printf("batch: row %d: %v\n", i+1, err)
				nErr++
				continue
			}
			log.Printf("batch: row %d %s saved as %s/%s\n", i+1, f.Name(), id, f.Filename())
		}
		count++
	}
	if nErr > 0 {
		return fmt.Errorf("batch: %d errors", nErr)
	}
	return nil
}
