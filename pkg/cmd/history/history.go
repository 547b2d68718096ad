package history

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/igolaizola/melodai/pkg/generation"
	"github.com/igolaizola/melodai/pkg/storage"
)

type Config struct {
	Debug  bool
	DBType string
	DBConn string
	Page   int
	Size   int
	Format string
	Status string
}

// Run prints the latest generation jobs stored in the journal.
func Run(ctx context.Context, cfg *Config) error {
	store, err := storage.New(cfg.DBType, cfg.DBConn, cfg.Debug)
	if err != nil {
		return fmt.Errorf("history: couldn't create orm store: %w", err)
	}
	if err := store.Start(ctx); err != nil {
		return fmt.Errorf("history: couldn't start orm store: %w", err)
	}
	return list(ctx, os.Stdout, store, cfg)
}

func list(ctx context.Context, w io.Writer, store *storage.Store, cfg *Config) error {
	var filters []storage.Filter
	if cfg.Format != "" {
		f, err := generation.ParseFormat(cfg.Format)
		if err != nil {
			return fmt.Errorf("history: %w", err)
		}
		filters = append(filters, storage.Where("format = ?", string(f)))
	}
	if cfg.Status != "" {
		filters = append(filters, storage.Where("status = ?", cfg.Status))
	}
	size := cfg.Size
	if size <= 0 {
		size = 20
	}
	gens, err := store.ListGenerations(ctx, cfg.Page, size, "id desc", filters...)
	if err != nil {
		return fmt.Errorf("history: couldn't list generations: %w", err)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tFINISHED\tFORMAT\tKEY\tSCALE\tTEMPO\tGENRE\tSTATUS\tSIZE\tERROR")
	for _, g := range gens {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\t%s\t%d\t%s\n",
			g.ID, g.FinishedAt.Local().Format(time.DateTime), g.Format, g.Key, g.Scale,
			g.Tempo, g.Genre, g.Status, g.Size, g.Error)
	}
	return tw.Flush()
}
