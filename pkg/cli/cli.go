package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/igolaizola/melodai/pkg/cmd/batch"
	"github.com/igolaizola/melodai/pkg/cmd/generate"
	"github.com/igolaizola/melodai/pkg/cmd/history"
	"github.com/igolaizola/melodai/pkg/cmd/migrate"
	"github.com/igolaizola/melodai/pkg/cmd/preview"
	"github.com/igolaizola/melodai/pkg/cmd/web"
	"github.com/peterbourgon/ff/ffyaml"
	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"
)

func New(version, commit, date string) *ffcli.Command {
	fs := flag.NewFlagSet("melodai", flag.ExitOnError)

	return &ffcli.Command{
		ShortUsage: "melodai [flags] <subcommand>",
		FlagSet:    fs,
		Exec: func(context.Context, []string) error {
			return flag.ErrHelp
		},
		Subcommands: []*ffcli.Command{
			newVersionCommand(version, commit, date),
			newPreviewCommand(),
			newGenerateCommand(),
			newBatchCommand(),
			newWebCommand(),
			newMigrateCommand(),
			newHistoryCommand(),
		},
	}
}

func newVersionCommand(version, commit, date string) *ffcli.Command {
	return &ffcli.Command{
		Name:       "version",
		ShortUsage: "melodai version",
		ShortHelp:  "print version",
		Exec: func(ctx context.Context, args []string) error {
			v := version
			if v == "" {
				if buildInfo, ok := debug.ReadBuildInfo(); ok {
					v = buildInfo.Main.Version
				}
			}
			if v == "" {
				v = "dev"
			}
			versionFields := []string{v}
			if commit != "" {
				versionFields = append(versionFields, commit)
			}
			if date != "" {
				versionFields = append(versionFields, date)
			}
			fmt.Println(strings.Join(versionFields, " "))
			return nil
		},
	}
}

func options() []ff.Option {
	return []ff.Option{
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ffyaml.Parser),
		ff.WithEnvVarPrefix("MELODAI"),
	}
}

func paramFlags(fs *flag.FlagSet, key, scale *string, tempo *int, genre *string) {
	fs.StringVar(key, "key", "C", "key (C, C#, D, ... B, flats accepted)")
	fs.StringVar(scale, "scale", "major", "scale (major, minor)")
	fs.IntVar(tempo, "tempo", 120, "tempo in BPM (40-240)")
	fs.StringVar(genre, "genre", "pop", "genre forwarded to the engine")
}

func engineFlags(fs *flag.FlagSet, base, midiPath, mp3Path, proxy *string, timeout *time.Duration) {
	fs.StringVar(base, "engine", "http://localhost:5000", "generation engine base url")
	fs.StringVar(midiPath, "midi-path", "/generate", "engine path for midi requests")
	fs.StringVar(mp3Path, "mp3-path", "/generate/mp3", "engine path for mp3 requests")
	fs.StringVar(proxy, "proxy", "", "proxy to use")
	fs.DurationVar(timeout, "timeout", 0, "timeout for each engine request (0 means no timeout)")
}

func storeFlags(fs *flag.FlagSet, dbType, dbConn *string) {
	fs.StringVar(dbType, "db-type", "", "db type (sqlite, mysql, postgres), empty disables the journal")
	fs.StringVar(dbConn, "db-conn", "", "path for sqlite, dsn for mysql or postgres")
}

func fileFlags(fs *flag.FlagSet, fsType, fsConn *string) {
	fs.StringVar(fsType, "fs-type", "local", "fs type (local, s3, telegram)")
	fs.StringVar(fsConn, "fs-conn", ".", "path for local, key:secret@bucket.region for s3, token@chat for telegram")
}

func newPreviewCommand() *ffcli.Command {
	cmd := "preview"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	cfg := &preview.Config{}

	fs.BoolVar(&cfg.Debug, "debug", false, "debug mode")
	paramFlags(fs, &cfg.Key, &cfg.Scale, &cfg.Tempo, &cfg.Genre)
	fs.StringVar(&cfg.Policy, "policy", "triad", "built-in phrase policy (triad, octave)")
	fs.StringVar(&cfg.PolicyFile, "policy-file", "", "yaml file with a custom phrase policy")
	fs.IntVar(&cfg.SampleRate, "sample-rate", 44100, "audio sample rate")
	fs.Float64Var(&cfg.Volume, "volume", 0.5, "output volume (0-1)")

	return &ffcli.Command{
		Name:       cmd,
		ShortUsage: fmt.Sprintf("melodai %s [flags]", cmd),
		Options:    options(),
		ShortHelp:  "play the preview phrase on the default audio device",
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			return preview.Run(ctx, cfg)
		},
	}
}

func newGenerateCommand() *ffcli.Command {
	cmd := "generate"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	cfg := &generate.Config{}

	fs.BoolVar(&cfg.Debug, "debug", false, "debug mode")
	storeFlags(fs, &cfg.DBType, &cfg.DBConn)
	fileFlags(fs, &cfg.FSType, &cfg.FSConn)
	engineFlags(fs, &cfg.Engine, &cfg.MIDIPath, &cfg.MP3Path, &cfg.Proxy, &cfg.Timeout)
	paramFlags(fs, &cfg.Key, &cfg.Scale, &cfg.Tempo, &cfg.Genre)
	fs.StringVar(&cfg.Format, "format", "midi", "output format (midi, mp3, all)")

	return &ffcli.Command{
		Name:       cmd,
		ShortUsage: fmt.Sprintf("melodai %s [flags]", cmd),
		Options:    options(),
		ShortHelp:  "generate and save artifacts with the remote engine",
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			return generate.Run(ctx, cfg)
		},
	}
}

func newBatchCommand() *ffcli.Command {
	cmd := "batch"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	cfg := &batch.Config{}

	fs.BoolVar(&cfg.Debug, "debug", false, "debug mode")
	storeFlags(fs, &cfg.DBType, &cfg.DBConn)
	fileFlags(fs, &cfg.FSType, &cfg.FSConn)
	engineFlags(fs, &cfg.Engine, &cfg.MIDIPath, &cfg.MP3Path, &cfg.Proxy, &cfg.Timeout)
	fs.StringVar(&cfg.Input, "input", "", "csv or json with rows (fields: key,scale,tempo,genre,format)")
	fs.IntVar(&cfg.Limit, "limit", 0, "limit the number of rows (0 means no limit)")
	fs.DurationVar(&cfg.Wait, "wait", 0, "wait time between rows")
	paramFlags(fs, &cfg.Key, &cfg.Scale, &cfg.Tempo, &cfg.Genre)
	fs.StringVar(&cfg.Format, "format", "midi", "default output format (midi, mp3, all)")

	return &ffcli.Command{
		Name:       cmd,
		ShortUsage: fmt.Sprintf("melodai %s [flags]", cmd),
		Options:    options(),
		ShortHelp:  "generate artifacts for every row of an input file",
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			return batch.Run(ctx, cfg)
		},
	}
}

func newWebCommand() *ffcli.Command {
	cmd := "web"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	cfg := &web.Config{}

	fs.BoolVar(&cfg.Debug, "debug", false, "debug mode")
	storeFlags(fs, &cfg.DBType, &cfg.DBConn)
	fs.StringVar(&cfg.FSType, "fs-type", "", "fs type to also save artifacts on the server (local, s3, telegram)")
	fs.StringVar(&cfg.FSConn, "fs-conn", "", "path for local, key:secret@bucket.region for s3, token@chat for telegram")
	engineFlags(fs, &cfg.Engine, &cfg.MIDIPath, &cfg.MP3Path, &cfg.Proxy, &cfg.Timeout)
	fs.StringVar(&cfg.Policy, "policy", "triad", "built-in phrase policy (triad, octave)")
	fs.StringVar(&cfg.PolicyFile, "policy-file", "", "yaml file with a custom phrase policy")
	fs.Float64Var(&cfg.Volume, "volume", 0.5, "output volume (0-1)")

	fs.StringVar(&cfg.Addr, "addr", "localhost:1337", "address to listen on")
	fs.BoolVar(&cfg.Open, "open", false, "open the page in the default browser")
	fsMapVar(fs, &cfg.Credentials, "creds", nil, "credentials to use (semicolon separated) Example: user1:pass1;user2:pass2")

	return &ffcli.Command{
		Name:       cmd,
		ShortUsage: fmt.Sprintf("melodai %s [flags]", cmd),
		Options:    options(),
		ShortHelp:  "serve the control page",
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			return web.Serve(ctx, cfg)
		},
	}
}

func newMigrateCommand() *ffcli.Command {
	cmd := "migrate"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	cfg := &migrate.Config{}

	fs.BoolVar(&cfg.Debug, "debug", false, "debug mode")
	fs.StringVar(&cfg.DBType, "db-type", "sqlite", "db type (sqlite, mysql, postgres)")
	fs.StringVar(&cfg.DBConn, "db-conn", "melodai.db", "path for sqlite, dsn for mysql or postgres")

	return &ffcli.Command{
		Name:       cmd,
		ShortUsage: fmt.Sprintf("melodai %s [flags]", cmd),
		Options:    options(),
		ShortHelp:  "create or update the job journal",
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			return migrate.Run(ctx, cfg)
		},
	}
}

func newHistoryCommand() *ffcli.Command {
	cmd := "history"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	cfg := &history.Config{}

	fs.BoolVar(&cfg.Debug, "debug", false, "debug mode")
	fs.StringVar(&cfg.DBType, "db-type", "sqlite", "db type (sqlite, mysql, postgres)")
	fs.StringVar(&cfg.DBConn, "db-conn", "melodai.db", "path for sqlite, dsn for mysql or postgres")
	fs.IntVar(&cfg.Page, "page", 1, "page to show")
	fs.IntVar(&cfg.Size, "size", 20, "jobs per page")
	fs.StringVar(&cfg.Format, "format", "", "only show jobs of this format")
	fs.StringVar(&cfg.Status, "status", "", "only show jobs with this status (succeeded, failed)")

	return &ffcli.Command{
		Name:       cmd,
		ShortUsage: fmt.Sprintf("melodai %s [flags]", cmd),
		Options:    options(),
		ShortHelp:  "list journaled generation jobs",
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			return history.Run(ctx, cfg)
		},
	}
}

type mapValue struct {
	v *map[string]string
}

func (m *mapValue) String() string {
	if m.v == nil {
		return ""
	}
	return fmt.Sprintf("%v", map[string]string(*m.v))
}

func (m *mapValue) Set(value string) error {
	if m.v == nil {
		return errors.New("nil map reference")
	}
	pairs := strings.Split(value, ";")
	for _, pair := range pairs {
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid map entry: %s", pair)
		}
		(*m.v)[parts[0]] = parts[1]
	}
	return nil
}

func fsMapVar(fs *flag.FlagSet, p *map[string]string, name string, value map[string]string, usage string) {
	if value == nil {
		value = make(map[string]string)
	}
	*p = value
	fs.Var(&mapValue{p}, name, usage)
}
