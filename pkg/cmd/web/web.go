package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	iofs "io/fs"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/igolaizola/melodai"
	"github.com/igolaizola/melodai/pkg/engine"
	"github.com/igolaizola/melodai/pkg/filestore"
	"github.com/igolaizola/melodai/pkg/generation"
	"github.com/igolaizola/melodai/pkg/music"
	"github.com/igolaizola/melodai/pkg/preview"
	"github.com/igolaizola/melodai/pkg/storage"
	"github.com/igolaizola/melodai/pkg/synth"
	"github.com/pkg/browser"
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

	Policy     string
	PolicyFile string
	Volume     float64

	Addr        string
	Open        bool
	Credentials map[string]string
}

//go:embed static/*
var staticContent embed.FS

// Serve starts the control page and its API.
func Serve(ctx context.Context, cfg *Config) error {
	log.Println("web: server started")
	defer log.Println("web: server ended")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	debug := func(format string, args ...interface{}) {
		if !cfg.Debug {
			return
		}
		format += "\n"
		log.Printf(format, args...)
	}

	var policy music.Policy
	var err error
	if cfg.PolicyFile != "" {
		policy, err = music.LoadPolicy(cfg.PolicyFile)
	} else {
		policy, err = music.PolicyByName(cfg.Policy)
	}
	if err != nil {
		return fmt.Errorf("web: couldn't load policy: %w", err)
	}
	sink, err := synth.New(&synth.Config{
		Volume: cfg.Volume,
		Debug:  cfg.Debug,
	})
	if err != nil {
		return fmt.Errorf("web: %w", err)
	}
	scheduler := preview.New(sink, preview.WithPolicy(policy), preview.WithDebug(cfg.Debug))
	defer scheduler.Stop()

	client, err := engine.New(&engine.Config{
		BaseURL:  cfg.Engine,
		MIDIPath: cfg.MIDIPath,
		MP3Path:  cfg.MP3Path,
		Proxy:    cfg.Proxy,
		Timeout:  cfg.Timeout,
		Debug:    cfg.Debug,
	})
	if err != nil {
		return fmt.Errorf("web: couldn't create engine client: %w", err)
	}

	var downloader generation.Downloader
	if cfg.FSType != "" {
		fs, err := filestore.New(cfg.FSType, cfg.FSConn, cfg.Proxy, cfg.Debug)
		if err != nil {
			return fmt.Errorf("web: couldn't create file storage: %w", err)
		}
		downloader = fs
	}

	var store *storage.Store
	var journal generation.Journal
	if cfg.DBType != "" {
		store, err = storage.New(cfg.DBType, cfg.DBConn, cfg.Debug)
		if err != nil {
			return fmt.Errorf("web: couldn't create orm store: %w", err)
		}
		if err := store.Start(ctx); err != nil {
			return fmt.Errorf("web: couldn't start orm store: %w", err)
		}
		journal = store
	}

	notices := &alerts{}
	coord := generation.New(client, &generation.Config{
		Downloader: downloader,
		Notifier:   notices,
		Journal:    journal,
		Debug:      cfg.Debug,
		OnProgress: func(v int) {
			debug("web: progress %d%%", v)
		},
	})
	surface := melodai.New(scheduler, coord, melodai.DefaultParams)

	mux, err := newRouter(ctx, surface, store, notices, cfg)
	if err != nil {
		return err
	}

	// Create server
	split := strings.Split(cfg.Addr, ":")
	if len(split) != 2 {
		return fmt.Errorf("web: invalid address: %s", cfg.Addr)
	}
	host := split[0]
	port, err := strconv.Atoi(split[1])
	if err != nil {
		return fmt.Errorf("web: invalid port: %s", split[1])
	}
	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", host, port),
		Handler: mux,
	}
	go func() {
		note := fmt.Sprintf("http://%s:%d", host, port)
		if host == "" {
			note = fmt.Sprintf("all interfaces http://localhost:%d", port)
		}
		log.Printf("Starting server on %s", note)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v\n", err)
			cancel()
		}
	}()

	if cfg.Open {
		if host == "" {
			host = "localhost"
		}
		u := fmt.Sprintf("http://%s:%d", host, port)
		if err := browser.OpenURL(u); err != nil {
			log.Printf("web: couldn't open browser: %v\n", err)
		}
	}

	<-ctx.Done()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("web: couldn't shutdown server: %v\n", err)
	}
	return nil
}

func newRouter(ctx context.Context, surface *melodai.Surface, store *storage.Store, notices *alerts, cfg *Config) (http.Handler, error) {
	// Create static content
	staticFS, err := iofs.Sub(staticContent, "static")
	if err != nil {
		return nil, fmt.Errorf("web: couldn't load static content: %w", err)
	}

	// Create router
	mux := chi.NewRouter()

	// Add middleware
	mux.Use(middleware.RealIP)
	mux.Use(middleware.Recoverer)

	// Add BasicAuth middleware
	if len(cfg.Credentials) > 0 {
		mux.Use(middleware.BasicAuth("private", cfg.Credentials))
	}

	// Create subrouter for api endpoints
	r := mux.Group(func(r chi.Router) {
		if cfg.Debug {
			r.Use(middleware.Logger)
		}
	})
	// Generation requests have no local timeout
	fast := r.With(middleware.Timeout(60 * time.Second))

	// Handler to serve the static files
	mux.Get("/*", http.StripPrefix("/", http.FileServer(http.FS(staticFS))).ServeHTTP)

	state := func(w http.ResponseWriter, status int, errMsg string) {
		writeJSON(w, status, &stateResponse{
			State: surface.State(),
			Alert: notices.Last(),
			Error: errMsg,
		})
	}

	fast.Get("/api/state", func(w http.ResponseWriter, r *http.Request) {
		state(w, http.StatusOK, "")
	})

	fast.Put("/api/params", func(w http.ResponseWriter, r *http.Request) {
		var req paramsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, fmt.Sprintf("couldn't decode params: %v", err), http.StatusBadRequest)
			return
		}
		p := req.params()
		surface.SetParams(p)
		var msg string
		if err := p.Validate(); err != nil {
			msg = err.Error()
		}
		state(w, http.StatusOK, msg)
	})

	fast.Post("/api/preview", func(w http.ResponseWriter, r *http.Request) {
		if _, err := surface.TogglePreview(); err != nil {
			state(w, http.StatusBadRequest, err.Error())
			return
		}
		state(w, http.StatusOK, "")
	})

	fast.Post("/api/preview/stop", func(w http.ResponseWriter, r *http.Request) {
		surface.StopPreview()
		state(w, http.StatusOK, "")
	})

	r.Post("/api/generate/{format}", func(w http.ResponseWriter, r *http.Request) {
		f, err := generation.ParseFormat(chi.URLParam(r, "format"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		// Generations run on the server context.
		_, err = surface.Generate(ctx, f)
		resp := &jobResponse{Job: surface.Job(f)}
		if err == nil {
			writeJSON(w, http.StatusOK, resp)
			return
		}
		resp.Error = err.Error()
		var rerr *generation.RequestError
		switch {
		case errors.Is(err, music.ErrInvalidParams):
			writeJSON(w, http.StatusBadRequest, resp)
		case errors.Is(err, generation.ErrBusy):
			writeJSON(w, http.StatusConflict, resp)
		case errors.As(err, &rerr):
			writeJSON(w, http.StatusBadGateway, resp)
		default:
			writeJSON(w, http.StatusInternalServerError, resp)
		}
	})

	fast.Get("/api/download/{format}", func(w http.ResponseWriter, r *http.Request) {
		f, err := generation.ParseFormat(chi.URLParam(r, "format"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		job := surface.Job(f)
		if job.Artifact == nil {
			http.Error(w, fmt.Sprintf("no %s available", f.Name()), http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", f.ContentType())
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", f.Filename()))
		w.Header().Set("Content-Length", strconv.Itoa(len(job.Artifact)))
		_, _ = w.Write(job.Artifact)
	})

	fast.Post("/api/download/{format}", func(w http.ResponseWriter, r *http.Request) {
		f, err := generation.ParseFormat(chi.URLParam(r, "format"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		resp := &jobResponse{Job: surface.Job(f)}
		if err := surface.Download(r.Context(), f); err != nil {
			resp.Error = err.Error()
			status := http.StatusInternalServerError
			if errors.Is(err, generation.ErrNoArtifact) {
				status = http.StatusNotFound
			}
			writeJSON(w, status, resp)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	})

	fast.Get("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		jobs := []*Job{}
		if store == nil {
			writeJSON(w, http.StatusOK, jobs)
			return
		}
		// Obtain page from query params
		page, err := strconv.Atoi(r.URL.Query().Get("page"))
		if err != nil {
			page = 1
		}
		size, err := strconv.Atoi(r.URL.Query().Get("size"))
		if err != nil {
			size = 50
		}
		var filters []storage.Filter
		for _, k := range []string{"format", "status"} {
			if v := r.URL.Query().Get(k); v != "" {
				filters = append(filters, storage.Where(fmt.Sprintf("%s = ?", k), v))
			}
		}
		gens, err := store.ListGenerations(r.Context(), page, size, "id desc", filters...)
		if err != nil {
			http.Error(w, fmt.Sprintf("couldn't list jobs: %v", err), http.StatusInternalServerError)
			return
		}
		for _, g := range gens {
			jobs = append(jobs, &Job{
				ID:       g.ID,
				Format:   g.Format,
				Key:      g.Key,
				Scale:    g.Scale,
				Tempo:    g.Tempo,
				Genre:    g.Genre,
				Status:   g.Status,
				Size:     g.Size,
				Error:    g.Error,
				Started:  g.StartedAt,
				Finished: g.FinishedAt,
			})
		}
		writeJSON(w, http.StatusOK, jobs)
	})

	return mux, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Println("web: couldn't encode response:", err)
	}
}

// alerts keeps the last failure notice so the page can show it.
type alerts struct {
	mu   sync.Mutex
	id   int
	last string
}

func (a *alerts) Alert(msg string) {
	log.Println("web: alert:", msg)
	a.mu.Lock()
	defer a.mu.Unlock()
	a.id++
	a.last = msg
}

func (a *alerts) Last() *Alert {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.id == 0 {
		return nil
	}
	return &Alert{ID: a.id, Message: a.last}
}

type Alert struct {
	ID      int    `json:"id"`
	Message string `json:"message"`
}

type stateResponse struct {
	melodai.State
	Alert *Alert `json:"alert,omitempty"`
	Error string `json:"error,omitempty"`
}

type jobResponse struct {
	Job   generation.Job `json:"job"`
	Error string         `json:"error,omitempty"`
}

type paramsRequest struct {
	Key   string `json:"key"`
	Scale string `json:"scale"`
	Tempo int    `json:"tempo"`
	Genre string `json:"genre"`
}

// params normalizes the request values without rejecting them.
func (p *paramsRequest) params() music.Params {
	v := music.Params{
		Key:   music.Key(p.Key),
		Scale: music.Scale(p.Scale),
		Tempo: p.Tempo,
		Genre: strings.TrimSpace(p.Genre),
	}
	if k, err := music.ParseKey(p.Key); err == nil {
		v.Key = k
	}
	if s, err := music.ParseScale(p.Scale); err == nil {
		v.Scale = s
	}
	return v
}

type Job struct {
	ID       string    `json:"id"`
	Format   string    `json:"format"`
	Key      string    `json:"key"`
	Scale    string    `json:"scale"`
	Tempo    int       `json:"tempo"`
	Genre    string    `json:"genre"`
	Status   string    `json:"status"`
	Size     int       `json:"size"`
	Error    string    `json:"error,omitempty"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
}
