package generation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/igolaizola/melodai/pkg/music"
)

var (
	// ErrBusy is returned when a request arrives while another is in flight.
	ErrBusy = errors.New("generation: another request is in flight")
	// ErrNoArtifact is returned when downloading a format that has no result.
	ErrNoArtifact = errors.New("generation: no artifact available")
)

type Status string

const (
	Idle      Status = "idle"
	InFlight  Status = "in_flight"
	Succeeded Status = "succeeded"
	Failed    Status = "failed"
)

// Job tracks the last request cycle of one output format.
type Job struct {
	Format   Format    `json:"format"`
	Status   Status    `json:"status"`
	Artifact []byte    `json:"-"`
	Size     int       `json:"size"`
	Error    string    `json:"error,omitempty"`
	Updated  time.Time `json:"updated"`
}

// Record is a finished job as stored by a journal.
type Record struct {
	Format   Format
	Params   music.Params
	Status   Status
	Size     int
	Error    string
	Started  time.Time
	Finished time.Time
}

// Requester issues one outbound generation request.
type Requester interface {
	Generate(ctx context.Context, p music.Params, f Format) ([]byte, error)
}

// Downloader saves an artifact under the given file name.
type Downloader interface {
	Save(ctx context.Context, name string, data []byte) error
}

// Notifier shows failure notices to the user.
type Notifier interface {
	Alert(msg string)
}

type Journal interface {
	RecordJob(ctx context.Context, r *Record) error
}

// RequestError is returned when the remote service fails or can't be
// reached.
type RequestError struct {
	Format Format
	Err    error

	// Status is the HTTP status code, zero for transport failures.
	Status int
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("generation: couldn't generate %s: %v", e.Format.Name(), e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

type Config struct {
	Downloader Downloader
	Notifier   Notifier
	Journal    Journal
	Debug      bool

	// Settle is how long the final progress value stays visible.
	Settle time.Duration

	// OnProgress is called on every progress change. It may read the
	// coordinator state.
	OnProgress func(int)
}

const defaultSettle = time.Second

type Coordinator struct {
	requester  Requester
	downloader Downloader
	notifier   Notifier
	journal    Journal
	settle     time.Duration
	debug      bool
	afterFunc  func(time.Duration, func())

	lock     Lock
	progress Progress

	mu   sync.Mutex
	seq  uint64
	jobs map[Format]*Job
}

func New(requester Requester, cfg *Config) *Coordinator {
	if cfg == nil {
		cfg = &Config{}
	}
	settle := cfg.Settle
	if settle == 0 {
		settle = defaultSettle
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = logNotifier{}
	}
	jobs := map[Format]*Job{}
	for _, f := range Formats {
		jobs[f] = &Job{Format: f, Status: Idle}
	}
	return &Coordinator{
		requester:  requester,
		downloader: cfg.Downloader,
		notifier:   notifier,
		journal:    cfg.Journal,
		settle:     settle,
		debug:      cfg.Debug,
		afterFunc: func(d time.Duration, fn func()) {
			time.AfterFunc(d, fn)
		},
		progress: Progress{onChange: cfg.OnProgress},
		jobs:     jobs,
	}
}

func (c *Coordinator) log(format string, args ...interface{}) {
	if c.debug {
		format += "\n"
		log.Printf(format, args...)
	}
}

// Request generates an artifact of format f for p. Only one request may be
// outstanding at a time across all formats. When the artifact is generated
// but can't be saved, the artifact is returned together with the save error
// and stays available to Download.
func (c *Coordinator) Request(ctx context.Context, p music.Params, f Format) ([]byte, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("generation: unknown format %q: %w", f, music.ErrInvalidParams)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("generation: %w", err)
	}
	if !c.lock.TryAcquire() {
		c.log("generation: %s rejected, busy", f.Name())
		return nil, ErrBusy
	}
	seq := c.begin(f)
	defer c.end(seq)

	started := time.Now()
	c.log("generation: %s requested (%s)", f.Name(), p)
	data, err := c.requester.Generate(ctx, p, f)
	if err != nil {
		rerr := &RequestError{Format: f, Err: err}
		var sc interface{ StatusCode() int }
		if errors.As(err, &sc) {
			rerr.Status = sc.StatusCode()
		}
		c.update(f, Failed, nil, rerr)
		c.notifier.Alert(fmt.Sprintf("Failed to generate %s", f.Name()))
		c.record(ctx, f, p, Failed, 0, rerr, started)
		return nil, rerr
	}

	c.update(f, Succeeded, data, nil)
	c.progress.Set(100)
	c.log("generation: %s succeeded (%d bytes)", f.Name(), len(data))
	c.record(ctx, f, p, Succeeded, len(data), nil, started)

	if err := c.save(ctx, f, data); err != nil {
		return data, err
	}
	return data, nil
}

func (c *Coordinator) begin(f Format) uint64 {
	c.mu.Lock()
	c.seq++
	seq := c.seq
	j := c.jobs[f]
	j.Status = InFlight
	j.Artifact = nil
	j.Size = 0
	j.Error = ""
	j.Updated = time.Now()
	c.progress.store(50)
	c.mu.Unlock()

	c.progress.notify()
	return seq
}

func (c *Coordinator) end(seq uint64) {
	c.lock.Release()
	c.afterFunc(c.settle, func() {
		c.mu.Lock()
		if c.seq != seq {
			c.mu.Unlock()
			return
		}
		c.progress.store(0)
		c.mu.Unlock()

		c.progress.notify()
	})
}

func (c *Coordinator) update(f Format, status Status, data []byte, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	j := c.jobs[f]
	j.Status = status
	j.Artifact = data
	j.Size = len(data)
	j.Error = ""
	if err != nil {
		j.Error = err.Error()
	}
	j.Updated = time.Now()
}

func (c *Coordinator) record(ctx context.Context, f Format, p music.Params, status Status, size int, err error, started time.Time) {
	if c.journal == nil {
		return
	}
	r := &Record{
		Format:   f,
		Params:   p,
		Status:   status,
		Size:     size,
		Started:  started,
		Finished: time.Now(),
	}
	if err != nil {
		r.Error = err.Error()
	}
	if err := c.journal.RecordJob(ctx, r); err != nil {
		log.Printf("generation: couldn't record %s job: %v\n", f.Name(), err)
	}
}

func (c *Coordinator) save(ctx context.Context, f Format, data []byte) error {
	if c.downloader == nil {
		return nil
	}
	name := f.Filename()
	if err := c.downloader.Save(ctx, name, data); err != nil {
		c.notifier.Alert(fmt.Sprintf("Failed to download %s", f.Name()))
		return fmt.Errorf("generation: couldn't save %s: %w", name, err)
	}
	c.log("generation: saved %s", name)
	return nil
}

// Download hands the last successful artifact of f to the downloader again.
func (c *Coordinator) Download(ctx context.Context, f Format) error {
	j := c.Job(f)
	if j.Artifact == nil {
		return fmt.Errorf("generation: %s: %w", f.Name(), ErrNoArtifact)
	}
	return c.save(ctx, f, j.Artifact)
}

// Job returns a snapshot of the job for f.
func (c *Coordinator) Job(f Format) Job {
	c.mu.Lock()
	defer c.mu.Unlock()
	j, ok := c.jobs[f]
	if !ok {
		return Job{Format: f, Status: Idle}
	}
	return *j
}

func (c *Coordinator) Jobs() []Job {
	c.mu.Lock()
	defer c.mu.Unlock()
	var jobs []Job
	for _, f := range Formats {
		jobs = append(jobs, *c.jobs[f])
	}
	return jobs
}

func (c *Coordinator) Progress() int {
	return c.progress.Value()
}

// ControlsEnabled reports whether new requests may be triggered.
func (c *Coordinator) ControlsEnabled() bool {
	return !c.lock.Held()
}

type logNotifier struct{}

func (logNotifier) Alert(msg string) {
	log.Println(msg)
}
