package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/igolaizola/melodai/pkg/music"
)

type statusErr int

func (e statusErr) Error() string   { return fmt.Sprintf("status %d", int(e)) }
func (e statusErr) StatusCode() int { return int(e) }

type fakeRequester struct {
	mu      sync.Mutex
	calls   int
	data    []byte
	err     error
	started chan struct{}
	release chan struct{}
}

func (r *fakeRequester) Generate(ctx context.Context, p music.Params, f Format) ([]byte, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	if r.started != nil {
		r.started <- struct{}{}
	}
	if r.release != nil {
		<-r.release
	}
	return r.data, r.err
}

func (r *fakeRequester) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type fakeDownloader struct {
	names []string
	err   error
}

func (d *fakeDownloader) Save(ctx context.Context, name string, data []byte) error {
	d.names = append(d.names, name)
	return d.err
}

type fakeNotifier struct {
	alerts []string
}

func (n *fakeNotifier) Alert(msg string) {
	n.alerts = append(n.alerts, msg)
}

type fakeJournal struct {
	records []*Record
}

func (j *fakeJournal) RecordJob(ctx context.Context, r *Record) error {
	j.records = append(j.records, r)
	return nil
}

// settler captures delayed callbacks so tests can fire them explicitly.
type settler struct {
	mu    sync.Mutex
	delay []time.Duration
	fns   []func()
}

func (s *settler) afterFunc(d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = append(s.delay, d)
	s.fns = append(s.fns, fn)
}

func (s *settler) fire() {
	s.mu.Lock()
	fns := s.fns
	s.fns = nil
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

var gMinor = music.Params{Key: "G", Scale: music.Minor, Tempo: 90, Genre: "jazz"}

func newTest(r Requester, cfg *Config) (*Coordinator, *settler) {
	c := New(r, cfg)
	s := &settler{}
	c.afterFunc = s.afterFunc
	return c, s
}

func TestRequestSuccess(t *testing.T) {
	tests := []struct {
		format Format
		want   string
	}{
		{MIDI, "generated_music.mid"},
		{MP3, "generated_music.mp3"},
	}
	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			req := &fakeRequester{data: []byte("payload")}
			down := &fakeDownloader{}
			journal := &fakeJournal{}
			var progress []int
			c, s := newTest(req, &Config{
				Downloader: down,
				Journal:    journal,
				OnProgress: func(v int) { progress = append(progress, v) },
			})

			data, err := c.Request(context.Background(), gMinor, tt.format)
			if err != nil {
				t.Fatalf("Request() err = %v; want nil", err)
			}
			if string(data) != "payload" {
				t.Fatalf("Request() = %q; want payload", data)
			}
			if len(down.names) != 1 || !strings.HasSuffix(down.names[0], "."+tt.format.Ext()) || down.names[0] != tt.want {
				t.Fatalf("downloaded %v; want [%s]", down.names, tt.want)
			}
			j := c.Job(tt.format)
			if j.Status != Succeeded || string(j.Artifact) != "payload" {
				t.Fatalf("job = %+v; want succeeded with artifact", j)
			}
			if !c.ControlsEnabled() {
				t.Fatal("controls disabled after request")
			}
			if c.Progress() != 100 {
				t.Fatalf("Progress() = %d; want 100 before settle", c.Progress())
			}
			if len(s.delay) != 1 || s.delay[0] != time.Second {
				t.Fatalf("settle delays = %v; want [1s]", s.delay)
			}
			s.fire()
			if c.Progress() != 0 {
				t.Fatalf("Progress() = %d; want 0 after settle", c.Progress())
			}
			if got := fmt.Sprint(progress); got != "[50 100 0]" {
				t.Fatalf("progress = %s; want [50 100 0]", got)
			}
			if len(journal.records) != 1 || journal.records[0].Status != Succeeded || journal.records[0].Size != 7 {
				t.Fatalf("journal = %+v; want one succeeded record", journal.records)
			}
		})
	}
}

func TestRequestBusy(t *testing.T) {
	req := &fakeRequester{
		data:    []byte("midi"),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	c, _ := newTest(req, nil)

	errC := make(chan error, 1)
	go func() {
		_, err := c.Request(context.Background(), gMinor, MIDI)
		errC <- err
	}()
	<-req.started

	if c.ControlsEnabled() {
		t.Fatal("controls enabled while request in flight")
	}
	if j := c.Job(MIDI); j.Status != InFlight {
		t.Fatalf("job status = %s; want in_flight", j.Status)
	}
	if c.Progress() != 50 {
		t.Fatalf("Progress() = %d; want 50", c.Progress())
	}
	for _, f := range Formats {
		if _, err := c.Request(context.Background(), gMinor, f); !errors.Is(err, ErrBusy) {
			t.Fatalf("Request(%s) err = %v; want ErrBusy", f, err)
		}
	}
	if n := req.count(); n != 1 {
		t.Fatalf("outbound requests = %d; want 1", n)
	}

	close(req.release)
	if err := <-errC; err != nil {
		t.Fatalf("first Request() err = %v; want nil", err)
	}
	if !c.ControlsEnabled() {
		t.Fatal("controls disabled after request")
	}
}

func TestRequestFailure(t *testing.T) {
	req := &fakeRequester{err: statusErr(500)}
	down := &fakeDownloader{}
	notifier := &fakeNotifier{}
	c, s := newTest(req, &Config{Downloader: down, Notifier: notifier})

	_, err := c.Request(context.Background(), gMinor, MIDI)
	var rerr *RequestError
	if !errors.As(err, &rerr) {
		t.Fatalf("Request() err = %v; want *RequestError", err)
	}
	if rerr.Status != 500 || rerr.Format != MIDI {
		t.Fatalf("RequestError = %+v; want MIDI 500", rerr)
	}
	j := c.Job(MIDI)
	if j.Status != Failed || j.Artifact != nil {
		t.Fatalf("job = %+v; want failed without artifact", j)
	}
	if len(down.names) != 0 {
		t.Fatalf("downloaded %v; want nothing", down.names)
	}
	if len(notifier.alerts) != 1 || !strings.Contains(notifier.alerts[0], "MIDI") {
		t.Fatalf("alerts = %v; want one mentioning MIDI", notifier.alerts)
	}
	if !c.ControlsEnabled() {
		t.Fatal("controls disabled after failure")
	}
	s.fire()
	if c.Progress() != 0 {
		t.Fatalf("Progress() = %d; want 0 after settle", c.Progress())
	}
}

func TestFailureClearsPreviousArtifact(t *testing.T) {
	req := &fakeRequester{data: []byte("first")}
	c, _ := newTest(req, nil)
	if _, err := c.Request(context.Background(), gMinor, MP3); err != nil {
		t.Fatal(err)
	}
	req.data, req.err = nil, errors.New("connection refused")
	if _, err := c.Request(context.Background(), gMinor, MP3); err == nil {
		t.Fatal("Request() err = nil; want error")
	}
	if j := c.Job(MP3); j.Status != Failed || j.Artifact != nil {
		t.Fatalf("job = %+v; want failed without artifact", j)
	}
	if err := c.Download(context.Background(), MP3); !errors.Is(err, ErrNoArtifact) {
		t.Fatalf("Download() err = %v; want ErrNoArtifact", err)
	}
}

func TestRequestValidation(t *testing.T) {
	req := &fakeRequester{data: []byte("x")}
	c, s := newTest(req, nil)
	bad := gMinor
	bad.Tempo = 0
	if _, err := c.Request(context.Background(), bad, MIDI); !errors.Is(err, music.ErrInvalidParams) {
		t.Fatalf("Request() err = %v; want ErrInvalidParams", err)
	}
	if _, err := c.Request(context.Background(), gMinor, Format("wav")); !errors.Is(err, music.ErrInvalidParams) {
		t.Fatalf("Request(wav) err = %v; want ErrInvalidParams", err)
	}
	if req.count() != 0 {
		t.Fatalf("outbound requests = %d; want 0", req.count())
	}
	if !c.ControlsEnabled() || len(s.fns) != 0 {
		t.Fatal("validation failure touched the lock")
	}
	if j := c.Job(MIDI); j.Status != Idle {
		t.Fatalf("job status = %s; want idle", j.Status)
	}
}

func TestSettleSkipsNewerRequest(t *testing.T) {
	req := &fakeRequester{data: []byte("x")}
	c, s := newTest(req, nil)
	if _, err := c.Request(context.Background(), gMinor, MIDI); err != nil {
		t.Fatal(err)
	}
	first := s.fns[0]
	s.fns = nil

	req.started = make(chan struct{})
	req.release = make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.Request(context.Background(), gMinor, MP3)
	}()
	<-req.started
	first()
	if c.Progress() != 50 {
		t.Fatalf("Progress() = %d; want 50 while second request in flight", c.Progress())
	}
	close(req.release)
	<-done
}

func TestDownloadFailure(t *testing.T) {
	req := &fakeRequester{data: []byte("x")}
	down := &fakeDownloader{err: errors.New("disk full")}
	notifier := &fakeNotifier{}
	c, _ := newTest(req, &Config{Downloader: down, Notifier: notifier})
	data, err := c.Request(context.Background(), gMinor, MIDI)
	if err == nil {
		t.Fatal("Request() err = nil; want download error")
	}
	if string(data) != "x" {
		t.Fatalf("Request() = %q; want the generated artifact", data)
	}
	if len(notifier.alerts) != 1 || notifier.alerts[0] != "Failed to download MIDI" {
		t.Fatalf("alerts = %v", notifier.alerts)
	}
	if j := c.Job(MIDI); j.Status != Succeeded {
		t.Fatalf("job status = %s; want succeeded", j.Status)
	}
	down.err = nil
	if err := c.Download(context.Background(), MIDI); err != nil {
		t.Fatalf("Download() err = %v; want nil", err)
	}
	if len(down.names) != 2 || down.names[1] != "generated_music.mid" {
		t.Fatalf("downloaded %v", down.names)
	}
}

func TestProgressHookReadsCoordinator(t *testing.T) {
	req := &fakeRequester{data: []byte("x")}
	var c *Coordinator
	var mu sync.Mutex
	var seen []Status
	c, s := newTest(req, &Config{
		OnProgress: func(v int) {
			j := c.Job(MIDI)
			_ = c.Jobs()
			mu.Lock()
			seen = append(seen, j.Status)
			mu.Unlock()
		},
	})

	done := make(chan error, 1)
	go func() {
		_, err := c.Request(context.Background(), gMinor, MIDI)
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Request() err = %v; want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Request() didn't return while the progress hook read the coordinator")
	}

	fired := make(chan struct{})
	go func() {
		s.fire()
		close(fired)
	}()
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("settle reset didn't return while the progress hook read the coordinator")
	}

	if !c.ControlsEnabled() || c.Progress() != 0 {
		t.Fatalf("controls enabled = %v, progress = %d; want true, 0", c.ControlsEnabled(), c.Progress())
	}
	mu.Lock()
	defer mu.Unlock()
	if got := fmt.Sprint(seen); got != "[in_flight succeeded succeeded]" {
		t.Fatalf("statuses seen by hook = %s", got)
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
	}{
		{"midi", MIDI},
		{"MID", MIDI},
		{"mp3", MP3},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if err != nil || got != tt.want {
			t.Fatalf("ParseFormat(%q) = %s, %v; want %s", tt.in, got, err, tt.want)
		}
	}
	if _, err := ParseFormat("wav"); err == nil {
		t.Fatal("ParseFormat(wav) err = nil; want error")
	}
}
