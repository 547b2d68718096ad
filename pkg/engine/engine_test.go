package engine

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/igolaizola/melodai/pkg/generation"
	"github.com/igolaizola/melodai/pkg/music"
)

var params = music.Params{Key: "G", Scale: music.Minor, Tempo: 90, Genre: "jazz"}

func TestGenerate(t *testing.T) {
	tests := []struct {
		name   string
		format generation.Format
		path   string
		ctype  string
	}{
		{"midi", generation.MIDI, "/generate", "audio/midi"},
		{"mp3", generation.MP3, "/generate/mp3", "audio/mpeg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("method = %s; want POST", r.Method)
				}
				if r.URL.Path != tt.path {
					t.Errorf("path = %s; want %s", r.URL.Path, tt.path)
				}
				q := r.URL.Query()
				want := map[string]string{
					"key":    "G",
					"scale":  "minor",
					"tempo":  "90",
					"genre":  "jazz",
					"format": tt.name,
				}
				for k, v := range want {
					if got := q.Get(k); got != v {
						t.Errorf("query %s = %q; want %q", k, got, v)
					}
				}
				w.Header().Set("Content-Type", tt.ctype)
				_, _ = w.Write([]byte("artifact"))
			}))
			defer srv.Close()

			c, err := New(&Config{BaseURL: srv.URL})
			if err != nil {
				t.Fatal(err)
			}
			data, err := c.Generate(context.Background(), params, tt.format)
			if err != nil {
				t.Fatalf("Generate() err = %v; want nil", err)
			}
			if string(data) != "artifact" {
				t.Fatalf("Generate() = %q; want artifact", data)
			}
		})
	}
}

func TestGenerateStatusError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, `{"error": "boom"}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := New(&Config{BaseURL: srv.URL + "/"})
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.Generate(context.Background(), params, generation.MIDI)
	var serr *StatusError
	if !errors.As(err, &serr) {
		t.Fatalf("Generate() err = %v; want *StatusError", err)
	}
	if serr.StatusCode() != http.StatusInternalServerError {
		t.Fatalf("status = %d; want 500", serr.StatusCode())
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("calls = %d; want 1, no retry", n)
	}
}

func TestCoordinatorAgainstFailingEngine(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := New(&Config{BaseURL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	notifier := &recordNotifier{}
	coord := generation.New(c, &generation.Config{Notifier: notifier})
	_, err = coord.Request(context.Background(), params, generation.MIDI)
	var rerr *generation.RequestError
	if !errors.As(err, &rerr) || rerr.Status != http.StatusInternalServerError {
		t.Fatalf("Request() err = %v; want RequestError with status 500", err)
	}
	if len(notifier.alerts) != 1 || notifier.alerts[0] != "Failed to generate MIDI" {
		t.Fatalf("alerts = %v", notifier.alerts)
	}
	if j := coord.Job(generation.MIDI); j.Status != generation.Failed || j.Artifact != nil {
		t.Fatalf("job = %+v; want failed without artifact", j)
	}
	if !coord.ControlsEnabled() {
		t.Fatal("controls disabled after failure")
	}
}

type recordNotifier struct {
	alerts []string
}

func (n *recordNotifier) Alert(msg string) {
	n.alerts = append(n.alerts, msg)
}

func TestCustomPaths(t *testing.T) {
	c, err := New(&Config{BaseURL: "http://localhost:5000", MIDIPath: "midi", MP3Path: "/mp3/"})
	if err != nil {
		t.Fatal(err)
	}
	u, err := c.URL(params, generation.MIDI)
	if err != nil {
		t.Fatal(err)
	}
	want := "http://localhost:5000/midi?format=midi&genre=jazz&key=G&scale=minor&tempo=90"
	if u != want {
		t.Fatalf("URL() = %s; want %s", u, want)
	}
	if _, err := New(&Config{BaseURL: "localhost"}); err == nil {
		t.Fatal("New() with invalid base url err = nil; want error")
	}
}

func TestAccepted(t *testing.T) {
	tests := []struct {
		format generation.Format
		ctype  string
		want   bool
	}{
		{generation.MIDI, "audio/midi", true},
		{generation.MIDI, "audio/mpeg", false},
		{generation.MP3, "audio/mpeg; charset=binary", true},
		{generation.MP3, "application/octet-stream", true},
		{generation.MP3, "text/html", false},
		{generation.MIDI, "", true},
	}
	for _, tt := range tests {
		if got := accepted(tt.format, tt.ctype); got != tt.want {
			t.Errorf("accepted(%s, %q) = %v; want %v", tt.format, tt.ctype, got, tt.want)
		}
	}
}
