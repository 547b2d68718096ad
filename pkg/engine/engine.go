package engine

import (
	"context"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/igolaizola/melodai/pkg/generation"
	"github.com/igolaizola/melodai/pkg/music"
)

const (
	DefaultMIDIPath = "/generate"
	DefaultMP3Path  = "/generate/mp3"
)

type Config struct {
	BaseURL  string
	MIDIPath string
	MP3Path  string
	Proxy    string
	// Timeout for each request, zero means no timeout.
	Timeout time.Duration
	Debug   bool
	Client  *http.Client
}

// StatusError is returned for any non-success response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("engine: unexpected status %d", e.Code)
	}
	return fmt.Sprintf("engine: unexpected status %d: %s", e.Code, e.Body)
}

func (e *StatusError) StatusCode() int {
	return e.Code
}

// Client talks to the remote generation service.
type Client struct {
	client  *http.Client
	baseURL string
	paths   map[generation.Format]string
	debug   bool
}

func New(cfg *Config) (*Client, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("engine: invalid base url %q", cfg.BaseURL)
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{
			Timeout: cfg.Timeout,
		}
		if cfg.Proxy != "" {
			u, err := url.Parse(cfg.Proxy)
			if err != nil {
				return nil, fmt.Errorf("engine: invalid proxy URL: %w", err)
			}
			client.Transport = &http.Transport{
				Proxy: http.ProxyURL(u),
			}
		}
	}
	midiPath := cfg.MIDIPath
	if midiPath == "" {
		midiPath = DefaultMIDIPath
	}
	mp3Path := cfg.MP3Path
	if mp3Path == "" {
		mp3Path = DefaultMP3Path
	}
	return &Client{
		client:  client,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		paths: map[generation.Format]string{
			generation.MIDI: "/" + strings.TrimLeft(midiPath, "/"),
			generation.MP3:  "/" + strings.TrimLeft(mp3Path, "/"),
		},
		debug: cfg.Debug,
	}, nil
}

func (c *Client) log(format string, args ...interface{}) {
	if c.debug {
		format += "\n"
		log.Printf(format, args...)
	}
}

// URL returns the request URL for p and f.
func (c *Client) URL(p music.Params, f generation.Format) (string, error) {
	path, ok := c.paths[f]
	if !ok {
		return "", fmt.Errorf("engine: unsupported format %q", f)
	}
	q := url.Values{}
	for k, v := range p.Query() {
		q.Set(k, v)
	}
	q.Set("format", string(f))
	return fmt.Sprintf("%s%s?%s", c.baseURL, path, q.Encode()), nil
}

// Generate issues one generation request and returns the binary payload.
func (c *Client) Generate(ctx context.Context, p music.Params, f generation.Format) ([]byte, error) {
	u, err := c.URL(p, f)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return nil, fmt.Errorf("engine: couldn't create request: %w", err)
	}
	req.Header.Set("Accept", f.ContentType())

	c.log("engine: POST %s", u)
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("engine: couldn't do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("engine: couldn't read response: %w", err)
	}
	if ct := resp.Header.Get("Content-Type"); !accepted(f, ct) {
		c.log("engine: unexpected content type %q for %s", ct, f.Name())
	}
	c.log("engine: %s received (%d bytes)", f.Name(), len(data))
	return data, nil
}

func accepted(f generation.Format, contentType string) bool {
	if contentType == "" {
		return true
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	switch mt {
	case "application/octet-stream":
		return true
	case "audio/midi", "audio/x-midi", "audio/mid":
		return f == generation.MIDI
	case "audio/mpeg", "audio/mp3":
		return f == generation.MP3
	default:
		return false
	}
}
