// Package server renders chart configurations over HTTP.
package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/golang/groupcache/lru"
	"github.com/user/chartjs-node-go/internal/cache"
	"github.com/user/chartjs-node-go/internal/dom"
	"github.com/user/chartjs-node-go/pkg/canvas"
	"github.com/user/chartjs-node-go/pkg/chartjs"
	"github.com/user/chartjs-node-go/pkg/chartnode"
)

const (
	defaultWidth    = 800
	defaultHeight   = 600
	defaultMemoSize = 128
	maxBodyBytes    = 10 << 20
)

// Options configures a Server.
type Options struct {
	// Library draws the charts; chartjs.Default when nil.
	Library *chartjs.Library
	Logger  *slog.Logger
	// MemoSize bounds the in-memory render memo.
	MemoSize int
	// Store, when set, persists renders across restarts.
	Store *cache.Store
	// FontDir is the only directory options.fonts may load from. Requests
	// naming fonts are rejected when it is empty.
	FontDir string
}

// Server renders charts on request. Renders are serialized because every
// chart session installs its window into the library's global namespace.
type Server struct {
	lib    *chartjs.Library
	logger *slog.Logger
	store   *cache.Store
	fontDir string
	mux     *http.ServeMux

	mu   sync.Mutex
	memo *lru.Cache
}

// New returns a server.
func New(opts Options) *Server {
	s := &Server{
		lib:    opts.Library,
		logger: opts.Logger,
		store:   opts.Store,
		fontDir: opts.FontDir,
		mux:     http.NewServeMux(),
	}
	if s.lib == nil {
		s.lib = chartjs.Default
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	size := opts.MemoSize
	if size <= 0 {
		size = defaultMemoSize
	}
	s.memo = lru.New(size)
	s.mux.HandleFunc("POST /render", s.handleRender)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /types", s.handleTypes)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

type renderParams struct {
	width, height int
	ratio         float64
	mime          string
}

func parseParams(r *http.Request) (renderParams, error) {
	q := r.URL.Query()
	p := renderParams{width: defaultWidth, height: defaultHeight, ratio: 1, mime: canvas.MimePNG}
	var err error
	if v := q.Get("width"); v != "" {
		if p.width, err = strconv.Atoi(v); err != nil {
			return p, fmt.Errorf("invalid width %q", v)
		}
	}
	if v := q.Get("height"); v != "" {
		if p.height, err = strconv.Atoi(v); err != nil {
			return p, fmt.Errorf("invalid height %q", v)
		}
	}
	if v := q.Get("ratio"); v != "" {
		if p.ratio, err = strconv.ParseFloat(v, 64); err != nil || p.ratio <= 0 {
			return p, fmt.Errorf("invalid ratio %q", v)
		}
	}
	if v := q.Get("type"); v != "" {
		p.mime = v
	}
	if !canvas.Supported(p.mime) {
		return p, fmt.Errorf("%w: %s", canvas.ErrUnsupportedType, p.mime)
	}
	return p, nil
}

// errFontPath is returned for a requested font outside the font directory.
var errFontPath = errors.New("font path not allowed")

// resolveFonts rewrites the configuration's font paths into the server's
// font directory, rejecting any path that would leave it.
func (s *Server) resolveFonts(cfg *chartjs.Configuration) error {
	if cfg.Options == nil || len(cfg.Options.Fonts) == 0 {
		return nil
	}
	if s.fontDir == "" {
		return fmt.Errorf("%w: server has no font directory", errFontPath)
	}
	for i, f := range cfg.Options.Fonts {
		if !filepath.IsLocal(f.Path) {
			return fmt.Errorf("%w: %q", errFontPath, f.Path)
		}
		cfg.Options.Fonts[i].Path = filepath.Join(s.fontDir, f.Path)
	}
	return nil
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	p, err := parseParams(r)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, canvas.ErrUnsupportedType) {
			status = http.StatusUnsupportedMediaType
		}
		http.Error(w, err.Error(), status)
		return
	}

	var cfg chartjs.Configuration
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&cfg); err != nil {
		http.Error(w, fmt.Sprintf("invalid chart configuration: %v", err), http.StatusBadRequest)
		return
	}
	if err := s.resolveFonts(&cfg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	key, err := cache.Key(&cfg, p.width, p.height, p.ratio, p.mime)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if data, ok := s.lookup(key); ok {
		s.logger.Debug("render served from cache", "key", key[:12])
		writeImage(w, p.mime, bytes.NewReader(data), len(data), "HIT")
		return
	}

	node := chartnode.New(p.width, p.height,
		chartnode.WithLibrary(s.lib),
		chartnode.WithDevicePixelRatio(p.ratio),
		chartnode.WithLogger(s.logger))
	defer node.Destroy()

	if _, err := node.DrawChart(&cfg); err != nil {
		s.logger.Warn("render failed", "type", cfg.Type, "error", err)
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	stream, err := node.GetImageStream(p.mime)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	var buf bytes.Buffer
	buf.Grow(stream.Len())
	if err := writeImage(w, p.mime, io.TeeReader(stream, &buf), stream.Len(), "MISS"); err != nil {
		s.logger.Warn("failed to write response", "error", err)
		return
	}
	s.remember(key, p, buf.Bytes())
	s.logger.Info("chart rendered", "type", cfg.Type, "mime", p.mime, "bytes", stream.Len())
}

func (s *Server) lookup(key string) ([]byte, bool) {
	if v, ok := s.memo.Get(key); ok {
		return v.([]byte), true
	}
	if s.store == nil || !s.store.Exists(key) {
		return nil, false
	}
	e, err := s.store.Load(key)
	if err != nil {
		s.logger.Warn("failed to load cached render", "error", err)
		return nil, false
	}
	s.memo.Add(key, e.Data)
	return e.Data, true
}

func (s *Server) remember(key string, p renderParams, data []byte) {
	s.memo.Add(key, data)
	if s.store == nil {
		return
	}
	e := &cache.Entry{Key: key, Type: p.mime, Width: p.width, Height: p.height, Ratio: p.ratio, Data: data}
	if err := s.store.Save(e); err != nil {
		s.logger.Warn("failed to save render", "error", err)
	}
}

func writeImage(w http.ResponseWriter, mime string, r io.Reader, n int, cacheStatus string) error {
	w.Header().Set("Content-Type", mime)
	w.Header().Set("Content-Length", strconv.Itoa(n))
	w.Header().Set("X-Cache", cacheStatus)
	w.WriteHeader(http.StatusOK)
	_, err := io.Copy(w, r)
	return err
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, chartjs.ErrUnknownChartType),
		errors.Is(err, chartjs.ErrControllerCycle),
		errors.Is(err, chartjs.ErrDrawFailed),
		errors.Is(err, canvas.ErrBackendUnsupported),
		errors.Is(err, dom.ErrInvalidDimensions),
		errors.Is(err, canvas.ErrFontRegistration):
		return http.StatusUnprocessableEntity
	case errors.Is(err, canvas.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType
	}
	return http.StatusInternalServerError
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, "ok\n")
}

func (s *Server) handleTypes(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string][]string{
		"chartTypes": s.lib.Types(),
		"imageTypes": canvas.Types(),
	})
}
