package server

import (
	"bytes"
	"encoding/json"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font/gofont/goregular"
	"github.com/user/chartjs-node-go/internal/cache"
	"github.com/user/chartjs-node-go/internal/global"
	"github.com/user/chartjs-node-go/pkg/chartjs"
)

const pieConfig = `{
  "type": "pie",
  "data": {
    "labels": ["Red", "Blue", "Yellow"],
    "datasets": [{"data": [300, 50, 100], "backgroundColor": ["#ff6384", "#36a2eb", "#ffce56"]}]
  }
}`

func newTestServer(t *testing.T, opts Options) (*httptest.Server, *global.Namespace) {
	t.Helper()
	ns := global.New()
	opts.Library = chartjs.NewLibrary(ns)
	ts := httptest.NewServer(New(opts))
	t.Cleanup(ts.Close)
	return ts, ns
}

func post(t *testing.T, ts *httptest.Server, query, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(ts.URL+"/render"+query, "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestRenderPNG(t *testing.T) {
	ts, ns := newTestServer(t, Options{})

	resp := post(t, ts, "?width=320&height=240", pieConfig)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.Equal(t, "MISS", resp.Header.Get("X-Cache"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(len(body)), resp.Header.Get("Content-Length"))

	cfg, err := png.DecodeConfig(bytes.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, 320, cfg.Width)
	assert.Equal(t, 240, cfg.Height)
	assert.Zero(t, ns.Len(), "globals are removed after each render")

	again := post(t, ts, "?width=320&height=240", pieConfig)
	require.Equal(t, http.StatusOK, again.StatusCode)
	assert.Equal(t, "HIT", again.Header.Get("X-Cache"))
	cached, err := io.ReadAll(again.Body)
	require.NoError(t, err)
	assert.Equal(t, body, cached)
}

func TestRenderRatioAndType(t *testing.T) {
	ts, _ := newTestServer(t, Options{})

	resp := post(t, ts, "?width=100&height=50&ratio=2", pieConfig)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cfg, err := png.DecodeConfig(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, cfg.Width)

	resp = post(t, ts, "?width=100&height=50&type=image/svg%2Bxml", pieConfig)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/svg+xml", resp.Header.Get("Content-Type"))
}

func TestRenderErrors(t *testing.T) {
	ts, ns := newTestServer(t, Options{})
	tests := []struct {
		name   string
		query  string
		body   string
		status int
	}{
		{"bad width", "?width=wide", pieConfig, http.StatusBadRequest},
		{"bad ratio", "?ratio=0", pieConfig, http.StatusBadRequest},
		{"bad type", "?type=image/webp", pieConfig, http.StatusUnsupportedMediaType},
		{"bad body", "", "{", http.StatusBadRequest},
		{"unknown chart", "", `{"type": "radar"}`, http.StatusUnprocessableEntity},
		{"zero size", "?width=0", pieConfig, http.StatusUnprocessableEntity},
		{"empty pie", "", `{"type": "pie", "data": {"datasets": [{"data": [0]}]}}`, http.StatusInternalServerError},
		{"pie as eps", "?type=application/postscript", pieConfig, http.StatusUnprocessableEntity},
		{"bad latex", "", `{"type": "line", "data": {"datasets": [{"label": "$x^2$", "data": [1, 2]}]}, "options": {"latexText": true}}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := post(t, ts, tt.query, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
	assert.Zero(t, ns.Len())
}

func TestRenderPersistsToStore(t *testing.T) {
	store := cache.New(filepath.Join(t.TempDir(), "cache"))
	ts, _ := newTestServer(t, Options{Store: store, MemoSize: 1})

	resp := post(t, ts, "?width=60&height=60", pieConfig)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var cfg chartjs.Configuration
	require.NoError(t, json.Unmarshal([]byte(pieConfig), &cfg))
	key, err := cache.Key(&cfg, 60, 60, 1, "image/png")
	require.NoError(t, err)
	require.True(t, store.Exists(key))
	e, err := store.Load(key)
	require.NoError(t, err)
	assert.Equal(t, body, e.Data)

	// A second server sharing the store serves the render without drawing.
	ts2, _ := newTestServer(t, Options{Store: store})
	resp = post(t, ts2, "?width=60&height=60", pieConfig)
	assert.Equal(t, "HIT", resp.Header.Get("X-Cache"))
}

func TestHealthAndTypes(t *testing.T) {
	ts, _ := newTestServer(t, Options{})

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/types")
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string][]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Contains(t, out["chartTypes"], "doughnut")
	assert.Contains(t, out["imageTypes"], "image/png")

	resp, err = http.Get(ts.URL + "/render")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestRenderFontPaths(t *testing.T) {
	withFont := func(path string) string {
		return `{"type": "pie", "data": {"datasets": [{"data": [1, 2]}]},
		  "options": {"defaultFontFamily": "Served", "fonts": [{"path": "` + path + `", "family": "Served"}]}}`
	}

	ts, _ := newTestServer(t, Options{})
	resp := post(t, ts, "?width=50&height=50", withFont("go.ttf"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "fonts are refused without a font directory")

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.ttf"), goregular.TTF, 0o644))
	ts, ns := newTestServer(t, Options{FontDir: dir})

	for _, path := range []string{"../go.ttf", "/etc/passwd", "sub/../../go.ttf"} {
		resp = post(t, ts, "?width=50&height=50", withFont(path))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, path)
	}

	resp = post(t, ts, "?width=50&height=50", withFont("go.ttf"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Zero(t, ns.Len())
}
