package chartnode

import (
	"bytes"
	"errors"
	"image/color"
	"image/png"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/h2non/filetype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/chartjs-node-go/internal/dom"
	"github.com/user/chartjs-node-go/internal/global"
	"github.com/user/chartjs-node-go/pkg/canvas"
	"github.com/user/chartjs-node-go/pkg/chartjs"
)

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

func newTestNode(t *testing.T, w, h int, opts ...Option) (*Node, *global.Namespace) {
	t.Helper()
	ns := global.New()
	opts = append([]Option{WithLibrary(chartjs.NewLibrary(ns))}, opts...)
	n := New(w, h, opts...)
	t.Cleanup(n.Destroy)
	return n, ns
}

func barConfig() *chartjs.Configuration {
	return &chartjs.Configuration{
		Type: "bar",
		Data: chartjs.Data{
			Labels: []string{"Red", "Blue", "Yellow", "Green", "Purple", "Orange"},
			Datasets: []*chartjs.Dataset{{
				Label:           "# of Votes",
				Data:            chartjs.Values(12, 19, 3, 5, 2, 3),
				BackgroundColor: chartjs.Colors{"rgba(255, 99, 132, 0.2)", "rgba(54, 162, 235, 0.2)"},
				BorderColor:     chartjs.Colors{"rgba(255,99,132,1)"},
				BorderWidth:     1,
			}},
		},
		Options: &chartjs.Options{
			Responsive: true,
			Scales:     chartjs.Scales{YAxes: []chartjs.Axis{{Ticks: chartjs.Ticks{BeginAtZero: true}}}},
		},
	}
}

func TestNewNode(t *testing.T) {
	n := New(600, 400, WithDevicePixelRatio(-1))
	assert.Equal(t, 600, n.Width())
	assert.Equal(t, 400, n.Height())
	assert.Equal(t, 1.0, n.DevicePixelRatio())
	assert.Same(t, chartjs.Default, n.Library())
	assert.Equal(t, StateIdle, n.State())
	assert.Equal(t, "idle", n.State().String())
}

func TestDrawChartPNG(t *testing.T) {
	n, ns := newTestNode(t, 600, 600)

	chart, err := n.DrawChart(barConfig())
	require.NoError(t, err)
	require.NotNil(t, chart)
	assert.Equal(t, StateReady, n.State())
	assert.Same(t, chart, n.Chart())
	assert.True(t, ns.Defined("document"))
	assert.True(t, ns.Defined("window"))

	buf, err := n.GetImageBuffer(canvas.MimePNG)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(buf, pngSignature))

	cfg, err := png.DecodeConfig(bytes.NewReader(buf))
	require.NoError(t, err)
	assert.Equal(t, 600, cfg.Width)
	assert.Equal(t, 600, cfg.Height)
}

func TestDrawChartForcesStaticOptions(t *testing.T) {
	n, _ := newTestNode(t, 320, 240)
	cfg := barConfig()

	chart, err := n.DrawChart(cfg)
	require.NoError(t, err)

	drawn := chart.Config().Options
	assert.False(t, drawn.Responsive)
	assert.Equal(t, false, drawn.Animation)
	assert.Equal(t, 320, drawn.Width)
	assert.Equal(t, 240, drawn.Height)
	assert.True(t, cfg.Options.Responsive, "caller's configuration is left unchanged")
}

func TestDestroyRemovesOnlyAddedGlobals(t *testing.T) {
	n, ns := newTestNode(t, 200, 200)
	ns.Set("navigator", "pre-existing")
	ns.Set("unrelated", 42)

	_, err := n.DrawChart(barConfig())
	require.NoError(t, err)
	assert.Greater(t, ns.Len(), 2)

	n.Destroy()
	assert.Equal(t, StateDestroyed, n.State())
	assert.Equal(t, []string{"navigator", "unrelated"}, ns.Names())
	v, _ := ns.Get("navigator")
	assert.Equal(t, "pre-existing", v)

	n.Destroy()
	assert.Equal(t, 2, ns.Len())
}

func TestDestroyWithoutSession(t *testing.T) {
	n, ns := newTestNode(t, 10, 10)
	n.Destroy()
	n.Destroy()
	assert.Equal(t, StateIdle, n.State())
	assert.Zero(t, ns.Len())
}

func TestDrawChartTwiceKeepsOneSet(t *testing.T) {
	n, ns := newTestNode(t, 200, 200)

	_, err := n.DrawChart(barConfig())
	require.NoError(t, err)
	names := ns.Names()

	_, err = n.DrawChart(barConfig())
	require.NoError(t, err)
	assert.Equal(t, names, ns.Names())

	n.Destroy()
	assert.Zero(t, ns.Len())
}

func TestGetImageStream(t *testing.T) {
	n, _ := newTestNode(t, 600, 600)
	_, err := n.DrawChart(barConfig())
	require.NoError(t, err)

	buf, err := n.GetImageBuffer(canvas.MimePNG)
	require.NoError(t, err)

	s, err := n.GetImageStream(canvas.MimePNG)
	require.NoError(t, err)
	assert.Greater(t, s.Len(), 0)
	assert.Equal(t, len(buf), s.Len())

	chunk := make([]byte, 8192)
	k, err := s.Read(chunk)
	require.NoError(t, err)
	assert.Equal(t, streamChunkSize, k)

	rest, err := io.ReadAll(s)
	require.NoError(t, err)
	assert.Equal(t, buf, append(chunk[:k:k], rest...))

	k, err = s.Read(chunk)
	assert.Zero(t, k)
	assert.Equal(t, io.EOF, err)
}

func TestImageStreamWriteTo(t *testing.T) {
	data := bytes.Repeat([]byte("x"), 5000)
	var out bytes.Buffer
	n, err := newImageStream(data).WriteTo(&out)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), n)
	assert.Equal(t, data, out.Bytes())
}

func TestGetImageDataURL(t *testing.T) {
	n, _ := newTestNode(t, 100, 100)
	_, err := n.DrawChart(barConfig())
	require.NoError(t, err)

	url, err := n.GetImageDataURL(canvas.MimePNG)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "data:image/png;base64,"))

	url, err = n.GetImageDataURL(canvas.MimeJPEG)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "data:image/jpeg;base64,"))
}

func TestWriteImageToFile(t *testing.T) {
	n, _ := newTestNode(t, 300, 200)
	_, err := n.DrawChart(barConfig())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "chart.png")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte{1}, 1<<20), 0o644))
	require.NoError(t, n.WriteImageToFile(canvas.MimePNG, path))

	buf, err := n.GetImageBuffer(canvas.MimePNG)
	require.NoError(t, err)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(len(buf)), info.Size())

	written, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, filetype.IsImage(written))
}

func TestWriteImageToFileError(t *testing.T) {
	n, _ := newTestNode(t, 50, 50)
	_, err := n.DrawChart(barConfig())
	require.NoError(t, err)

	err = n.WriteImageToFile(canvas.MimePNG, filepath.Join(t.TempDir(), "missing", "chart.png"))
	assert.ErrorIs(t, err, fs.ErrNotExist)
	var nodeErr *Error
	require.ErrorAs(t, err, &nodeErr)
	assert.Equal(t, "write file", nodeErr.Op)
}

func TestExtractionRequiresReady(t *testing.T) {
	n, _ := newTestNode(t, 50, 50)
	_, err := n.GetImageBuffer(canvas.MimePNG)
	assert.ErrorIs(t, err, ErrNotReady)
	_, err = n.GetImageStream(canvas.MimePNG)
	assert.ErrorIs(t, err, ErrNotReady)
	_, err = n.GetImageDataURL(canvas.MimePNG)
	assert.ErrorIs(t, err, ErrNotReady)
	assert.ErrorIs(t, n.WriteImageToFile(canvas.MimePNG, filepath.Join(t.TempDir(), "x.png")), ErrNotReady)

	_, err = n.DrawChart(barConfig())
	require.NoError(t, err)
	n.Destroy()
	_, err = n.GetImageBuffer(canvas.MimePNG)
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestUnsupportedImageType(t *testing.T) {
	n, _ := newTestNode(t, 50, 50)
	_, err := n.DrawChart(barConfig())
	require.NoError(t, err)

	_, err = n.GetImageBuffer("image/webp")
	assert.ErrorIs(t, err, canvas.ErrUnsupportedType)
	var encErr *canvas.EncodingError
	require.ErrorAs(t, err, &encErr)
	assert.Equal(t, "image/webp", encErr.Type)
}

func TestImageFormats(t *testing.T) {
	n, _ := newTestNode(t, 120, 80)
	_, err := n.DrawChart(barConfig())
	require.NoError(t, err)

	for _, mime := range []string{canvas.MimeJPEG, canvas.MimeGIF, canvas.MimeBMP, canvas.MimeTIFF, canvas.MimePDF} {
		buf, err := n.GetImageBuffer(mime)
		require.NoError(t, err, mime)
		kind, err := filetype.Match(buf)
		require.NoError(t, err, mime)
		assert.Equal(t, mime, kind.MIME.Value, mime)
	}
}

func TestDevicePixelRatio(t *testing.T) {
	n, ns := newTestNode(t, 100, 60, WithDevicePixelRatio(2))
	chart, err := n.DrawChart(barConfig())
	require.NoError(t, err)
	assert.Equal(t, 2.0, chart.PixelRatio())

	r, ok := ns.Float("devicePixelRatio")
	require.True(t, ok)
	assert.Equal(t, 2.0, r)

	buf, err := n.GetImageBuffer(canvas.MimePNG)
	require.NoError(t, err)
	cfg, err := png.DecodeConfig(bytes.NewReader(buf))
	require.NoError(t, err)
	assert.Equal(t, 200, cfg.Width)
	assert.Equal(t, 120, cfg.Height)
}

func TestBeforeDrawListener(t *testing.T) {
	n, ns := newTestNode(t, 100, 100)
	var calls int
	var got *chartjs.Library
	n.OnBeforeDraw(func(lib *chartjs.Library) {
		calls++
		got = lib
		assert.True(t, ns.Defined("document"), "window is installed before listeners run")
		lib.Plugins().Register(chartjs.BackgroundPlugin(color.White))
	})
	n.OnBeforeDraw(nil)

	_, err := n.DrawChart(barConfig())
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.NotNil(t, got)
	assert.Same(t, n.Library(), got)

	_, err = n.DrawChart(barConfig())
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestDrawChartRegistersChartTypes(t *testing.T) {
	n, _ := newTestNode(t, 100, 100)
	var drawn int
	cfg := barConfig()
	cfg.Type = "countingBar"
	cfg.Options.Charts = []chartjs.ChartType{{
		Type:     "countingBar",
		BaseType: "bar",
		Controller: &chartjs.Controller{Finish: func(*chartjs.Chart) error {
			drawn++
			return nil
		}},
	}}
	var destroyed bool
	cfg.Options.Plugins = []chartjs.Plugin{&chartjs.PluginFuncs{Name: "spy", OnDestroy: func(*chartjs.Chart) { destroyed = true }}}

	_, err := n.DrawChart(cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, drawn)
	assert.Contains(t, n.Library().Types(), "countingBar")

	n.Destroy()
	assert.True(t, destroyed)
}

func TestDrawChartInvalidDimensions(t *testing.T) {
	n, ns := newTestNode(t, 0, 100)
	_, err := n.DrawChart(barConfig())
	assert.ErrorIs(t, err, dom.ErrInvalidDimensions)
	assert.Equal(t, StateDestroyed, n.State())
	assert.Zero(t, ns.Len())
}

func TestDrawChartFailureTearsDown(t *testing.T) {
	n, ns := newTestNode(t, 100, 100)
	cfg := barConfig()
	cfg.Options.Fonts = chartjs.FontList{{Path: filepath.Join(t.TempDir(), "missing.ttf"), Family: "Missing"}}

	_, err := n.DrawChart(cfg)
	assert.ErrorIs(t, err, canvas.ErrFontRegistration)
	assert.Zero(t, ns.Len())
	assert.Nil(t, n.Chart())

	_, err = n.DrawChart(&chartjs.Configuration{Type: "radar"})
	assert.ErrorIs(t, err, chartjs.ErrUnknownChartType)
	assert.Zero(t, ns.Len())

	_, err = n.DrawChart(nil)
	assert.True(t, errors.Is(err, ErrNilConfiguration))
}

func TestDrawChartLogScaleNonPositiveValues(t *testing.T) {
	logY := &chartjs.Options{Scales: chartjs.Scales{YAxes: []chartjs.Axis{{Type: "logarithmic"}}}}
	logX := &chartjs.Options{Scales: chartjs.Scales{XAxes: []chartjs.Axis{{Type: "logarithmic"}}}}
	tests := map[string]*chartjs.Configuration{
		"bar with zero": {
			Type:    "bar",
			Data:    chartjs.Data{Labels: []string{"a", "b"}, Datasets: []*chartjs.Dataset{{Data: chartjs.Values(0, 10)}}},
			Options: logY,
		},
		"negative line": {
			Type:    "line",
			Data:    chartjs.Data{Datasets: []*chartjs.Dataset{{Data: chartjs.Values(-5, -1)}}},
			Options: logY,
		},
		"mixed line": {
			Type:    "line",
			Data:    chartjs.Data{Datasets: []*chartjs.Dataset{{Data: chartjs.Values(-5, 0.5, 40)}}},
			Options: logY,
		},
		"horizontal bar": {
			Type:    "horizontalBar",
			Data:    chartjs.Data{Datasets: []*chartjs.Dataset{{Data: chartjs.Values(3, -2, 300)}}},
			Options: logX,
		},
	}
	for name, cfg := range tests {
		t.Run(name, func(t *testing.T) {
			n, ns := newTestNode(t, 200, 150)
			_, err := n.DrawChart(cfg)
			require.NoError(t, err)
			assert.Equal(t, StateReady, n.State())

			buf, err := n.GetImageBuffer(canvas.MimePNG)
			require.NoError(t, err)
			assert.True(t, bytes.HasPrefix(buf, pngSignature))

			n.Destroy()
			assert.Zero(t, ns.Len())
		})
	}
}

func TestDrawChartRecoversFromPanic(t *testing.T) {
	n, ns := newTestNode(t, 100, 100)
	var panicked bool
	cfg := barConfig()
	cfg.Options.Plugins = []chartjs.Plugin{&chartjs.PluginFuncs{Name: "faulty", OnBeforeInit: func(*chartjs.Chart) error {
		if !panicked {
			panicked = true
			panic("plugin exploded")
		}
		return nil
	}}}

	_, err := n.DrawChart(cfg)
	require.ErrorIs(t, err, ErrPanic)
	var nodeErr *Error
	require.ErrorAs(t, err, &nodeErr)
	assert.Equal(t, "draw", nodeErr.Op)
	assert.Contains(t, err.Error(), "plugin exploded")
	assert.Equal(t, StateDestroyed, n.State())
	assert.Zero(t, ns.Len(), "globals are removed after a panic")
	assert.Nil(t, n.Chart())

	_, err = n.DrawChart(barConfig())
	require.NoError(t, err, "the node is usable after recovering")
	assert.Equal(t, StateReady, n.State())
}

func TestDrawChartUnsupportedLatex(t *testing.T) {
	n, ns := newTestNode(t, 200, 150)
	cfg := &chartjs.Configuration{
		Type:    "line",
		Data:    chartjs.Data{Datasets: []*chartjs.Dataset{{Label: "$x^2$", Data: chartjs.Values(1, 4, 9)}}},
		Options: &chartjs.Options{LatexText: true},
	}

	_, err := n.DrawChart(cfg)
	assert.ErrorIs(t, err, chartjs.ErrDrawFailed)
	assert.Equal(t, StateDestroyed, n.State())
	assert.Zero(t, ns.Len())
}

func TestPieChartAsEPS(t *testing.T) {
	n, _ := newTestNode(t, 120, 120)
	_, err := n.DrawChart(&chartjs.Configuration{
		Type: "pie",
		Data: chartjs.Data{Datasets: []*chartjs.Dataset{{Data: chartjs.Values(1, 2)}}},
	})
	require.NoError(t, err)

	_, err = n.GetImageBuffer(canvas.MimeEPS)
	var encErr *canvas.EncodingError
	require.ErrorAs(t, err, &encErr)
	assert.Equal(t, canvas.MimeEPS, encErr.Type)
	assert.ErrorIs(t, err, canvas.ErrBackendUnsupported)
	assert.Equal(t, StateReady, n.State())

	buf, err := n.GetImageBuffer(canvas.MimePDF)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(buf, []byte("%PDF")))
}

func TestBeforeDrawRunsBeforeChartExists(t *testing.T) {
	n, _ := newTestNode(t, 100, 100)
	var order []string
	n.OnBeforeDraw(func(lib *chartjs.Library) {
		assert.Nil(t, n.chart, "no chart exists while listeners run")
		order = append(order, "listener")
		lib.Plugins().Register(&chartjs.PluginFuncs{Name: "order", OnBeforeInit: func(*chartjs.Chart) error {
			order = append(order, "init")
			return nil
		}})
	})

	_, err := n.DrawChart(barConfig())
	require.NoError(t, err)
	assert.Equal(t, []string{"listener", "init"}, order)
}

func TestConcurrentDrawsSerialize(t *testing.T) {
	n, ns := newTestNode(t, 80, 60)
	const workers = 8

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := n.DrawChart(barConfig()); err != nil {
				errs <- err
				return
			}
			buf, err := n.GetImageBuffer(canvas.MimePNG)
			if err != nil {
				errs <- err
				return
			}
			if !bytes.HasPrefix(buf, pngSignature) {
				errs <- errors.New("not a PNG")
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	assert.Equal(t, StateReady, n.State())
	n.Destroy()
	assert.Equal(t, StateDestroyed, n.State())
	assert.Zero(t, ns.Len())
}
