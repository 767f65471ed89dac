package main

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/h2non/filetype"
	"github.com/spf13/cobra"
	"github.com/user/chartjs-node-go/internal/cache"
	"github.com/user/chartjs-node-go/internal/config"
	"github.com/user/chartjs-node-go/internal/report"
	"github.com/user/chartjs-node-go/pkg/canvas"
	"github.com/user/chartjs-node-go/pkg/chartnode"
)

// renderOptions holds the render command's flags.
type renderOptions struct {
	output     string
	width      int
	height     int
	mime       string
	ratio      float64
	reportFmt  string
	reportPath string
	cacheDir   string
	watch      bool
}

var (
	renderOpts renderOptions

	renderCmd = &cobra.Command{
		Use:   "render CONFIG...",
		Short: "Renders chart configuration files to images.",
		Long: `Renders each chart configuration (.json, .yaml, .yml or .toml) to an image.
With a single CONFIG, -o names the output file; with several it names the
output directory. The image type defaults from the output file extension.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := newRenderer(renderOpts, len(args))
			if err != nil {
				return err
			}
			if err := r.renderAll(args); err != nil {
				return err
			}
			if !renderOpts.watch {
				return nil
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return r.watch(ctx, args)
		},
	}
)

func init() {
	f := renderCmd.Flags()
	f.StringVarP(&renderOpts.output, "output", "o", "", "Output file, or directory when rendering several configs")
	f.IntVarP(&renderOpts.width, "width", "W", 800, "Chart width in pixels")
	f.IntVarP(&renderOpts.height, "height", "H", 600, "Chart height in pixels")
	f.StringVar(&renderOpts.mime, "type", "", "Image mime type (default from the output extension, else image/png)")
	f.Float64Var(&renderOpts.ratio, "ratio", 1, "Device pixel ratio")
	f.StringVar(&renderOpts.reportFmt, "report", "", "Also write a report of the rendered charts (html or json)")
	f.StringVar(&renderOpts.reportPath, "report-file", "", "Report output path (default chart-report.<format>)")
	f.StringVar(&renderOpts.cacheDir, "cache-dir", "", "Reuse renders cached in this directory")
	f.BoolVar(&renderOpts.watch, "watch", false, "Re-render when a config file changes")
}

// mimeFromPath infers an image mime type from path's extension. The
// encoders' own extensions win over the host's mime table, which may name
// the same extension differently (.eps as image/x-eps).
func mimeFromPath(path string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if ext == "" {
		return ""
	}
	for m, e := range extensions {
		if e == "."+ext {
			return m
		}
	}
	if t := filetype.GetType(ext); t != filetype.Unknown && canvas.Supported(t.MIME.Value) {
		return t.MIME.Value
	}
	if m := mime.TypeByExtension("." + ext); m != "" {
		m, _, _ = strings.Cut(m, ";")
		return strings.TrimSpace(m)
	}
	return ""
}

var extensions = map[string]string{
	canvas.MimePNG:  ".png",
	canvas.MimeJPEG: ".jpg",
	canvas.MimeTIFF: ".tiff",
	canvas.MimeBMP:  ".bmp",
	canvas.MimeGIF:  ".gif",
	canvas.MimeSVG:  ".svg",
	canvas.MimePDF:  ".pdf",
	canvas.MimeEPS:  ".eps",
}

type renderer struct {
	opts   renderOptions
	dir    string
	single bool
	store  *cache.Store
	logger *slog.Logger
}

func newRenderer(opts renderOptions, configs int) (*renderer, error) {
	r := &renderer{opts: opts, single: configs == 1, logger: slog.Default()}
	if r.opts.mime == "" && r.single && opts.output != "" {
		r.opts.mime = mimeFromPath(opts.output)
	}
	if r.opts.mime == "" {
		r.opts.mime = canvas.MimePNG
	}
	if !canvas.Supported(r.opts.mime) {
		return nil, fmt.Errorf("%w: %s (supported: %s)", canvas.ErrUnsupportedType, r.opts.mime, strings.Join(canvas.Types(), ", "))
	}
	if !r.single {
		r.dir = opts.output
	}
	if opts.cacheDir != "" {
		r.store = cache.New(opts.cacheDir)
	}
	if opts.reportFmt != "" {
		if _, err := report.ForFormat(opts.reportFmt); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// outputPath returns where the image for the config at src is written.
func (r *renderer) outputPath(src string) string {
	if r.single && r.opts.output != "" {
		return r.opts.output
	}
	name := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src)) + extensions[r.opts.mime]
	if r.dir != "" {
		return filepath.Join(r.dir, name)
	}
	return filepath.Join(filepath.Dir(src), name)
}

func (r *renderer) renderAll(paths []string) error {
	var rendered []report.Rendered
	for _, p := range paths {
		out, err := r.render(p)
		if err != nil {
			return fmt.Errorf("failed to render %s: %w", p, err)
		}
		fmt.Printf("Rendered %s -> %s\n", p, out.Output)
		rendered = append(rendered, out)
	}
	return r.writeReport(rendered)
}

func (r *renderer) render(path string) (report.Rendered, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return report.Rendered{}, err
	}
	out := report.Rendered{
		Name:      filepath.Base(r.outputPath(path)),
		Source:    path,
		ChartType: cfg.Type,
		Type:      r.opts.mime,
		Width:     r.opts.width,
		Height:    r.opts.height,
		Ratio:     r.opts.ratio,
		Output:    r.outputPath(path),
		Rendered:  time.Now(),
	}
	if dir := filepath.Dir(out.Output); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return out, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	key, err := cache.Key(cfg, r.opts.width, r.opts.height, r.opts.ratio, r.opts.mime)
	if err != nil {
		return out, err
	}
	if r.store != nil && r.store.Exists(key) {
		e, err := r.store.Load(key)
		if err == nil {
			r.logger.Debug("using cached render", "config", path)
			out.Data, out.Cached = e.Data, true
			return out, os.WriteFile(out.Output, e.Data, 0o644)
		}
		r.logger.Warn("ignoring unreadable cache entry", "config", path, "error", err)
	}

	node := chartnode.New(r.opts.width, r.opts.height,
		chartnode.WithDevicePixelRatio(r.opts.ratio),
		chartnode.WithLogger(r.logger))
	defer node.Destroy()
	if _, err := node.DrawChart(cfg); err != nil {
		return out, err
	}
	if err := node.WriteImageToFile(r.opts.mime, out.Output); err != nil {
		return out, err
	}
	if out.Data, err = node.GetImageBuffer(r.opts.mime); err != nil {
		return out, err
	}
	if r.store != nil {
		e := &cache.Entry{Key: key, Type: out.Type, Width: out.Width, Height: out.Height, Ratio: out.Ratio, Data: out.Data}
		if err := r.store.Save(e); err != nil {
			r.logger.Warn("failed to cache render", "config", path, "error", err)
		}
	}
	return out, nil
}

func (r *renderer) writeReport(rendered []report.Rendered) error {
	if r.opts.reportFmt == "" {
		return nil
	}
	adapter, err := report.ForFormat(r.opts.reportFmt)
	if err != nil {
		return err
	}
	path := r.opts.reportPath
	if path == "" {
		path = "chart-report." + strings.ToLower(r.opts.reportFmt)
	}
	if err := adapter.PrepareData(rendered); err != nil {
		return fmt.Errorf("failed to prepare %s report: %w", r.opts.reportFmt, err)
	}
	if err := adapter.Write(path); err != nil {
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	fmt.Printf("Report written to %s\n", path)
	return nil
}

// watch re-renders a config whenever it is written, until ctx is done.
// Directories are watched rather than files so that editors replacing a
// file by rename are seen.
func (r *renderer) watch(ctx context.Context, paths []string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer w.Close()

	watched := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		watched[abs] = true
		if err := w.Add(filepath.Dir(abs)); err != nil {
			return fmt.Errorf("failed to watch %s: %w", p, err)
		}
	}
	r.logger.Info("watching for changes", "configs", len(paths))

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !watched[ev.Name] || !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			out, err := r.render(ev.Name)
			if err != nil {
				r.logger.Error("render failed", "config", ev.Name, "error", err)
				continue
			}
			fmt.Printf("Rendered %s -> %s\n", ev.Name, out.Output)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("watch error", "error", err)
		}
	}
}
