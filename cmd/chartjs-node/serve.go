package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"github.com/user/chartjs-node-go/internal/cache"
	"github.com/user/chartjs-node-go/internal/server"
)

var (
	serveAddr     string
	serveCacheDir string
	serveMemoSize int
	serveFontDir  string

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serves chart rendering over HTTP.",
		Long: `Starts an HTTP server. POST a JSON chart configuration to
/render?width=W&height=H&type=MIME&ratio=R to receive the image.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := server.Options{Logger: slog.Default(), MemoSize: serveMemoSize, FontDir: serveFontDir}
			if serveCacheDir != "" {
				opts.Store = cache.New(serveCacheDir)
			}
			srv := &http.Server{
				Addr:              serveAddr,
				Handler:           server.New(opts),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			errc := make(chan error, 1)
			go func() { errc <- srv.ListenAndServe() }()
			slog.Info("listening", "addr", serveAddr)

			select {
			case err := <-errc:
				return fmt.Errorf("server failed: %w", err)
			case <-ctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server shutdown: %w", err)
			}
			return nil
		},
	}
)

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
	serveCmd.Flags().StringVar(&serveCacheDir, "cache-dir", "", "Persist renders in this directory")
	serveCmd.Flags().IntVar(&serveMemoSize, "memo-size", 128, "Number of renders kept in memory")
	serveCmd.Flags().StringVar(&serveFontDir, "font-dir", "", "Directory request fonts are loaded from (fonts are refused when unset)")
}
