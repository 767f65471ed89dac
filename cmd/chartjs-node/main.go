package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/user/chartjs-node-go/pkg/canvas"
	"github.com/user/chartjs-node-go/pkg/chartjs"
)

var (
	verbose bool

	rootCmd = &cobra.Command{
		Use:   "chartjs-node",
		Short: "Renders Chart.js style chart configurations to images.",
		Long: `chartjs-node draws chart configurations written in the Chart.js shape
(JSON, YAML or TOML) without a browser and writes them as PNG, JPEG, TIFF,
BMP, GIF, SVG, PDF or PostScript files, or serves them over HTTP.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(verbose)
		},
	}

	typesCmd = &cobra.Command{
		Use:   "types",
		Short: "Lists the registered chart types and supported image types.",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Chart types:")
			for _, t := range chartjs.Default.Types() {
				fmt.Fprintf(out, "  %s\n", t)
			}
			fmt.Fprintln(out, "Image types:")
			for _, t := range canvas.Types() {
				fmt.Fprintf(out, "  %s\n", t)
			}
		},
	}
)

func setupLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	chartjs.Default.SetLogger(logger)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(typesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
