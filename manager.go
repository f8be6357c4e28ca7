package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"photoMap/config"
	"photoMap/report"
	"photoMap/store"
)

const (
	defaultImages = "./img"
	defaultOut    = "./output/map.html"
	defaultAddr   = "127.0.0.1:7070"
)

var (
	// Used for flags.
	cfgFile string
	verbose bool

	log = logrus.New()

	rootCmd = &cobra.Command{
		Use:   "photomap",
		Short: "Plot geotagged photos on an interactive map",
		Long: `photomap reads GPS coordinates from photo EXIF headers, Google Takeout
style JSON sidecars and decoded image metadata, then renders an HTML map
with clustered markers, a heatmap and a thumbnail gallery.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
			if verbose {
				log.SetLevel(logrus.DebugLevel)
			}
		},
	}

	buildCmd = &cobra.Command{
		Use:   "build",
		Short: "Scan a photo directory and render the map",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := buildOptions(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			sum, err := runBuild(ctx, opts, log, nil)
			if err != nil {
				return err
			}
			printSummary(cmd, opts, sum)
			return nil
		},
	}

	demoCmd = &cobra.Command{
		Use:   "demo",
		Short: "Render a map of synthetic points",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			out, _ := cmd.Flags().GetString("out")
			fc, err := runDemo(out, cfg, 42)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Demo: %s points\n", humanize.Comma(int64(len(fc.Features))))
			fmt.Fprintf(cmd.OutOrStdout(), "Map: %s\n", out)
			return nil
		},
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the map and the photo index over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := buildOptions(cmd)
			if err != nil {
				return err
			}
			addr, _ := cmd.Flags().GetString("addr")
			return StartServer(cmd.Context(), addr, NewServer(cmd.Context(), opts, log))
		},
	}

	clearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Empty the photo index",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, _ := cmd.Flags().GetString("out")
			db, err := store.Open(filepath.Join(filepath.Dir(out), store.FileName))
			if err != nil {
				return fmt.Errorf("failed to open DB: %w", err)
			}
			defer db.Close()
			if err := db.Clear(); err != nil {
				return fmt.Errorf("failed to clear DB: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Cleared DB tables: runs, photos")
			return nil
		},
	}
)

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "JSON config file (default ~/.photomap/config.json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log every photo")

	for _, cmd := range []*cobra.Command{buildCmd, demoCmd, serveCmd, clearCmd} {
		cmd.Flags().String("out", defaultOut, "output HTML file; reports and the index go next to it")
		rootCmd.AddCommand(cmd)
	}
	for _, cmd := range []*cobra.Command{buildCmd, serveCmd} {
		f := cmd.Flags()
		f.String("images", defaultImages, "photo directory")
		f.Int("point-radius", 0, "marker radius in pixels")
		f.Bool("cluster", false, "cluster markers")
		f.Bool("no-cluster", false, "draw every marker")
		f.Bool("include-heat", false, "add the heatmap layer")
		f.Bool("no-include-heat", false, "omit the heatmap layer")
		f.Int("limit", 0, "stop after this many photos (0 = all)")
		f.Int("workers", 0, "parallel workers (0 = config value)")
		f.Bool("no-cache", false, "re-resolve every photo instead of reusing the index")
	}
	serveCmd.Flags().String("addr", defaultAddr, "listen address")
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return cfg, err
	}
	f := cmd.Flags()
	if f.Changed("point-radius") {
		cfg.PointRadius, _ = f.GetInt("point-radius")
	}
	if f.Changed("cluster") {
		cfg.Cluster, _ = f.GetBool("cluster")
	}
	if f.Changed("no-cluster") {
		v, _ := f.GetBool("no-cluster")
		cfg.Cluster = !v
	}
	if f.Changed("include-heat") {
		cfg.IncludeHeat, _ = f.GetBool("include-heat")
	}
	if f.Changed("no-include-heat") {
		v, _ := f.GetBool("no-include-heat")
		cfg.IncludeHeat = !v
	}
	if f.Changed("workers") {
		cfg.Workers, _ = f.GetInt("workers")
	}
	return cfg, cfg.Validate()
}

func buildOptions(cmd *cobra.Command) (BuildOptions, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return BuildOptions{}, err
	}
	f := cmd.Flags()
	opts := BuildOptions{Config: cfg}
	opts.ImagesDir, _ = f.GetString("images")
	opts.OutHTML, _ = f.GetString("out")
	opts.Limit, _ = f.GetInt("limit")
	opts.NoCache, _ = f.GetBool("no-cache")
	return opts, nil
}

func printSummary(cmd *cobra.Command, opts BuildOptions, sum BuildSummary) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Scanned: %s, With GPS: %s, Without GPS: %s\n",
		humanize.Comma(int64(sum.Scanned)), humanize.Comma(int64(sum.Located)), humanize.Comma(int64(sum.Skipped)))
	if sum.Cached > 0 {
		fmt.Fprintf(w, "Reused from index: %s\n", humanize.Comma(int64(sum.Cached)))
	}
	size := ""
	if info, err := os.Stat(opts.OutHTML); err == nil {
		size = " (" + humanize.Bytes(uint64(info.Size())) + ")"
	}
	dir := opts.OutDir()
	fmt.Fprintf(w, "Map: %s%s\n", opts.OutHTML, size)
	fmt.Fprintf(w, "GeoJSON: %s\n", filepath.Join(dir, report.GeoJSONName))
	fmt.Fprintf(w, "CSV: %s\n", filepath.Join(dir, report.CSVName))
	fmt.Fprintf(w, "Skipped list: %s\n", filepath.Join(dir, report.SkippedName))
	fmt.Fprintf(w, "Done in %s\n", sum.Elapsed.Round(time.Millisecond))
}

// exitCode maps a command error to the process status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errImagesDir):
		return 2
	default:
		return 1
	}
}

func main() {
	err := rootCmd.ExecuteContext(context.Background())
	if err != nil {
		log.Error(err)
	}
	os.Exit(exitCode(err))
}
