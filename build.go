package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"photoMap/config"
	"photoMap/mapbuild"
	"photoMap/photo"
	"photoMap/report"
	"photoMap/resolve"
	"photoMap/scan"
	"photoMap/store"
	"photoMap/thumbnail"
)

// errImagesDir marks a missing images directory; the CLI exits with status 2 for it.
var errImagesDir = errors.New("images directory not found")

// BuildOptions holds configuration for one map build
type BuildOptions struct {
	ImagesDir string
	OutHTML   string
	Config    config.Config
	Limit     int
	NoCache   bool
}

// OutDir is the directory receiving every artefact.
func (o BuildOptions) OutDir() string {
	return filepath.Dir(o.OutHTML)
}

// BuildSummary is what a finished build reports.
type BuildSummary struct {
	RunID   string
	Scanned int
	Located int
	Skipped int
	Cached  int
	Thumbs  int
	Elapsed time.Duration
}

type BuildState struct {
	Status      string    `json:"status"` // idle, scanning, resolving, rendering, completed, error
	RunID       string    `json:"runId,omitempty"`
	TotalFiles  int64     `json:"totalFiles"`
	Processed   int64     `json:"processed"`
	Located     int64     `json:"located"`
	Skipped     int64     `json:"skipped"`
	Cached      int64     `json:"cached"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
	CurrentFile string    `json:"currentFile"`
	Error       string    `json:"error"`
}

// BuildStatus is the progress of the current or last build, shared with the HTTP server.
type BuildStatus struct {
	mu    sync.Mutex
	state BuildState
}

func NewBuildStatus() *BuildStatus {
	return &BuildStatus{state: BuildState{Status: "idle"}}
}

// Snapshot returns a copy of the state.
func (s *BuildStatus) Snapshot() BuildState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Begin resets the state for a new build. It returns false while another build is running.
func (s *BuildStatus) Begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state.Status {
	case "scanning", "resolving", "rendering":
		return false
	}
	s.state = BuildState{Status: "scanning", StartTime: time.Now()}
	return true
}

func (s *BuildStatus) update(fn func(*BuildState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.state)
}

func (s *BuildStatus) finish(err error) {
	s.update(func(st *BuildState) {
		st.EndTime = time.Now()
		st.CurrentFile = ""
		if err != nil {
			st.Status = "error"
			st.Error = err.Error()
			return
		}
		st.Status = "completed"
	})
}

// writeOnlyCache indexes fresh results without serving old ones.
type writeOnlyCache struct {
	*store.Cache
}

func (writeOnlyCache) Lookup(string) (photo.Record, bool) {
	return photo.Record{}, false
}

// runBuild scans, resolves, writes reports and thumbnails, and renders the map.
func runBuild(ctx context.Context, opts BuildOptions, log *logrus.Logger, status *BuildStatus) (BuildSummary, error) {
	start := time.Now()
	var sum BuildSummary
	if status == nil {
		status = NewBuildStatus()
		status.Begin()
	}

	if info, err := os.Stat(opts.ImagesDir); err != nil || !info.IsDir() {
		err = fmt.Errorf("%w: %s", errImagesDir, opts.ImagesDir)
		status.finish(err)
		return sum, err
	}
	outDir := opts.OutDir()
	if err := os.MkdirAll(outDir, os.ModePerm); err != nil {
		err = fmt.Errorf("failed to create output directory: %w", err)
		status.finish(err)
		return sum, err
	}

	db, err := store.Open(filepath.Join(outDir, store.FileName))
	if err != nil {
		err = fmt.Errorf("failed to open/init database: %w", err)
		status.finish(err)
		return sum, err
	}

	run, err := db.StartRun(opts.ImagesDir)
	if err != nil {
		db.Close()
		err = fmt.Errorf("start run: %w", err)
		status.finish(err)
		return sum, err
	}
	sum.RunID = run.ID
	status.update(func(st *BuildState) { st.RunID = run.ID })

	err = buildRun(ctx, opts, db, run.ID, log, status, &sum)
	sum.Elapsed = time.Since(start)

	run.Scanned, run.Located, run.Skipped, run.Cached = int64(sum.Scanned), int64(sum.Located), int64(sum.Skipped), int64(sum.Cached)
	if ferr := db.FinishRun(run, err); ferr != nil {
		log.WithField("run", run.ID).Warnf("failed to record run: %v", ferr)
	}
	// Watchers see the final state only once the index is released.
	if cerr := db.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("close database: %w", cerr)
	}
	status.finish(err)
	return sum, err
}

func buildRun(ctx context.Context, opts BuildOptions, db *store.DB, runID string, log *logrus.Logger, status *BuildStatus, sum *BuildSummary) error {
	cfg := opts.Config
	outDir := opts.OutDir()

	log.WithField("images", opts.ImagesDir).Info("Walking files")
	paths, err := scan.Walk(opts.ImagesDir, scan.Options{
		Recurse:    cfg.Recurse,
		Extensions: cfg.Extensions,
		Exclude:    outDir,
		Limit:      opts.Limit,
		Log:        log,
	})
	if err != nil {
		return fmt.Errorf("scan %s: %w", opts.ImagesDir, err)
	}
	status.update(func(st *BuildState) {
		st.Status = "resolving"
		st.TotalFiles = int64(len(paths))
	})

	var cache resolve.Cache = db.Cache(runID)
	if opts.NoCache {
		cache = writeOnlyCache{db.Cache(runID)}
	}
	pool := &resolve.Pool{
		Resolver: resolve.NewResolver(resolve.DefaultRegistry(), log),
		Workers:  cfg.Workers,
		Cache:    cache,
		Progress: func(rec photo.Record, cached bool) {
			status.update(func(st *BuildState) {
				st.Processed++
				st.CurrentFile = filepath.Base(rec.Path)
				if cached {
					st.Cached++
				}
				if rec.HasGPS() {
					st.Located++
				} else {
					st.Skipped++
				}
			})
		},
	}
	records, err := pool.Run(ctx, paths)
	if err != nil {
		return fmt.Errorf("resolve: %w", err)
	}
	sum.Cached = pool.Hits()

	repo := report.NewRepository()
	var located []string
	for _, rec := range records {
		sum.Scanned++
		if rec.HasGPS() {
			sum.Located++
			located = append(located, rec.Path)
			log.Debugf("OK: %s -> (%.6f,%.6f)", rec.Path, rec.Coords.Lat, rec.Coords.Lon)
		} else {
			sum.Skipped++
			repo.Skip(rec.Path)
			log.Debugf("NO GPS: %s", rec.Path)
		}
		repo.Add(rec)
	}

	status.update(func(st *BuildState) { st.Status = "rendering" })
	gen := &thumbnail.Generator{OutDir: outDir, Size: cfg.ThumbSize, Workers: cfg.Workers, Log: log}
	thumbs, err := gen.Generate(ctx, located)
	if err != nil {
		return fmt.Errorf("thumbnails: %w", err)
	}
	sum.Thumbs = len(thumbs)
	if err := db.SetThumbs(thumbs); err != nil {
		log.Warnf("failed to index thumbnails: %v", err)
	}

	fc, err := repo.WriteAll(outDir, thumbs)
	if err != nil {
		return err
	}
	if err := mapbuild.New(cfg).Build(opts.OutHTML, fc); err != nil {
		return err
	}
	return nil
}
