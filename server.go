package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"photoMap/handle"
	"photoMap/store"
	"photoMap/utils"
)

const version = "0.2.0"

type buildResp struct {
	Started bool   `json:"started"`
	Status  string `json:"status"`
}

// Server exposes the photo index and build control over HTTP and serves the generated map.
type Server struct {
	Options BuildOptions
	Log     *logrus.Logger
	Status  *BuildStatus

	// ctx bounds builds started through the API.
	ctx    context.Context
	dbFile string
}

func NewServer(ctx context.Context, opts BuildOptions, log *logrus.Logger) *Server {
	return &Server{
		Options: opts,
		Log:     log,
		Status:  NewBuildStatus(),
		ctx:     ctx,
		dbFile:  filepath.Join(opts.OutDir(), store.FileName),
	}
}

// Router returns the complete handler: API routes, then the output directory as static files.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	handle.InitializeRoutes(r, s.Log, version)
	r.HandleFunc("/api/photos", s.withDB(handleListPhotos)).Methods(http.MethodGet)
	r.HandleFunc("/api/photos/{id}", s.withDB(handleGetPhoto)).Methods(http.MethodGet)
	r.HandleFunc("/api/runs", s.withDB(handleListRuns)).Methods(http.MethodGet)
	r.HandleFunc("/api/files/{id}", s.withDB(s.handleFile)).Methods(http.MethodGet)
	r.HandleFunc("/api/build", s.handleBuild).Methods(http.MethodPost)
	r.HandleFunc("/api/build/status", s.handleBuildStatus).Methods(http.MethodGet)
	r.PathPrefix("/").Handler(http.FileServer(http.Dir(s.Options.OutDir())))
	return handle.CORS(r)
}

// StartServer serves s on addr until ctx ends or the process is signalled.
func StartServer(ctx context.Context, addr string, s *Server) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go utils.Quit(ctx, "HTTP API", s.Log, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.Log.Warnf("shutdown: %v", err)
		}
	})
	s.Log.WithField("addr", addr).Info("Serving HTTP API")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) withDB(next func(http.ResponseWriter, *http.Request, *store.DB)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		db, err := store.Open(s.dbFile)
		if err != nil {
			handle.WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}
		defer db.Close()
		next(w, r, db)
	}
}

func handleListPhotos(w http.ResponseWriter, r *http.Request, db *store.DB) {
	offset, limit := parsePage(r)
	var filter store.PhotoFilter
	if s := r.URL.Query().Get("gps"); s != "" {
		v, err := strconv.ParseBool(s)
		if err != nil {
			handle.WriteError(w, http.StatusBadRequest, "invalid gps filter")
			return
		}
		filter.GPS = &v
	}
	rows, err := db.ListPhotos(offset, limit, filter)
	if err != nil {
		handle.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	handle.WriteJSON(w, http.StatusOK, rows)
}

func photoFromRequest(w http.ResponseWriter, r *http.Request, db *store.DB) (store.PhotoRow, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		handle.WriteError(w, http.StatusBadRequest, "invalid id")
		return store.PhotoRow{}, false
	}
	row, err := db.GetPhoto(id)
	if errors.Is(err, store.ErrNotFound) {
		handle.WriteError(w, http.StatusNotFound, "not found")
		return row, false
	}
	if err != nil {
		handle.WriteError(w, http.StatusInternalServerError, err.Error())
		return row, false
	}
	return row, true
}

func handleGetPhoto(w http.ResponseWriter, r *http.Request, db *store.DB) {
	if row, ok := photoFromRequest(w, r, db); ok {
		handle.WriteJSON(w, http.StatusOK, row)
	}
}

func handleListRuns(w http.ResponseWriter, r *http.Request, db *store.DB) {
	offset, limit := parsePage(r)
	runs, err := db.ListRuns(offset, limit)
	if err != nil {
		handle.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	handle.WriteJSON(w, http.StatusOK, runs)
}

// handleFile serves the original image of a photo, only from inside the images directory.
func (s *Server) handleFile(w http.ResponseWriter, r *http.Request, db *store.DB) {
	row, ok := photoFromRequest(w, r, db)
	if !ok {
		return
	}
	root, err := filepath.Abs(s.Options.ImagesDir)
	if err != nil {
		handle.WriteError(w, http.StatusInternalServerError, "invalid images directory")
		return
	}
	path, err := filepath.Abs(row.Path)
	if err != nil {
		handle.WriteError(w, http.StatusBadRequest, "invalid file path")
		return
	}
	if !within(root, path) {
		handle.WriteError(w, http.StatusForbidden, "access denied")
		return
	}
	if _, err := os.Stat(path); err != nil {
		handle.WriteError(w, http.StatusNotFound, "file not found")
		return
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		w.Header().Set("Content-Type", "image/jpeg")
	case ".png":
		w.Header().Set("Content-Type", "image/png")
	case ".heic", ".heif":
		w.Header().Set("Content-Type", "image/heic")
	default:
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	w.Header().Set("Cache-Control", "public, max-age=3600")
	http.ServeFile(w, r, path)
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (s *Server) handleBuild(w http.ResponseWriter, r *http.Request) {
	if !s.Status.Begin() {
		handle.WriteJSON(w, http.StatusConflict, buildResp{Started: false, Status: s.Status.Snapshot().Status})
		return
	}
	go func() {
		sum, err := runBuild(s.ctx, s.Options, s.Log, s.Status)
		if err != nil {
			s.Log.WithField("run", sum.RunID).Errorf("build failed: %v", err)
			return
		}
		s.Log.WithField("run", sum.RunID).Infof("build completed: %d located, %d skipped", sum.Located, sum.Skipped)
	}()
	handle.WriteJSON(w, http.StatusAccepted, buildResp{Started: true, Status: "started"})
}

func (s *Server) handleBuildStatus(w http.ResponseWriter, r *http.Request) {
	handle.WriteJSON(w, http.StatusOK, s.Status.Snapshot())
}

func parsePage(r *http.Request) (int64, int64) {
	q := r.URL.Query()
	var (
		offset int64 = 0
		limit  int64 = 50
	)
	if s := q.Get("offset"); s != "" {
		if v, err := strconv.ParseInt(s, 10, 64); err == nil && v >= 0 {
			offset = v
		}
	}
	if s := q.Get("limit"); s != "" {
		if v, err := strconv.ParseInt(s, 10, 64); err == nil && v > 0 && v <= 500 {
			limit = v
		}
	}
	return offset, limit
}
