// Package store is the SQLite index of resolved photos and build runs. It doubles as the
// resolution cache between runs.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"photoMap/geo"
	"photoMap/photo"
	"photoMap/resolve"
)

// FileName is the database file name inside the output directory.
const FileName = "photomap.db"

// ErrNotFound is returned when a photo or run id does not exist.
var ErrNotFound = errors.New("store: not found")

// DB wraps sql.DB to add custom methods
type DB struct {
	*sql.DB
}

// Open opens (creating if needed) the database at path and migrates its schema.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, err
	}
	// SQLite works best with a single connection
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	db := &DB{sqlDB}

	schema := `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	images_dir TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'running',
	scanned INTEGER NOT NULL DEFAULT 0,
	located INTEGER NOT NULL DEFAULT 0,
	skipped INTEGER NOT NULL DEFAULT 0,
	cached INTEGER NOT NULL DEFAULT 0,
	error TEXT,
	started_at TEXT NOT NULL,
	finished_at TEXT
);
CREATE TABLE IF NOT EXISTS photos (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	path TEXT NOT NULL UNIQUE,
	size INTEGER NOT NULL,
	modified_at TEXT NOT NULL,
	lat REAL,
	lon REAL,
	datetime TEXT NOT NULL DEFAULT '',
	make TEXT NOT NULL DEFAULT '',
	model TEXT NOT NULL DEFAULT '',
	extra JSON NOT NULL DEFAULT '{}',
	has_gps INTEGER NOT NULL DEFAULT 0,
	run_id TEXT,
	updated_at TEXT NOT NULL
);`
	if _, err := sqlDB.Exec(schema); err != nil {
		sqlDB.Close()
		return nil, err
	}
	// Databases written by older builds lack the later columns.
	for _, col := range []string{"thumb", "sidecars"} {
		var n int
		_ = sqlDB.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('photos') WHERE name=?`, col).Scan(&n)
		if n > 0 {
			continue
		}
		if _, err := sqlDB.Exec(`ALTER TABLE photos ADD COLUMN ` + col + ` TEXT NOT NULL DEFAULT ''`); err != nil {
			sqlDB.Close()
			return nil, err
		}
	}
	_, _ = sqlDB.Exec(`CREATE INDEX IF NOT EXISTS idx_photos_has_gps ON photos(has_gps)`)
	return db, nil
}

// Clear deletes every photo and run.
func (db *DB) Clear() error {
	return withRetry(func() error {
		if _, err := db.Exec(`DELETE FROM photos`); err != nil {
			return err
		}
		_, err := db.Exec(`DELETE FROM runs`)
		return err
	})
}

// isBusy reports whether err is SQLite's lock contention error.
func isBusy(err error) bool {
	s := err.Error()
	return strings.Contains(s, "database is locked") || strings.Contains(s, "SQLITE_BUSY")
}

// withRetry runs fn, retrying busy errors with a growing pause.
func withRetry(fn func() error) error {
	const maxRetries = 3
	var err error
	for i := 0; i < maxRetries; i++ {
		if err = fn(); err == nil || !isBusy(err) {
			return err
		}
		time.Sleep(time.Duration(i+1) * 50 * time.Millisecond)
	}
	return err
}

// Run is one build invocation.
type Run struct {
	ID         string `json:"id"`
	ImagesDir  string `json:"imagesDir"`
	Status     string `json:"status"`
	Scanned    int64  `json:"scanned"`
	Located    int64  `json:"located"`
	Skipped    int64  `json:"skipped"`
	Cached     int64  `json:"cached"`
	Error      string `json:"error,omitempty"`
	StartedAt  string `json:"startedAt"`
	FinishedAt string `json:"finishedAt,omitempty"`
}

// StartRun records a new run and returns it.
func (db *DB) StartRun(imagesDir string) (Run, error) {
	r := Run{
		ID:        uuid.NewString(),
		ImagesDir: imagesDir,
		Status:    "running",
		StartedAt: time.Now().Format(time.RFC3339),
	}
	err := withRetry(func() error {
		_, err := db.Exec(`INSERT INTO runs (id, images_dir, status, started_at) VALUES (?, ?, ?, ?)`,
			r.ID, r.ImagesDir, r.Status, r.StartedAt)
		return err
	})
	return r, err
}

// FinishRun stores the final counts of run. A non-nil runErr marks it failed.
func (db *DB) FinishRun(run Run, runErr error) error {
	status, msg := "completed", ""
	if runErr != nil {
		status, msg = "error", runErr.Error()
	}
	return withRetry(func() error {
		res, err := db.Exec(`UPDATE runs SET status=?, scanned=?, located=?, skipped=?, cached=?, error=?, finished_at=? WHERE id=?`,
			status, run.Scanned, run.Located, run.Skipped, run.Cached, msg, time.Now().Format(time.RFC3339), run.ID)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// ListRuns returns runs, newest first.
func (db *DB) ListRuns(offset, limit int64) ([]Run, error) {
	rows, err := db.Query(`SELECT id, images_dir, status, scanned, located, skipped, cached, IFNULL(error,''), started_at, IFNULL(finished_at,'')
FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Run{}
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.ImagesDir, &r.Status, &r.Scanned, &r.Located, &r.Skipped, &r.Cached, &r.Error, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// PhotoRow is a photo as the API returns it.
type PhotoRow struct {
	ID         int64             `json:"id"`
	Path       string            `json:"path"`
	Size       int64             `json:"size"`
	ModifiedAt string            `json:"modifiedAt"`
	Lat        *float64          `json:"lat"`
	Lon        *float64          `json:"lon"`
	DateTime   string            `json:"datetime,omitempty"`
	Make       string            `json:"make,omitempty"`
	Model      string            `json:"model,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
	Thumb      string            `json:"thumb,omitempty"`
	HasGPS     bool              `json:"hasGps"`
	RunID      string            `json:"runId,omitempty"`
}

// Record converts the row back to the resolved record.
func (r PhotoRow) Record() photo.Record {
	rec := photo.Record{Path: r.Path, Metadata: photo.Metadata{
		DateTime: r.DateTime,
		Make:     r.Make,
		Model:    r.Model,
		Extra:    r.Extra,
	}}
	if r.Lat != nil && r.Lon != nil {
		rec.Coords = geo.NewPoint(*r.Lat, *r.Lon)
	}
	return rec
}

func modTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// sidecarFingerprint describes the sidecar files present next to path, so that adding,
// editing or removing one invalidates the cached record.
func sidecarFingerprint(path string) string {
	var parts []string
	for _, c := range resolve.SidecarCandidates(path) {
		info, err := os.Stat(c)
		if err != nil {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s:%d:%s", filepath.Base(c), info.Size(), modTime(info.ModTime())))
	}
	return strings.Join(parts, ";")
}

// UpsertPhoto stores rec keyed by path together with the file's size and modification time
// and the state of its sidecars.
func (db *DB) UpsertPhoto(rec photo.Record, info os.FileInfo, runID string) error {
	extra := []byte("{}")
	if len(rec.Extra) > 0 {
		b, err := json.Marshal(rec.Extra)
		if err != nil {
			return err
		}
		extra = b
	}
	var lat, lon sql.NullFloat64
	if rec.Coords != nil {
		lat = sql.NullFloat64{Float64: rec.Coords.Lat, Valid: true}
		lon = sql.NullFloat64{Float64: rec.Coords.Lon, Valid: true}
	}
	hasGPS := 0
	if rec.HasGPS() {
		hasGPS = 1
	}
	return withRetry(func() error {
		_, err := db.Exec(
			`INSERT INTO photos (path, size, modified_at, sidecars, lat, lon, datetime, make, model, extra, has_gps, run_id, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(path) DO UPDATE SET
  size=excluded.size,
  modified_at=excluded.modified_at,
  sidecars=excluded.sidecars,
  lat=excluded.lat,
  lon=excluded.lon,
  datetime=excluded.datetime,
  make=excluded.make,
  model=excluded.model,
  extra=excluded.extra,
  has_gps=excluded.has_gps,
  run_id=excluded.run_id,
  updated_at=excluded.updated_at`,
			rec.Path, info.Size(), modTime(info.ModTime()), sidecarFingerprint(rec.Path), lat, lon,
			rec.DateTime, rec.Make, rec.Model, string(extra), hasGPS, runID,
			time.Now().Format(time.RFC3339),
		)
		return err
	})
}

// SetThumbs records the thumbnail path of each photo path.
func (db *DB) SetThumbs(thumbs map[string]string) error {
	return withRetry(func() error {
		tx, err := db.Begin()
		if err != nil {
			return err
		}
		for p, thumb := range thumbs {
			if _, err := tx.Exec(`UPDATE photos SET thumb = ? WHERE path = ?`, thumb, p); err != nil {
				tx.Rollback()
				return err
			}
		}
		return tx.Commit()
	})
}

const photoColumns = `id, path, size, modified_at, lat, lon, datetime, make, model, extra, thumb, has_gps, IFNULL(run_id,'')`

type scanner interface {
	Scan(dest ...interface{}) error
}

type scanFunc func(dest ...interface{}) error

func (f scanFunc) Scan(dest ...interface{}) error { return f(dest...) }

func scanPhoto(s scanner) (PhotoRow, error) {
	var (
		r        PhotoRow
		lat, lon sql.NullFloat64
		extra    string
		hasGPS   int
	)
	if err := s.Scan(&r.ID, &r.Path, &r.Size, &r.ModifiedAt, &lat, &lon, &r.DateTime, &r.Make, &r.Model, &extra, &r.Thumb, &hasGPS, &r.RunID); err != nil {
		return r, err
	}
	if lat.Valid && lon.Valid {
		r.Lat, r.Lon = &lat.Float64, &lon.Float64
	}
	if extra != "" && extra != "{}" {
		_ = json.Unmarshal([]byte(extra), &r.Extra)
	}
	r.HasGPS = hasGPS == 1
	return r, nil
}

// PhotoFilter narrows ListPhotos. A nil GPS matches every photo.
type PhotoFilter struct {
	GPS *bool
}

// ListPhotos pages through photos ordered by id.
func (db *DB) ListPhotos(offset, limit int64, f PhotoFilter) ([]PhotoRow, error) {
	query := `SELECT ` + photoColumns + ` FROM photos`
	args := []interface{}{}
	if f.GPS != nil {
		query += ` WHERE has_gps = ?`
		if *f.GPS {
			args = append(args, 1)
		} else {
			args = append(args, 0)
		}
	}
	query += ` ORDER BY id LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []PhotoRow{}
	for rows.Next() {
		r, err := scanPhoto(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetPhoto returns the photo with id, or ErrNotFound.
func (db *DB) GetPhoto(id int64) (PhotoRow, error) {
	r, err := scanPhoto(db.QueryRow(`SELECT `+photoColumns+` FROM photos WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return r, ErrNotFound
	}
	return r, err
}

// lookup returns the stored row for path when its size, modification time and sidecars
// still match what is on disk.
func (db *DB) lookup(path string, info os.FileInfo) (PhotoRow, bool) {
	var sidecars string
	row := db.QueryRow(`SELECT `+photoColumns+`, sidecars FROM photos WHERE path = ?`, path)
	r, err := scanPhoto(scanFunc(func(dest ...interface{}) error {
		return row.Scan(append(dest, &sidecars)...)
	}))
	if err != nil {
		return r, false
	}
	return r, r.Size == info.Size() && r.ModifiedAt == modTime(info.ModTime()) && sidecars == sidecarFingerprint(path)
}

// Cache serves unchanged files from the index and stores fresh results under a run.
type Cache struct {
	db    *DB
	runID string
}

// Cache returns a resolution cache writing under runID.
func (db *DB) Cache(runID string) *Cache {
	return &Cache{db: db, runID: runID}
}

// Lookup returns the cached record when the file on disk is unchanged.
func (c *Cache) Lookup(path string) (photo.Record, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return photo.Record{}, false
	}
	r, ok := c.db.lookup(path, info)
	if !ok {
		return photo.Record{}, false
	}
	return r.Record(), true
}

// Store saves rec with the current size and modification time of its file.
func (c *Cache) Store(rec photo.Record) error {
	info, err := os.Stat(rec.Path)
	if err != nil {
		return err
	}
	return c.db.UpsertPhoto(rec, info, c.runID)
}
