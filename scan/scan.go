// Package scan finds the photos to process below an images root.
package scan

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// DefaultExtensions is the allow-list used when Options.Extensions is empty.
var DefaultExtensions = []string{".jpg", ".jpeg", ".png", ".heic", ".heif"}

var errLimit = errors.New("scan: limit reached")

// Options controls Walk.
type Options struct {
	Recurse    bool
	Extensions []string
	// Exclude is skipped entirely, typically the output directory.
	Exclude string
	// Limit stops the walk after that many files; zero means unlimited.
	Limit int
	Log   logrus.FieldLogger
}

// IsAllowed reports whether path has one of exts (case-insensitive).
func IsAllowed(path string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}

// Walk returns the photo paths below root in lexical order.
func Walk(root string, opts Options) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, &fs.PathError{Op: "scan", Path: root, Err: errors.New("not a directory")}
	}
	exts := opts.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	exclude := ""
	if opts.Exclude != "" {
		if abs, err := filepath.Abs(opts.Exclude); err == nil {
			exclude = abs
		}
	}

	var paths []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if opts.Log != nil {
				opts.Log.WithField("path", path).Warnf("walk: %v", err)
			}
			if d != nil && d.IsDir() && path != root {
				return fs.SkipDir
			}
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path == root {
				return nil
			}
			if !opts.Recurse {
				return fs.SkipDir
			}
			if exclude != "" {
				if abs, err := filepath.Abs(path); err == nil && abs == exclude {
					return fs.SkipDir
				}
			}
			return nil
		}
		if !d.Type().IsRegular() || !IsAllowed(path, exts) {
			return nil
		}
		paths = append(paths, path)
		if opts.Limit > 0 && len(paths) >= opts.Limit {
			return errLimit
		}
		return nil
	})
	if err != nil && !errors.Is(err, errLimit) {
		return paths, err
	}
	return paths, nil
}
