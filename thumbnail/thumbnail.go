// Package thumbnail writes the small JPEG previews shown in the map gallery.
package thumbnail

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Dir is the thumbnail directory name below the output directory.
const Dir = "thumbs"

// DefaultSize is the bounding box edge in pixels.
const DefaultSize = 256

// Generator writes thumbnails into OutDir/thumbs.
type Generator struct {
	OutDir  string
	Size    int
	Workers int
	Log     logrus.FieldLogger
}

// Name returns the thumbnail file name for src: "<stem>_<sha1(src)[:12]>.jpg".
func Name(src string) string {
	sum := sha1.Sum([]byte(src))
	stem := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	return stem + "_" + hex.EncodeToString(sum[:])[:12] + ".jpg"
}

// RelPath returns the path of src's thumbnail relative to the output directory.
func RelPath(src string) string {
	return Dir + "/" + Name(src)
}

// Generate creates missing thumbnails for paths and returns path -> relative thumbnail path.
// Existing thumbnails are reused. Unreadable images are logged and left out of the result.
func (g *Generator) Generate(ctx context.Context, paths []string) (map[string]string, error) {
	dir := filepath.Join(g.OutDir, Dir)
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("failed to create thumbnail directory: %w", err)
	}
	size := g.Size
	if size <= 0 {
		size = DefaultSize
	}
	workers := g.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	var (
		mu  sync.Mutex
		out = make(map[string]string, len(paths))
	)
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for _, p := range paths {
		p := p
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			dst := filepath.Join(dir, Name(p))
			if _, err := os.Stat(dst); err != nil {
				if err := generate(p, dst, size); err != nil {
					if g.Log != nil {
						g.Log.WithField("path", p).Warnf("thumbnail generation failed: %v", err)
					}
					return nil
				}
			}
			mu.Lock()
			out[p] = RelPath(p)
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return out, err
	}
	return out, nil
}

// generate fits src into a size x size box, upright per its EXIF orientation, and saves a JPEG.
func generate(src, dst string, size int) error {
	img, err := imaging.Open(src, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("failed to open image: %w", err)
	}
	thumb := imaging.Fit(img, size, size, imaging.Lanczos)

	tmp := dst + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := imaging.Encode(f, thumb, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to save thumbnail: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}
