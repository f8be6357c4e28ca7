package thumbnail

import (
	"context"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photoMap/exiftest"
)

func TestName(t *testing.T) {
	n := Name("/photos/IMG_0001.JPG")
	assert.Regexp(t, `^IMG_0001_[0-9a-f]{12}\.jpg$`, n)
	assert.NotEqual(t, n, Name("/other/IMG_0001.JPG"), "same stem, different path")
	assert.Equal(t, "thumbs/"+n, RelPath("/photos/IMG_0001.JPG"))
}

func TestGenerate(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()

	big := imaging.New(800, 400, image.White.C)
	bigPath := filepath.Join(src, "big.jpg")
	require.NoError(t, imaging.Save(big, bigPath))
	small := exiftest.WriteFile(t, src, "small.jpg", exiftest.PlainJPEG())
	broken := exiftest.WriteFile(t, src, "broken.jpg", exiftest.Corrupt())

	g := &Generator{OutDir: out, Size: 256, Workers: 2}
	thumbs, err := g.Generate(context.Background(), []string{bigPath, small, broken})
	require.NoError(t, err)
	require.Len(t, thumbs, 2)
	assert.NotContains(t, thumbs, broken)

	f, err := os.Open(filepath.Join(out, thumbs[bigPath]))
	require.NoError(t, err)
	defer f.Close()
	cfg, err := jpeg.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, 256, cfg.Width)
	assert.Equal(t, 128, cfg.Height)

	// Second run reuses the file on disk.
	dst := filepath.Join(out, thumbs[small])
	before, err := os.Stat(dst)
	require.NoError(t, err)
	again, err := g.Generate(context.Background(), []string{small})
	require.NoError(t, err)
	assert.Equal(t, thumbs[small], again[small])
	after, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, before.ModTime(), after.ModTime())
}
