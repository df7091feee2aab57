package capture

import (
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"time"
)

// writeJPEG writes img under root as <epoch_ms>_<display>.jpg and returns
// the path relative to root plus the file's byte size.
func writeJPEG(root string, ts time.Time, displayIndex int, img image.Image, quality int) (string, int64, error) {
	if quality < 50 {
		quality = 50
	}
	if quality > 100 {
		quality = 100
	}

	name := fmt.Sprintf("%d_%d.jpg", ts.UnixMilli(), displayIndex)
	day := ts.Format("2006-01-02")
	relPath := filepath.Join(day, name)
	fullPath := filepath.Join(root, relPath)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", 0, err
	}

	f, err := os.Create(fullPath)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: quality}); err != nil {
		return "", 0, err
	}

	info, err := f.Stat()
	if err != nil {
		return "", 0, err
	}
	return relPath, info.Size(), nil
}
