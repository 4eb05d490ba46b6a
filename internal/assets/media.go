// Package assets normalizes scenario media so the informer display gets
// images at a predictable resolution.
package assets

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"
)

// Informer display resolution images are normalized to
const (
	TargetWidth  = 1280
	TargetHeight = 720
)

// NormalizeDir re-encodes every image in a scenario media directory to the
// informer resolution. Non-image files (video, audio) pass through untouched.
// Returns the number of images rewritten.
func NormalizeDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("reading media dir: %w", err)
	}

	normalized := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".jpg" && ext != ".jpeg" && ext != ".png" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		changed, err := NormalizeImage(path)
		if err != nil {
			return normalized, fmt.Errorf("normalizing %s: %w", entry.Name(), err)
		}
		if changed {
			normalized++
		}
	}
	return normalized, nil
}

// NormalizeImage scales one image file to the target resolution in place,
// re-encoding it as jpeg. Already-conforming images are left alone.
func NormalizeImage(path string) (bool, error) {
	in, err := os.Open(path)
	if err != nil {
		return false, err
	}

	var img image.Image
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".png" {
		img, err = png.Decode(in)
	} else {
		img, err = jpeg.Decode(in)
	}
	in.Close()
	if err != nil {
		return false, fmt.Errorf("decode: %w", err)
	}

	bounds := img.Bounds()
	if ext != ".png" && bounds.Dx() == TargetWidth && bounds.Dy() == TargetHeight {
		return false, nil
	}

	// Scale with Catmull-Rom (bicubic) interpolation, letterboxed to keep
	// the aspect ratio
	dst := image.NewRGBA(image.Rect(0, 0, TargetWidth, TargetHeight))
	draw.CatmullRom.Scale(dst, fitRect(bounds), img, bounds, draw.Over, nil)

	outPath := strings.TrimSuffix(path, filepath.Ext(path)) + ".jpg"
	out, err := os.Create(outPath)
	if err != nil {
		return false, err
	}
	if err := jpeg.Encode(out, dst, &jpeg.Options{Quality: 90}); err != nil {
		out.Close()
		return false, err
	}
	if err := out.Close(); err != nil {
		return false, err
	}

	// A converted png leaves its original behind
	if outPath != path {
		if err := os.Remove(path); err != nil {
			return false, err
		}
	}
	return true, nil
}

// fitRect centers the source aspect ratio inside the target frame
func fitRect(src image.Rectangle) image.Rectangle {
	sw, sh := src.Dx(), src.Dy()
	if sw == 0 || sh == 0 {
		return image.Rect(0, 0, TargetWidth, TargetHeight)
	}

	w := TargetWidth
	h := w * sh / sw
	if h > TargetHeight {
		h = TargetHeight
		w = h * sw / sh
	}
	x := (TargetWidth - w) / 2
	y := (TargetHeight - h) / 2
	return image.Rect(x, y, x+w, y+h)
}
