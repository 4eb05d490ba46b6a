package assets

import (
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func writeImage(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), A: 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if filepath.Ext(path) == ".png" {
		err = png.Encode(f, img)
	} else {
		err = jpeg.Encode(f, img, nil)
	}
	if err != nil {
		t.Fatal(err)
	}
}

func decodeBounds(t *testing.T, path string) image.Rectangle {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		t.Fatal(err)
	}
	return img.Bounds()
}

func TestNormalizeImageResizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "slide.jpg")
	writeImage(t, path, 320, 240)

	changed, err := NormalizeImage(path)
	if err != nil {
		t.Fatalf("NormalizeImage: %v", err)
	}
	if !changed {
		t.Fatal("undersized image reported unchanged")
	}

	bounds := decodeBounds(t, path)
	if bounds.Dx() != TargetWidth || bounds.Dy() != TargetHeight {
		t.Fatalf("bounds = %v, want %dx%d", bounds, TargetWidth, TargetHeight)
	}
}

func TestNormalizeImageSkipsConforming(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "slide.jpg")
	writeImage(t, path, TargetWidth, TargetHeight)

	changed, err := NormalizeImage(path)
	if err != nil {
		t.Fatalf("NormalizeImage: %v", err)
	}
	if changed {
		t.Fatal("conforming image rewritten")
	}
}

func TestNormalizeImageConvertsPNG(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logo.png")
	writeImage(t, path, 100, 100)

	changed, err := NormalizeImage(path)
	if err != nil {
		t.Fatalf("NormalizeImage: %v", err)
	}
	if !changed {
		t.Fatal("png reported unchanged")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("original png left behind")
	}
	if _, err := os.Stat(filepath.Join(dir, "logo.jpg")); err != nil {
		t.Errorf("converted jpg missing: %v", err)
	}
}

func TestNormalizeDir(t *testing.T) {
	dir := t.TempDir()
	writeImage(t, filepath.Join(dir, "a.jpg"), 320, 240)
	writeImage(t, filepath.Join(dir, "b.jpg"), TargetWidth, TargetHeight)
	if err := os.WriteFile(filepath.Join(dir, "intro.mp4"), []byte("not an image"), 0644); err != nil {
		t.Fatal(err)
	}

	n, err := NormalizeDir(dir)
	if err != nil {
		t.Fatalf("NormalizeDir: %v", err)
	}
	if n != 1 {
		t.Fatalf("normalized %d images, want 1", n)
	}

	// video left untouched
	data, err := os.ReadFile(filepath.Join(dir, "intro.mp4"))
	if err != nil || string(data) != "not an image" {
		t.Error("non-image file modified")
	}
}
