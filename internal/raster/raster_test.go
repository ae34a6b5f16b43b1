package raster

import (
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func testImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 16, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 16), G: uint8(y * 32), B: 0x80, A: 0xff})
		}
	}
	return img
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()

	for _, name := range []string{"page.png", "page.tiff", "page.bmp", "nested/dir/page.tif"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			src := testImage()
			if err := Save(path, src); err != nil {
				t.Fatalf("Save() error = %v", err)
			}

			got, err := Load(path)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if got.Bounds() != src.Bounds() {
				t.Fatalf("bounds = %v, want %v", got.Bounds(), src.Bounds())
			}
			// Lossless formats must round-trip exactly.
			r1, g1, b1, _ := got.At(5, 3).RGBA()
			r2, g2, b2, _ := src.At(5, 3).RGBA()
			if r1 != r2 || g1 != g2 || b1 != b2 {
				t.Errorf("pixel (5,3) = %v, want %v", got.At(5, 3), src.At(5, 3))
			}
		})
	}
}

func TestSaveJPEG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "page.JPG")
	if err := Save(path, testImage()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, err := Load(path); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
}

func TestUnsupportedFormat(t *testing.T) {
	if _, err := FormatOf("scan.webp"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("FormatOf() error = %v, want ErrUnsupportedFormat", err)
	}
	if err := Save(filepath.Join(t.TempDir(), "x.webp"), testImage()); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Save() error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.png"))
	if !errors.Is(err, ErrSourceUnreadable) {
		t.Fatalf("Load() error = %v, want ErrSourceUnreadable", err)
	}
}

func TestLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.png")
	if err := os.WriteFile(path, []byte("not a png"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); !errors.Is(err, ErrSourceUnreadable) {
		t.Fatalf("Load() error = %v, want ErrSourceUnreadable", err)
	}
}

func TestWriteFileAtomicFailureLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.png")

	err := WriteFileAtomic(path, func(w io.Writer) error {
		if _, err := w.Write([]byte("partial")); err != nil {
			return err
		}
		return errors.New("encoder failed")
	})
	if err == nil {
		t.Fatalf("WriteFileAtomic() expected error")
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("directory not empty after failed write: %v", entries)
	}
}

func TestPageFilesNumericOrder(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"page-10.png", "page-02.png", "page-1.png", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	files, err := pageFiles(dir)
	if err != nil {
		t.Fatalf("pageFiles() error = %v", err)
	}
	want := []string{"page-1.png", "page-02.png", "page-10.png"}
	if len(files) != len(want) {
		t.Fatalf("pageFiles() = %v", files)
	}
	for i, name := range want {
		if filepath.Base(files[i]) != name {
			t.Errorf("files[%d] = %s, want %s", i, filepath.Base(files[i]), name)
		}
	}
}

type stubRasterizer struct{ pages []image.Image }

func (s stubRasterizer) Rasterize(ctx context.Context, path string) ([]image.Image, error) {
	return s.pages, nil
}

func TestLoadDocument(t *testing.T) {
	dir := t.TempDir()
	imgPath := filepath.Join(dir, "scan.png")
	if err := Save(imgPath, testImage()); err != nil {
		t.Fatal(err)
	}

	stub := stubRasterizer{pages: []image.Image{testImage(), testImage()}}

	pages, err := LoadDocument(context.Background(), stub, imgPath)
	if err != nil || len(pages) != 1 {
		t.Fatalf("LoadDocument(image) = %d pages, %v", len(pages), err)
	}

	pages, err = LoadDocument(context.Background(), stub, filepath.Join(dir, "contract.PDF"))
	if err != nil || len(pages) != 2 {
		t.Fatalf("LoadDocument(pdf) = %d pages, %v", len(pages), err)
	}
}

func TestPopplerRasterizerMissingSource(t *testing.T) {
	r := NewPopplerRasterizer("", 0, zerolog.Nop())
	if r.DPI != DefaultDPI || r.Binary != "pdftoppm" {
		t.Errorf("defaults = %q/%d", r.Binary, r.DPI)
	}
	_, err := r.Rasterize(context.Background(), filepath.Join(t.TempDir(), "missing.pdf"))
	if !errors.Is(err, ErrSourceUnreadable) {
		t.Fatalf("Rasterize() error = %v, want ErrSourceUnreadable", err)
	}
}
