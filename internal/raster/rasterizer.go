package raster

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// DefaultDPI keeps small contract text legible for OCR.
const DefaultDPI = 300

// Rasterizer converts every page of a PDF into an image, in page order.
type Rasterizer interface {
	Rasterize(ctx context.Context, path string) ([]image.Image, error)
}

// PopplerRasterizer shells out to poppler's pdftoppm.
type PopplerRasterizer struct {
	Binary string
	DPI    int
	log    zerolog.Logger
}

// NewPopplerRasterizer creates a rasterizer. An empty binary means "pdftoppm" on PATH.
func NewPopplerRasterizer(binary string, dpi int, log zerolog.Logger) *PopplerRasterizer {
	if binary == "" {
		binary = "pdftoppm"
	}
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	return &PopplerRasterizer{Binary: binary, DPI: dpi, log: log}
}

// Rasterize implements Rasterizer.
func (p *PopplerRasterizer) Rasterize(ctx context.Context, path string) ([]image.Image, error) {
	const op = "Rasterize"

	if _, err := os.Stat(path); err != nil {
		return nil, wrap(op, path, ErrSourceUnreadable, err)
	}

	workDir, err := os.MkdirTemp("", "docredact-pages-*")
	if err != nil {
		return nil, wrap(op, path, ErrRasterizeFailed, err)
	}
	defer os.RemoveAll(workDir)

	prefix := filepath.Join(workDir, "page")
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.Binary, "-r", strconv.Itoa(p.DPI), "-png", path, prefix)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, wrap(op, path, ErrRasterizeFailed, ctx.Err())
		}
		return nil, wrap(op, path, ErrRasterizeFailed, fmt.Errorf("%v: %s", err, strings.TrimSpace(stderr.String())))
	}

	files, err := pageFiles(workDir)
	if err != nil {
		return nil, wrap(op, path, ErrRasterizeFailed, err)
	}
	if len(files) == 0 {
		return nil, wrap(op, path, ErrRasterizeFailed, fmt.Errorf("no pages produced"))
	}

	pages := make([]image.Image, 0, len(files))
	for _, file := range files {
		img, err := Load(file)
		if err != nil {
			return nil, wrap(op, path, ErrRasterizeFailed, err)
		}
		pages = append(pages, img)
	}

	p.log.Debug().
		Str("file", filepath.Base(path)).
		Int("pages", len(pages)).
		Int("dpi", p.DPI).
		Msg("PDF rasterized")

	return pages, nil
}

// pageFiles lists pdftoppm output ordered by page number. pdftoppm zero-pads
// the page suffix to the width of the page count, so lexical order is not enough.
func pageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	type page struct {
		number int
		path   string
	}
	var pages []page
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".png") {
			continue
		}
		stem := strings.TrimSuffix(name, ".png")
		dash := strings.LastIndexByte(stem, '-')
		if dash < 0 {
			continue
		}
		n, err := strconv.Atoi(stem[dash+1:])
		if err != nil {
			continue
		}
		pages = append(pages, page{number: n, path: filepath.Join(dir, name)})
	}

	sort.Slice(pages, func(i, j int) bool { return pages[i].number < pages[j].number })

	paths := make([]string, len(pages))
	for i, p := range pages {
		paths[i] = p.path
	}
	return paths, nil
}

// LoadDocument returns the pages of a PDF or a single-image document.
func LoadDocument(ctx context.Context, r Rasterizer, path string) ([]image.Image, error) {
	if IsPDF(path) {
		return r.Rasterize(ctx, path)
	}
	img, err := Load(path)
	if err != nil {
		return nil, err
	}
	return []image.Image{img}, nil
}
