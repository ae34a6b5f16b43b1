package synth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/image/font/gofont/goregular"

	"docredact/internal/pii"
	"docredact/internal/raster"
)

func smallOptions(scan bool) Options {
	return Options{Width: 620, Height: 877, ScanEffects: scan}
}

func newTestGenerator(t *testing.T, seed int64, scan bool) *Generator {
	t.Helper()
	g, err := NewGenerator(seed, smallOptions(scan), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewGenerator() error = %v", err)
	}
	return g
}

func TestDataMatchesDetectorPatterns(t *testing.T) {
	m, err := pii.NewMatcher(nil)
	if err != nil {
		t.Fatal(err)
	}
	d := NewData(7)

	for i := 0; i < 200; i++ {
		lines := map[pii.Type]string{
			pii.TypeName:    "Ông/Bà: " + d.Name(),
			pii.TypeCCCD:    "CCCD số: " + d.CCCD(),
			pii.TypeDOB:     "Ngày sinh: " + d.DOB(),
			pii.TypePhone:   "Điện thoại: " + d.Phone(),
			pii.TypeAddress: "Địa chỉ: " + d.Address(),
		}
		for typ, line := range lines {
			matches := m.FindMatches(line, typ)
			if len(matches) == 0 {
				t.Fatalf("%s pattern does not match generated line %q", typ, line)
			}
			if matches[0].Confidence != 1.0 {
				t.Errorf("%q matched with confidence %v, want 1.0", line, matches[0].Confidence)
			}
		}
	}
}

func TestDataFormats(t *testing.T) {
	d := NewData(1)
	phone := regexp.MustCompile(`^0[98753]\d{8}$`)

	for i := 0; i < 100; i++ {
		if c := d.CCCD(); len(c) != 12 {
			t.Errorf("CCCD() = %q, want 12 digits", c)
		}
		if p := d.Phone(); !phone.MatchString(p) {
			t.Errorf("Phone() = %q", p)
		}
		dob, err := time.Parse("02/01/2006", d.DOB())
		if err != nil {
			t.Fatalf("DOB() not DD/MM/YYYY: %v", err)
		}
		if dob.Before(dobStart) || dob.After(dobEnd) {
			t.Errorf("DOB() = %v outside 1960-2000", dob)
		}
	}
}

func TestDataDeterministic(t *testing.T) {
	a, b := NewData(99), NewData(99)
	for i := 0; i < 20; i++ {
		if x, y := a.Name(), b.Name(); x != y {
			t.Fatalf("same seed produced %q and %q", x, y)
		}
	}
}

func TestRenderPlantsAllFields(t *testing.T) {
	g := newTestGenerator(t, 3, false)
	doc := g.Render("lease_agreement", 1)

	want := []pii.Type{
		pii.TypeName, pii.TypeCCCD, pii.TypeDOB, pii.TypePhone, pii.TypeAddress,
		pii.TypeName, pii.TypeCCCD, pii.TypeDOB, pii.TypeAddress,
	}
	if len(doc.Planted) != len(want) {
		t.Fatalf("planted %d values, want %d", len(doc.Planted), len(want))
	}

	bounds := doc.Pages[0].Bounds()
	lastY := -1
	for i, p := range doc.Planted {
		if p.Type != want[i] {
			t.Errorf("Planted[%d].Type = %s, want %s", i, p.Type, want[i])
		}
		pos := p.ApproxPosition
		if pos[0] < 0 || pos[0] >= bounds.Dx() || pos[1] < 0 || pos[1] >= bounds.Dy() {
			t.Errorf("Planted[%d] position %v outside %v", i, pos, bounds)
		}
		if pos[1] <= lastY {
			t.Errorf("Planted[%d] not below the previous field", i)
		}
		lastY = pos[1]

		if p.Page != 0 {
			t.Errorf("Planted[%d].Page = %d, want 0", i, p.Page)
		}
		if !hasInk(doc.Pages[0], pos[0], pos[1], 150, 16) {
			t.Errorf("no text drawn at Planted[%d] %v", i, pos)
		}
	}
	if doc.Planted[1].ValueLength != 12 || doc.Planted[3].ValueLength != 10 {
		t.Errorf("value lengths = %d/%d, want 12/10", doc.Planted[1].ValueLength, doc.Planted[3].ValueLength)
	}
}

func hasInk(img *image.Gray, x, y, w, h int) bool {
	for yy := y; yy < y+h; yy++ {
		for xx := x; xx < x+w; xx++ {
			if img.GrayAt(xx, yy).Y < 128 {
				return true
			}
		}
	}
	return false
}

func TestRenderScanEffects(t *testing.T) {
	clean := newTestGenerator(t, 5, false).Render("sales_contract", 1).Pages[0]
	scanned := newTestGenerator(t, 5, true).Render("sales_contract", 1).Pages[0]

	if scanned.Bounds() != clean.Bounds() {
		t.Fatalf("scan changed bounds to %v", scanned.Bounds())
	}
	if bytes.Equal(scanned.Pix, clean.Pix) {
		t.Fatalf("scan effects left the page unchanged")
	}
	// Background stays paper-light after noise, skew and contrast.
	for _, p := range [][2]int{{0, 0}, {619, 0}, {0, 876}, {619, 876}, {310, 850}} {
		if v := scanned.GrayAt(p[0], p[1]).Y; v < 180 {
			t.Errorf("background pixel %v = %d, want light", p, v)
		}
	}
}

func TestRenderDeterministic(t *testing.T) {
	a := newTestGenerator(t, 11, true).Render("deposit_contract", 1)
	b := newTestGenerator(t, 11, true).Render("deposit_contract", 1)
	if !bytes.Equal(a.Pages[0].Pix, b.Pages[0].Pix) {
		t.Errorf("same seed rendered different pages")
	}
}

func TestRenderMultiPage(t *testing.T) {
	doc := newTestGenerator(t, 4, false).Render("sales_contract", 4)
	if len(doc.Pages) != 4 {
		t.Fatalf("Render() produced %d pages, want 4", len(doc.Pages))
	}

	perPage := make(map[int]int)
	for _, p := range doc.Planted {
		perPage[p.Page]++
		if !hasInk(doc.Pages[p.Page], p.ApproxPosition[0], p.ApproxPosition[1], 150, 16) {
			t.Errorf("no text drawn for %s at page %d %v", p.Type, p.Page, p.ApproxPosition)
		}
	}
	if want := map[int]int{0: 5, 3: 4}; !reflect.DeepEqual(perPage, want) {
		t.Errorf("planted values per page = %v, want %v", perPage, want)
	}
	if !hasInk(doc.Pages[1], 0, 0, 620, 877) {
		t.Errorf("middle page is blank")
	}
}

func TestGenerate(t *testing.T) {
	dir := t.TempDir()
	g := newTestGenerator(t, 8, true)

	plan := Plan{PDFs: 2, Images: 3, MinPages: 2, MaxPages: 3}
	records, err := g.Generate(context.Background(), dir, plan, []string{"sales_contract"})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(records) != 5 {
		t.Fatalf("Generate() returned %d records", len(records))
	}

	for i, rec := range records[:2] {
		if want := fmt.Sprintf("sales_contract_%02d.pdf", i+1); rec.Filename != want {
			t.Errorf("records[%d].Filename = %s, want %s", i, rec.Filename, want)
		}
		if rec.PageCount < 2 || rec.PageCount > 3 || len(rec.PlantedPII) != 9 {
			t.Errorf("records[%d] = %d pages, %d planted", i, rec.PageCount, len(rec.PlantedPII))
		}
		last := rec.PlantedPII[len(rec.PlantedPII)-1]
		if rec.PlantedPII[0].Page != 0 || last.Page != rec.PageCount-1 {
			t.Errorf("records[%d] planted pages %d..%d, want 0..%d", i, rec.PlantedPII[0].Page, last.Page, rec.PageCount-1)
		}
		data, err := os.ReadFile(filepath.Join(dir, rec.Filename))
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.HasPrefix(data, []byte("%PDF-")) {
			t.Errorf("%s is not a PDF", rec.Filename)
		}
	}

	for i, rec := range records[2:] {
		if want := fmt.Sprintf("sales_contract_img_%02d.png", i+1); rec.Filename != want {
			t.Errorf("image record %d Filename = %s, want %s", i, rec.Filename, want)
		}
		if rec.DocType != "sales_contract" || rec.PageCount != 1 || len(rec.PlantedPII) != 9 || rec.GeneratedAt == "" {
			t.Errorf("image record %d = %+v", i, rec)
		}
		img, err := raster.Load(filepath.Join(dir, rec.Filename))
		if err != nil {
			t.Fatalf("Load(%s) error = %v", rec.Filename, err)
		}
		if img.Bounds().Dx() != 620 || img.Bounds().Dy() != 877 {
			t.Errorf("%s bounds = %v", rec.Filename, img.Bounds())
		}
	}
}

func TestGenerateCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	records, err := newTestGenerator(t, 1, false).Generate(ctx, t.TempDir(), Plan{PDFs: 1, Images: 4}, nil)
	if !errors.Is(err, context.Canceled) || len(records) != 0 {
		t.Fatalf("Generate() = %d records, %v", len(records), err)
	}
}

func TestLoadFontFallback(t *testing.T) {
	f, _, err := loadFont([]string{filepath.Join(t.TempDir(), "missing.ttf")}, goregular.TTF)
	if err != nil || f == nil {
		t.Fatalf("loadFont() = %v, %v", f, err)
	}
	if _, _, err := loadFont(nil, []byte("not a font")); err == nil {
		t.Errorf("loadFont() accepted a corrupt fallback")
	}
}
