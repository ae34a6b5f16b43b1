// Package synth renders synthetic Vietnamese real-estate contracts with known PII.
//
// Every generated page records where each planted value was drawn, so the
// pipeline's detections can be checked against ground truth.
package synth

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math/rand"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/math/fixed"

	"docredact/internal/ledger"
	"docredact/internal/pii"
	"docredact/internal/raster"
)

// A4 at 300 DPI.
const (
	A4Width  = 2480
	A4Height = 3508
)

var titles = map[string]string{
	"sales_contract":   "HỢP ĐỒNG MUA BÁN NHÀ ĐẤT",
	"deposit_contract": "HỢP ĐỒNG ĐẶT CỌC BẤT ĐỘNG SẢN",
	"lease_agreement":  "HỢP ĐỒNG THUÊ NHÀ",
}

var clauses = []string{
	"Hai bên thỏa thuận ký kết hợp đồng với các điều khoản sau:",
	"Điều 1. Đối tượng của hợp đồng là quyền sử dụng đất và nhà ở gắn liền.",
	"Điều 2. Giá và phương thức thanh toán do hai bên thống nhất.",
	"Điều 3. Quyền và nghĩa vụ của các bên theo quy định của pháp luật.",
	"Điều 4. Hợp đồng có hiệu lực kể từ ngày ký.",
}

// Options configures page rendering.
type Options struct {
	Width, Height int

	// ScanEffects applies grayscale noise, blur, skew and contrast changes.
	// Generated PDFs are born-digital and never get them.
	ScanEffects bool

	FontPaths     []string
	BoldFontPaths []string
}

// DefaultOptions renders A4 pages at 300 DPI with scan effects.
func DefaultOptions() Options {
	return Options{
		Width:         A4Width,
		Height:        A4Height,
		ScanEffects:   true,
		FontPaths:     DefaultFontPaths,
		BoldFontPaths: DefaultBoldFontPaths,
	}
}

// Document is one rendered synthetic contract. Planted positions are in the
// pixel space of their page; Page is the zero-based page index.
type Document struct {
	DocType     string
	Pages       []*image.Gray
	Planted     []ledger.PlantedPII
	GeneratedAt time.Time
}

// Plan says how many documents Generate writes.
type Plan struct {
	PDFs   int
	Images int

	// MinPages and MaxPages bound the page count of each PDF.
	MinPages, MaxPages int
}

// Total is the number of documents the plan produces.
func (p Plan) Total() int {
	return p.PDFs + p.Images
}

// Generator renders synthetic contracts. It is not safe for concurrent use.
type Generator struct {
	opts  Options
	data  *Data
	rng   *rand.Rand
	title font.Face
	text  font.Face
	now   func() time.Time
	log   zerolog.Logger
}

// NewGenerator creates a generator. A zero seed picks one from the clock.
func NewGenerator(seed int64, opts Options, log zerolog.Logger) (*Generator, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		opts.Width, opts.Height = A4Width, A4Height
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	regular, vietnamese, err := loadFont(opts.FontPaths, goregular.TTF)
	if err != nil {
		return nil, err
	}
	bold, _, err := loadFont(opts.BoldFontPaths, gobold.TTF)
	if err != nil {
		return nil, err
	}
	if !vietnamese {
		log.Warn().Msg("No Vietnamese-capable font found, falling back to Go fonts")
	}

	scale := float64(opts.Width) / A4Width
	title, err := newFace(bold, 80*scale)
	if err != nil {
		return nil, fmt.Errorf("failed to create title face: %w", err)
	}
	text, err := newFace(regular, 55*scale)
	if err != nil {
		return nil, fmt.Errorf("failed to create text face: %w", err)
	}

	return &Generator{
		opts:  opts,
		data:  NewData(seed),
		rng:   rand.New(rand.NewSource(seed + 1)),
		title: title,
		text:  text,
		now:   time.Now,
		log:   log,
	}, nil
}

// page tracks the text cursor while a contract is laid out.
type page struct {
	img     *image.Gray
	index   int
	drawer  *font.Drawer
	margin  int
	y       int
	advance int
	planted []ledger.PlantedPII
}

func (p *page) line(text string) {
	p.drawer.Dot = fixed.P(p.margin, p.y)
	p.drawer.DrawString(text)
	p.y += p.advance
}

// field draws "label value" and records value's top-left corner.
func (p *page) field(label, value string, t pii.Type) {
	x := p.margin + p.drawer.MeasureString(label).Round()
	top := p.y - p.drawer.Face.Metrics().Ascent.Round()
	p.planted = append(p.planted, ledger.PlantedPII{
		Type:           t,
		Page:           p.index,
		ValueLength:    utf8.RuneCountInString(value),
		ApproxPosition: [2]int{x, top},
	})
	p.line(label + value)
}

func (p *page) gap() {
	p.y += p.advance / 2
}

// newPage returns a blank page with the cursor at the top margin. The first
// page of a contract carries the title.
func (g *Generator) newPage(docType string, index int) *page {
	w, h := g.opts.Width, g.opts.Height
	scale := float64(w) / A4Width

	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}

	p := &page{
		img:     img,
		index:   index,
		drawer:  &font.Drawer{Dst: img, Src: image.NewUniform(color.Black), Face: g.text},
		margin:  int(200 * scale),
		y:       int(400 * scale),
		advance: int(80 * scale),
	}

	if index == 0 {
		title, ok := titles[docType]
		if !ok {
			title = "HỢP ĐỒNG"
		}
		td := &font.Drawer{Dst: img, Src: image.NewUniform(color.Black), Face: g.title}
		td.Dot = fixed.P((w-td.MeasureString(title).Round())/2, int(200*scale))
		td.DrawString(title)
	} else {
		p.y = int(200 * scale)
		p.line(fmt.Sprintf("Trang %d", index+1))
		p.gap()
	}
	return p
}

func (g *Generator) partyA(p *page) {
	p.line("BÊN A (Bên bán/cho thuê):")
	p.field("Ông/Bà: ", g.data.Name(), pii.TypeName)
	p.field("CCCD số: ", g.data.CCCD(), pii.TypeCCCD)
	p.field("Ngày sinh: ", g.data.DOB(), pii.TypeDOB)
	p.field("Điện thoại: ", g.data.Phone(), pii.TypePhone)
	p.field("Địa chỉ: ", g.data.Address(), pii.TypeAddress)
	p.gap()
}

func (g *Generator) partyB(p *page) {
	p.line("BÊN B (Bên mua/thuê):")
	p.field("Ông/Bà: ", g.data.Name(), pii.TypeName)
	p.field("CCCD số: ", g.data.CCCD(), pii.TypeCCCD)
	p.field("Ngày sinh: ", g.data.DOB(), pii.TypeDOB)
	p.field("Địa chỉ: ", g.data.Address(), pii.TypeAddress)
	p.gap()
}

// Render lays out a contract of docType over pageCount pages. Party A is
// introduced on the first page and party B on the last; pages in between
// carry clauses only. Scan effects, when enabled, apply to every page.
func (g *Generator) Render(docType string, pageCount int) *Document {
	return g.render(docType, pageCount, g.opts.ScanEffects)
}

func (g *Generator) render(docType string, pageCount int, scan bool) *Document {
	if pageCount < 1 {
		pageCount = 1
	}

	doc := &Document{DocType: docType, GeneratedAt: g.now()}
	for i := 0; i < pageCount; i++ {
		p := g.newPage(docType, i)
		if i == 0 {
			g.partyA(p)
		}
		if i == pageCount-1 {
			g.partyB(p)
		}
		for _, clause := range clauses {
			p.line(clause)
		}

		img := p.img
		if scan {
			img = g.scan(img)
		}
		doc.Pages = append(doc.Pages, img)
		doc.Planted = append(doc.Planted, p.planted...)
	}
	return doc
}

// Generate writes plan.PDFs contracts named <doc_type>_<NN>.pdf, then
// plan.Images single-page contracts named <doc_type>_img_<NN>.png, into dir
// and returns their ledger records in that order. An existing file of the
// same name is overwritten.
func (g *Generator) Generate(ctx context.Context, dir string, plan Plan, docTypes []string) ([]ledger.DocumentRecord, error) {
	if len(docTypes) == 0 {
		docTypes = []string{"sales_contract", "deposit_contract", "lease_agreement"}
	}
	minPages, maxPages := max(plan.MinPages, 1), plan.MaxPages
	if maxPages < minPages {
		maxPages = minPages
	}

	records := make([]ledger.DocumentRecord, 0, plan.Total())
	for i := 0; i < plan.Total(); i++ {
		if err := ctx.Err(); err != nil {
			return records, err
		}

		docType := docTypes[g.rng.Intn(len(docTypes))]

		var (
			filename string
			doc      *Document
			err      error
		)
		if i < plan.PDFs {
			filename = fmt.Sprintf("%s_%02d.pdf", docType, i+1)
			doc = g.render(docType, minPages+g.rng.Intn(maxPages-minPages+1), false)
			err = writePDF(filepath.Join(dir, filename), doc.Pages)
		} else {
			filename = fmt.Sprintf("%s_img_%02d.png", docType, i-plan.PDFs+1)
			doc = g.Render(docType, 1)
			err = raster.Save(filepath.Join(dir, filename), doc.Pages[0])
		}
		if err != nil {
			return records, fmt.Errorf("failed to write %s: %w", filename, err)
		}

		g.log.Info().
			Str("filename", filename).
			Int("pages", len(doc.Pages)).
			Int("pii_count", len(doc.Planted)).
			Msg("Document generated")

		records = append(records, ledger.DocumentRecord{
			Filename:    filename,
			DocType:     docType,
			PageCount:   len(doc.Pages),
			GeneratedAt: ledger.Timestamp(doc.GeneratedAt),
			PlantedPII:  doc.Planted,
		})
	}

	g.log.Info().
		Int("total_documents", len(records)).
		Int("pdfs", min(plan.PDFs, len(records))).
		Str("dir", dir).
		Msg("Document generation completed")

	return records, nil
}
