package ledger

import (
	"encoding/json"
	"errors"
	"image"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/parquet-go"

	"docredact/internal/pii"
	"docredact/internal/redaction"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l := New(filepath.Join(t.TempDir(), "out", "metadata.json"), zerolog.Nop())
	l.now = func() time.Time { return time.Date(2024, 3, 1, 8, 30, 0, 0, time.FixedZone("ICT", 7*3600)) }
	return l
}

func quad(x, y, w, h int) []image.Point {
	return []image.Point{{x, y}, {x + w, y}, {x + w, y + h}, {x, y + h}}
}

func findings(types ...pii.Type) []pii.Finding {
	out := make([]pii.Finding, 0, len(types))
	for i, t := range types {
		out = append(out, pii.Finding{Type: t, Value: "Nguyễn Văn An", Confidence: 0.9612, Region: quad(10*i, 20, 50, 10), Page: 0})
	}
	return out
}

func TestAddDocument(t *testing.T) {
	l := newTestLedger(t)
	l.InitDatasetInfo("", nil)

	if err := l.AddDocument(DocumentRecord{Filename: "a.pdf", DocType: "sales_contract"}); err != nil {
		t.Fatalf("AddDocument() error = %v", err)
	}

	rec, ok := l.Document("a.pdf")
	if !ok {
		t.Fatalf("Document(a.pdf) not found")
	}
	// Timestamps are UTC regardless of the local zone.
	if rec.ProcessingTimestamp != "2024-03-01T01:30:00.000000Z" {
		t.Errorf("ProcessingTimestamp = %q", rec.ProcessingTimestamp)
	}
	if got := l.DatasetInfo().TotalFiles; got != 1 {
		t.Errorf("TotalFiles = %d, want 1", got)
	}
	if l.DatasetInfo().RunID == "" || l.meta.PipelineVersion != DefaultVersion {
		t.Errorf("dataset info = %+v, version %q", l.DatasetInfo(), l.meta.PipelineVersion)
	}
}

func TestAddDocumentKeepsTimestamp(t *testing.T) {
	l := newTestLedger(t)
	if err := l.AddDocument(DocumentRecord{Filename: "a.png", ProcessingTimestamp: "2020-01-01T00:00:00Z"}); err != nil {
		t.Fatal(err)
	}
	if rec, _ := l.Document("a.png"); rec.ProcessingTimestamp != "2020-01-01T00:00:00Z" {
		t.Errorf("ProcessingTimestamp = %q, want the supplied value", rec.ProcessingTimestamp)
	}
}

func TestAddDocumentRejects(t *testing.T) {
	l := newTestLedger(t)

	if err := l.AddDocument(DocumentRecord{DocType: "lease_agreement"}); !errors.Is(err, ErrMissingFilename) {
		t.Errorf("AddDocument(no filename) error = %v, want ErrMissingFilename", err)
	}
	if err := l.AddDocument(DocumentRecord{Filename: "a.pdf"}); err != nil {
		t.Fatal(err)
	}
	if err := l.AddDocument(DocumentRecord{Filename: "a.pdf", DocType: "other"}); !errors.Is(err, ErrDuplicateDocument) {
		t.Errorf("AddDocument(duplicate) error = %v, want ErrDuplicateDocument", err)
	}

	if n := len(l.Documents()); n != 1 {
		t.Errorf("len(Documents()) = %d, want 1", n)
	}
	if rec, _ := l.Document("a.pdf"); rec.DocType != "" {
		t.Errorf("duplicate registration replaced the original record")
	}
}

func TestAttachFindings(t *testing.T) {
	l := newTestLedger(t)
	if err := l.AddDocument(DocumentRecord{Filename: "a.pdf"}); err != nil {
		t.Fatal(err)
	}

	if err := l.AttachFindings("a.pdf", findings(pii.TypeCCCD, pii.TypeName, pii.TypeCCCD)); err != nil {
		t.Fatalf("AttachFindings() error = %v", err)
	}

	rec, _ := l.Document("a.pdf")
	if rec.PIICount != 3 {
		t.Errorf("PIICount = %d, want 3", rec.PIICount)
	}
	if want := map[string]int{"cccd": 2, "name": 1}; !reflect.DeepEqual(rec.PIIStatistics, want) {
		t.Errorf("PIIStatistics = %v, want %v", rec.PIIStatistics, want)
	}
	box := rec.RedactedBoxes[1]
	if box.ValueLength != 13 || box.Confidence != 0.961 || box.BBox != [4]int{10, 20, 50, 10} {
		t.Errorf("RedactedBoxes[1] = %+v", box)
	}
}

func TestAttachToUnknownDocument(t *testing.T) {
	l := newTestLedger(t)

	if err := l.AttachFindings("missing.pdf", findings(pii.TypePhone)); !errors.Is(err, ErrDocumentNotFound) {
		t.Errorf("AttachFindings() error = %v, want ErrDocumentNotFound", err)
	}
	if err := l.AttachRedaction("missing.pdf", &redaction.Report{}); !errors.Is(err, ErrDocumentNotFound) {
		t.Errorf("AttachRedaction() error = %v, want ErrDocumentNotFound", err)
	}
	if len(l.Documents()) != 0 {
		t.Errorf("attachment to an unknown filename created a record")
	}
}

func TestAttachRedaction(t *testing.T) {
	l := newTestLedger(t)
	if err := l.AddDocument(DocumentRecord{Filename: "a.pdf"}); err != nil {
		t.Fatal(err)
	}

	report := &redaction.Report{
		OriginalFile:    "a.pdf",
		RedactedFiles:   []string{"redacted_a_page_0.png", "redacted_a_page_2.png"},
		PageCount:       3,
		TotalRedactions: 4,
		FailedPages:     []int{1},
	}
	if err := l.AttachRedaction("a.pdf", report); err != nil {
		t.Fatalf("AttachRedaction() error = %v", err)
	}

	rec, _ := l.Document("a.pdf")
	if rec.PageCount != 3 || rec.TotalRedactions != 4 || len(rec.RedactedFiles) != 2 || !reflect.DeepEqual(rec.FailedPages, []int{1}) {
		t.Errorf("record = %+v", rec)
	}
}

func TestMarkFailedAfterEarlierRun(t *testing.T) {
	l := newTestLedger(t)
	if err := l.AddDocument(DocumentRecord{Filename: "a.png"}); err != nil {
		t.Fatal(err)
	}
	if err := l.AttachFindings("a.png", findings(pii.TypeCCCD, pii.TypeName, pii.TypeName)); err != nil {
		t.Fatal(err)
	}
	report := &redaction.Report{RedactedFiles: []string{"redacted_a.png"}, PageCount: 1, TotalRedactions: 3}
	if err := l.AttachRedaction("a.png", report); err != nil {
		t.Fatal(err)
	}
	if err := l.Save(); err != nil {
		t.Fatal(err)
	}

	// Next run: the document fails before detection.
	rerun := New(l.Path(), zerolog.Nop())
	if _, err := rerun.Load(); err != nil {
		t.Fatal(err)
	}
	rerun.InitDatasetInfo("", nil)
	if err := rerun.MarkFailed("a.png", errors.New("ocr failed")); err != nil {
		t.Fatalf("MarkFailed() error = %v", err)
	}

	rec, _ := rerun.Document("a.png")
	if rec.Error != "ocr failed" || rec.RedactedFiles != nil || rec.TotalRedactions != 0 {
		t.Errorf("record after failure = %+v", rec)
	}
	if rec.PIICount != 0 || rec.PIIStatistics != nil || rec.RedactedBoxes != nil {
		t.Errorf("findings of the earlier run survived: count %d, stats %v", rec.PIICount, rec.PIIStatistics)
	}
	if agg := rerun.AggregateStatistics(); agg.TotalPIIDetected != 0 || len(agg.PIIByType) != 0 {
		t.Errorf("AggregateStatistics() = %+v, want no PII", agg)
	}

	if err := rerun.AttachRedaction("a.png", report); err != nil {
		t.Fatal(err)
	}
	if rec, _ := rerun.Document("a.png"); rec.Error != "" {
		t.Errorf("Error = %q after a successful rerun", rec.Error)
	}
}

func TestMarkFailedKeepsFindingsOfSameRun(t *testing.T) {
	l := newTestLedger(t)
	l.InitDatasetInfo("", nil)
	if err := l.AddDocument(DocumentRecord{Filename: "b.pdf"}); err != nil {
		t.Fatal(err)
	}
	if err := l.AttachFindings("b.pdf", findings(pii.TypePhone, pii.TypeDOB)); err != nil {
		t.Fatal(err)
	}
	if err := l.MarkFailed("b.pdf", errors.New("no redacted page could be written")); err != nil {
		t.Fatal(err)
	}

	rec, _ := l.Document("b.pdf")
	if rec.PIICount != 2 || rec.PIIStatistics["phone"] != 1 || len(rec.RedactedBoxes) != 2 {
		t.Errorf("findings attached before the failure were dropped: %+v", rec)
	}
}

func TestReplaceGenerated(t *testing.T) {
	l := newTestLedger(t)
	for _, rec := range []DocumentRecord{
		{Filename: "notes.png"},
		{
			Filename:    "sales_contract_01.pdf",
			DocType:     "sales_contract",
			PageCount:   3,
			GeneratedAt: "2024-03-01T01:00:00.000000Z",
			PlantedPII:  []PlantedPII{{Type: pii.TypeCCCD, Page: 2, ValueLength: 12}},
		},
	} {
		if err := l.AddDocument(rec); err != nil {
			t.Fatal(err)
		}
	}
	if err := l.AttachFindings("sales_contract_01.pdf", findings(pii.TypeCCCD)); err != nil {
		t.Fatal(err)
	}
	if err := l.AttachRedaction("sales_contract_01.pdf", &redaction.Report{RedactedFiles: []string{"redacted_sales_contract_01_page_2.png"}, TotalRedactions: 1}); err != nil {
		t.Fatal(err)
	}

	regenerated := DocumentRecord{
		Filename:    "sales_contract_01.pdf",
		DocType:     "sales_contract",
		PageCount:   5,
		GeneratedAt: "2024-03-02T01:00:00.000000Z",
		PlantedPII: []PlantedPII{
			{Type: pii.TypeName, Page: 0, ValueLength: 13},
			{Type: pii.TypePhone, Page: 4, ValueLength: 10},
		},
	}
	if err := l.ReplaceGenerated(regenerated); err != nil {
		t.Fatalf("ReplaceGenerated() error = %v", err)
	}

	docs := l.Documents()
	if len(docs) != 2 || docs[1].Filename != "sales_contract_01.pdf" {
		t.Fatalf("Documents() = %+v, want the record kept in place", docs)
	}
	rec := docs[1]
	if rec.GeneratedAt != regenerated.GeneratedAt || rec.PageCount != 5 || !reflect.DeepEqual(rec.PlantedPII, regenerated.PlantedPII) {
		t.Errorf("generation fields not replaced: %+v", rec)
	}
	if rec.PIICount != 0 || rec.RedactedFiles != nil || rec.TotalRedactions != 0 {
		t.Errorf("results of the previous file survived: %+v", rec)
	}

	if err := l.ReplaceGenerated(DocumentRecord{Filename: "lease_agreement_img_01.png", DocType: "lease_agreement"}); err != nil {
		t.Fatal(err)
	}
	if got := l.DatasetInfo().TotalFiles; got != 3 {
		t.Errorf("TotalFiles = %d, want 3", got)
	}
}

func TestAggregateStatistics(t *testing.T) {
	l := newTestLedger(t)
	for _, rec := range []DocumentRecord{
		{Filename: "a.pdf", DocType: "sales_contract"},
		{Filename: "b.png"},
	} {
		if err := l.AddDocument(rec); err != nil {
			t.Fatal(err)
		}
	}
	if err := l.AttachFindings("a.pdf", findings(pii.TypeCCCD, pii.TypeCCCD, pii.TypeName)); err != nil {
		t.Fatal(err)
	}
	if err := l.AttachFindings("b.png", findings(pii.TypePhone)); err != nil {
		t.Fatal(err)
	}

	got := l.AggregateStatistics()
	want := AggregateStatistics{
		TotalDocuments:    2,
		TotalPIIDetected:  4,
		PIIByType:         map[string]int{"cccd": 2, "name": 1, "phone": 1},
		DocumentsByType:   map[string]int{"sales_contract": 1, "unknown": 1},
		AvgPIIPerDocument: 2,
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("AggregateStatistics() = %+v, want %+v", got, want)
	}
}

func TestAggregateStatisticsAverageRounding(t *testing.T) {
	l := newTestLedger(t)
	for _, name := range []string{"a", "b", "c"} {
		if err := l.AddDocument(DocumentRecord{Filename: name}); err != nil {
			t.Fatal(err)
		}
	}
	if err := l.AttachFindings("a", findings(pii.TypeCCCD, pii.TypeCCCD, pii.TypeName)); err != nil {
		t.Fatal(err)
	}
	if err := l.AttachFindings("b", findings(pii.TypePhone)); err != nil {
		t.Fatal(err)
	}

	if got := l.AggregateStatistics().AvgPIIPerDocument; got != 1.33 {
		t.Errorf("AvgPIIPerDocument = %v, want 1.33", got)
	}
}

func TestAggregateStatisticsEmpty(t *testing.T) {
	got := newTestLedger(t).AggregateStatistics()
	if got.TotalDocuments != 0 || got.AvgPIIPerDocument != 0 {
		t.Errorf("AggregateStatistics() = %+v, want zeros", got)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	l := newTestLedger(t)
	l.InitDatasetInfo("2.0.0", map[string]interface{}{"dpi": 300, "ocr_engine": "vision"})
	if err := l.AddDocument(DocumentRecord{
		Filename:   "hợp_đồng.pdf",
		DocType:    "deposit_contract",
		PlantedPII: []PlantedPII{{Type: pii.TypeName, ValueLength: 13, ApproxPosition: [2]int{200, 400}}},
	}); err != nil {
		t.Fatal(err)
	}
	if err := l.AttachFindings("hợp_đồng.pdf", findings(pii.TypeAddress)); err != nil {
		t.Fatal(err)
	}
	l.UpdateProcessingStats(map[string]interface{}{"documents_processed": 1, "total_processing_time_seconds": 1.25})

	if err := l.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	first, err := os.ReadFile(l.Path())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(first), "hợp_đồng.pdf") {
		t.Errorf("non-ASCII filename was escaped:\n%s", first)
	}
	if strings.Contains(string(first), "Nguyễn") {
		t.Errorf("PII value leaked into metadata:\n%s", first)
	}

	reloaded := New(l.Path(), zerolog.Nop())
	reloaded.now = l.now
	ok, err := reloaded.Load()
	if !ok || err != nil {
		t.Fatalf("Load() = %v, %v", ok, err)
	}
	if _, found := reloaded.Document("hợp_đồng.pdf"); !found {
		t.Fatalf("reloaded ledger lost its index")
	}
	if err := reloaded.Save(); err != nil {
		t.Fatalf("second Save() error = %v", err)
	}
	second, err := os.ReadFile(l.Path())
	if err != nil {
		t.Fatal(err)
	}

	var a, b interface{}
	if err := json.Unmarshal(first, &a); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(second, &b); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Errorf("save → load → save changed the document:\n%s\n---\n%s", first, second)
	}
}

func TestSaveSchema(t *testing.T) {
	l := newTestLedger(t)
	l.InitDatasetInfo("", nil)
	if err := l.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	data, err := os.ReadFile(l.Path())
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"dataset_info", "documents", "processing_stats", "pipeline_version", "aggregate_statistics"} {
		if _, ok := doc[key]; !ok {
			t.Errorf("missing top-level key %q", key)
		}
	}
	if string(doc["documents"]) != "[]" {
		t.Errorf("documents = %s, want []", doc["documents"])
	}
	if !strings.Contains(string(data), "\n  \"dataset_info\"") {
		t.Errorf("output is not indented with two spaces:\n%s", data)
	}
}

func TestLoadMissingFile(t *testing.T) {
	ok, err := newTestLedger(t).Load()
	if ok || err != nil {
		t.Errorf("Load() = %v, %v, want false, nil", ok, err)
	}
}

func TestLoadCorruptFile(t *testing.T) {
	l := newTestLedger(t)
	if err := os.MkdirAll(filepath.Dir(l.Path()), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(l.Path(), []byte(`{"documents": [`), 0o644); err != nil {
		t.Fatal(err)
	}

	ok, err := l.Load()
	if ok || !errors.Is(err, ErrCorruptLedger) {
		t.Errorf("Load() = %v, %v, want ErrCorruptLedger", ok, err)
	}
}

func TestSaveUnwritablePath(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	l := New(filepath.Join(blocker, "metadata.json"), zerolog.Nop())
	if err := l.Save(); !errors.Is(err, ErrWriteFailed) {
		t.Errorf("Save() error = %v, want ErrWriteFailed", err)
	}
}

func TestSummary(t *testing.T) {
	l := newTestLedger(t)
	if err := l.AddDocument(DocumentRecord{Filename: "a.pdf", DocType: "lease_agreement"}); err != nil {
		t.Fatal(err)
	}
	if err := l.AttachFindings("a.pdf", findings(pii.TypeDOB)); err != nil {
		t.Fatal(err)
	}

	s := l.Summary()
	for _, want := range []string{"Total Documents: 1", "Total PII Detected: 1", "Average PII per Document: 1.00", "dob:", "lease_agreement:"} {
		if !strings.Contains(s, want) {
			t.Errorf("Summary() missing %q:\n%s", want, s)
		}
	}
}

func TestExportParquet(t *testing.T) {
	l := newTestLedger(t)
	l.InitDatasetInfo("", nil)
	if err := l.AddDocument(DocumentRecord{Filename: "a.pdf", DocType: "sales_contract"}); err != nil {
		t.Fatal(err)
	}
	if err := l.AttachFindings("a.pdf", findings(pii.TypeCCCD, pii.TypePhone)); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "findings.parquet")
	n, err := l.ExportParquet(path)
	if err != nil || n != 2 {
		t.Fatalf("ExportParquet() = %d, %v", n, err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer file.Close()

	reader := parquet.NewReader(file)
	defer reader.Close()

	var row FindingRow
	if err := reader.Read(&row); err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if row.Filename != "a.pdf" || row.PIIType != "cccd" || row.RunID != l.DatasetInfo().RunID || row.Width != 50 {
		t.Errorf("first row = %+v", row)
	}
}

func TestDatabaseRows(t *testing.T) {
	docs, rows, err := databaseRows("run-1", []DocumentRecord{
		{Filename: "a.pdf", RedactedBoxes: pii.Summaries(findings(pii.TypeCCCD, pii.TypeName))},
		{Filename: "b.png"},
	})
	if err != nil {
		t.Fatalf("databaseRows() error = %v", err)
	}
	if len(docs) != 2 || len(rows) != 2 {
		t.Fatalf("got %d documents, %d findings", len(docs), len(rows))
	}
	if docs[1].PIIStatistics != "{}" || docs[1].RedactedFiles != "[]" {
		t.Errorf("empty document row = %+v", docs[1])
	}
	if rows[1].Seq != 1 || rows[1].PIIType != "name" || rows[1].RunID != "run-1" {
		t.Errorf("finding row = %+v", rows[1])
	}
}

func TestMaskDatabaseURL(t *testing.T) {
	got := maskDatabaseURL("postgres://redact:s3cret@db:5432/dataset?sslmode=disable")
	if strings.Contains(got, "s3cret") || !strings.Contains(got, "redact:***@db:5432") {
		t.Errorf("maskDatabaseURL() = %q", got)
	}
}
