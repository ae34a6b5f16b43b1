// Package ledger records what a pipeline run produced and persists it as metadata.json.
//
// The ledger is owned by a single goroutine. Workers hand their results to the
// owner, which registers documents and attaches findings and redaction reports.
package ledger

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"docredact/internal/pii"
	"docredact/internal/raster"
	"docredact/internal/redaction"
)

// DefaultVersion is written when no pipeline version is configured.
const DefaultVersion = "1.0.0"

const timestampLayout = "2006-01-02T15:04:05.000000Z"

// PlantedPII describes a PII value placed into a synthetic document.
type PlantedPII struct {
	Type           pii.Type `json:"type"`
	Page           int      `json:"page"`
	ValueLength    int      `json:"value_length"`
	ApproxPosition [2]int   `json:"approx_position"`
}

// DocumentRecord is the per-document entry of the ledger.
type DocumentRecord struct {
	Filename    string       `json:"filename"`
	DocType     string       `json:"doc_type,omitempty"`
	PageCount   int          `json:"page_count,omitempty"`
	GeneratedAt string       `json:"generated_at,omitempty"`
	PlantedPII  []PlantedPII `json:"pii_locations,omitempty"`

	RedactedBoxes []pii.Summary  `json:"redacted_boxes,omitempty"`
	PIICount      int            `json:"pii_count"`
	PIIStatistics map[string]int `json:"pii_statistics,omitempty"`

	RedactedFiles   []string `json:"redacted_files,omitempty"`
	TotalRedactions int      `json:"total_redactions"`
	FailedPages     []int    `json:"failed_pages,omitempty"`

	// Error is set when the document failed somewhere in the pipeline.
	Error string `json:"error,omitempty"`

	ProcessingTimestamp string `json:"processing_timestamp"`
}

// DatasetInfo describes the run.
type DatasetInfo struct {
	GeneratedAt     string                 `json:"generated_at"`
	TotalFiles      int                    `json:"total_files"`
	RunID           string                 `json:"run_id,omitempty"`
	PipelineVersion string                 `json:"pipeline_version,omitempty"`
	Configuration   map[string]interface{} `json:"configuration,omitempty"`
	SavedAt         string                 `json:"saved_at,omitempty"`
}

// AggregateStatistics is derived from the document records on every save.
type AggregateStatistics struct {
	TotalDocuments    int            `json:"total_documents"`
	TotalPIIDetected  int            `json:"total_pii_detected"`
	PIIByType         map[string]int `json:"pii_by_type"`
	DocumentsByType   map[string]int `json:"documents_by_type"`
	AvgPIIPerDocument float64        `json:"avg_pii_per_document"`
}

// Metadata is the persisted document.
type Metadata struct {
	DatasetInfo         DatasetInfo            `json:"dataset_info"`
	Documents           []DocumentRecord       `json:"documents"`
	ProcessingStats     map[string]interface{} `json:"processing_stats"`
	PipelineVersion     string                 `json:"pipeline_version"`
	AggregateStatistics *AggregateStatistics   `json:"aggregate_statistics,omitempty"`
}

// Ledger accumulates document records for one run. It is not safe for concurrent use.
type Ledger struct {
	path  string
	meta  Metadata
	index map[string]int
	now   func() time.Time
	log   zerolog.Logger

	// detected holds the documents whose findings were attached during the current run.
	detected map[string]bool
}

// New creates an empty ledger persisted at path.
func New(path string, log zerolog.Logger) *Ledger {
	return &Ledger{
		path:  path,
		meta:  emptyMetadata(DefaultVersion),
		index: make(map[string]int),
		now:   time.Now,
		log:   log,

		detected: make(map[string]bool),
	}
}

func emptyMetadata(version string) Metadata {
	return Metadata{
		Documents:       []DocumentRecord{},
		ProcessingStats: map[string]interface{}{},
		PipelineVersion: version,
	}
}

// Path returns where the ledger is saved.
func (l *Ledger) Path() string {
	return l.path
}

// Timestamp formats t the way the ledger stores times: UTC, microseconds, trailing Z.
func Timestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func (l *Ledger) timestamp() string {
	return Timestamp(l.now())
}

// InitDatasetInfo starts a new run: a fresh run ID, generation time and zero files.
// Existing document records are kept so a loaded ledger can be extended.
func (l *Ledger) InitDatasetInfo(version string, configuration map[string]interface{}) {
	if version == "" {
		version = DefaultVersion
	}
	l.meta.PipelineVersion = version
	l.meta.DatasetInfo = DatasetInfo{
		GeneratedAt:     l.timestamp(),
		TotalFiles:      len(l.meta.Documents),
		RunID:           uuid.NewString(),
		PipelineVersion: version,
		Configuration:   configuration,
	}
	l.detected = make(map[string]bool)

	l.log.Info().
		Str("run_id", l.meta.DatasetInfo.RunID).
		Str("pipeline_version", version).
		Msg("Dataset metadata initialized")
}

// DatasetInfo returns the run description.
func (l *Ledger) DatasetInfo() DatasetInfo {
	return l.meta.DatasetInfo
}

// AddDocument registers a document. A record without a filename or with an
// already registered filename is logged and rejected.
func (l *Ledger) AddDocument(rec DocumentRecord) error {
	const op = "AddDocument"

	if rec.Filename == "" {
		l.log.Warn().Msg("Document metadata missing filename")
		return newLedgerError(op, "", ErrMissingFilename)
	}
	if _, exists := l.index[rec.Filename]; exists {
		l.log.Warn().Str("filename", rec.Filename).Msg("Document already registered")
		return newLedgerError(op, rec.Filename, ErrDuplicateDocument)
	}

	if rec.ProcessingTimestamp == "" {
		rec.ProcessingTimestamp = l.timestamp()
	}

	l.index[rec.Filename] = len(l.meta.Documents)
	l.meta.Documents = append(l.meta.Documents, rec)
	l.meta.DatasetInfo.TotalFiles = len(l.meta.Documents)

	l.log.Debug().
		Str("filename", rec.Filename).
		Str("doc_type", rec.DocType).
		Msg("Document metadata added")

	return nil
}

// ReplaceGenerated registers a freshly generated document. When the filename is
// already registered, the file on disk has been rewritten: the record keeps its
// position but takes the new generation fields, and results derived from the
// previous file are dropped.
func (l *Ledger) ReplaceGenerated(rec DocumentRecord) error {
	i, exists := l.index[rec.Filename]
	if !exists {
		return l.AddDocument(rec)
	}

	if rec.ProcessingTimestamp == "" {
		rec.ProcessingTimestamp = l.timestamp()
	}
	l.meta.Documents[i] = DocumentRecord{
		Filename:            rec.Filename,
		DocType:             rec.DocType,
		PageCount:           rec.PageCount,
		GeneratedAt:         rec.GeneratedAt,
		PlantedPII:          rec.PlantedPII,
		ProcessingTimestamp: rec.ProcessingTimestamp,
	}
	delete(l.detected, rec.Filename)

	l.log.Debug().
		Str("filename", rec.Filename).
		Str("generated_at", rec.GeneratedAt).
		Msg("Generated document replaced")

	return nil
}

func (l *Ledger) lookup(op, filename string) (*DocumentRecord, error) {
	i, ok := l.index[filename]
	if !ok {
		l.log.Warn().Str("filename", filename).Msg("Document not found in metadata")
		return nil, newLedgerError(op, filename, ErrDocumentNotFound)
	}
	return &l.meta.Documents[i], nil
}

// AttachFindings stores the persisted view of findings on a registered document.
// Values never reach the ledger, only their lengths.
func (l *Ledger) AttachFindings(filename string, findings []pii.Finding) error {
	rec, err := l.lookup("AttachFindings", filename)
	if err != nil {
		return err
	}

	rec.RedactedBoxes = pii.Summaries(findings)
	rec.PIICount = len(findings)
	rec.PIIStatistics = make(map[string]int)
	for t, n := range pii.Statistics(findings) {
		rec.PIIStatistics[string(t)] = n
	}
	l.detected[filename] = true

	l.log.Debug().
		Str("filename", filename).
		Int("pii_count", rec.PIICount).
		Msg("PII metadata added to document")

	return nil
}

// AttachRedaction records the files written for a registered document.
func (l *Ledger) AttachRedaction(filename string, report *redaction.Report) error {
	rec, err := l.lookup("AttachRedaction", filename)
	if err != nil {
		return err
	}
	if report == nil {
		return nil
	}

	rec.Error = ""
	rec.RedactedFiles = append([]string(nil), report.RedactedFiles...)
	rec.TotalRedactions = report.TotalRedactions
	rec.FailedPages = append([]int(nil), report.FailedPages...)
	if rec.PageCount == 0 {
		rec.PageCount = report.PageCount
	}

	return nil
}

// MarkFailed records why a registered document could not be processed.
// Redaction output of an earlier run is cleared, and so are its findings unless
// this run attached new ones before failing.
func (l *Ledger) MarkFailed(filename string, cause error) error {
	rec, err := l.lookup("MarkFailed", filename)
	if err != nil {
		return err
	}
	if cause != nil {
		rec.Error = cause.Error()
	}
	rec.RedactedFiles = nil
	rec.TotalRedactions = 0
	rec.FailedPages = nil
	if !l.detected[filename] {
		rec.RedactedBoxes = nil
		rec.PIICount = 0
		rec.PIIStatistics = nil
	}
	return nil
}

// Document returns a copy of the record registered under filename.
func (l *Ledger) Document(filename string) (DocumentRecord, bool) {
	i, ok := l.index[filename]
	if !ok {
		return DocumentRecord{}, false
	}
	return l.meta.Documents[i], true
}

// Documents returns the records in registration order.
func (l *Ledger) Documents() []DocumentRecord {
	return append([]DocumentRecord(nil), l.meta.Documents...)
}

// UpdateProcessingStats merges stats into the run's processing statistics.
func (l *Ledger) UpdateProcessingStats(stats map[string]interface{}) {
	for k, v := range stats {
		l.meta.ProcessingStats[k] = v
	}
	l.log.Debug().Int("keys", len(stats)).Msg("Processing stats updated")
}

// ProcessingStats returns the merged processing statistics.
func (l *Ledger) ProcessingStats() map[string]interface{} {
	return l.meta.ProcessingStats
}

// AggregateStatistics derives totals from the current document records.
func (l *Ledger) AggregateStatistics() AggregateStatistics {
	stats := AggregateStatistics{
		TotalDocuments:  len(l.meta.Documents),
		PIIByType:       make(map[string]int),
		DocumentsByType: make(map[string]int),
	}

	for _, doc := range l.meta.Documents {
		stats.TotalPIIDetected += doc.PIICount
		for t, n := range doc.PIIStatistics {
			stats.PIIByType[t] += n
		}

		docType := doc.DocType
		if docType == "" {
			docType = "unknown"
		}
		stats.DocumentsByType[docType]++
	}

	if stats.TotalDocuments > 0 {
		stats.AvgPIIPerDocument = pii.Round(float64(stats.TotalPIIDetected)/float64(stats.TotalDocuments), 2)
	}

	return stats
}

// Save computes aggregate statistics, stamps saved_at and writes the ledger
// atomically, creating parent directories as needed.
func (l *Ledger) Save() error {
	const op = "Save"

	agg := l.AggregateStatistics()
	l.meta.AggregateStatistics = &agg
	l.meta.DatasetInfo.SavedAt = l.timestamp()

	data, err := l.encode()
	if err != nil {
		return newLedgerError(op, l.path, err)
	}

	err = raster.WriteFileAtomic(l.path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
	if err != nil {
		l.log.Error().Err(err).Str("path", l.path).Msg("Failed to save metadata")
		return newLedgerError(op, l.path, fmt.Errorf("%w: %w", ErrWriteFailed, err))
	}

	l.log.Info().
		Str("path", l.path).
		Int("total_documents", len(l.meta.Documents)).
		Msg("Metadata saved")

	return nil
}

func (l *Ledger) encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(l.meta); err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}
	return buf.Bytes(), nil
}

// Load replaces the in-memory ledger with the saved file. It returns false when
// no file exists and an error when the file cannot be read or parsed.
func (l *Ledger) Load() (bool, error) {
	const op = "Load"

	data, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		l.log.Info().Str("path", l.path).Msg("No existing metadata file found")
		return false, nil
	}
	if err != nil {
		return false, newLedgerError(op, l.path, err)
	}

	var meta Metadata
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&meta); err != nil {
		l.log.Error().Err(err).Str("path", l.path).Msg("Failed to load metadata")
		return false, newLedgerError(op, l.path, fmt.Errorf("%w: %w", ErrCorruptLedger, err))
	}

	if meta.Documents == nil {
		meta.Documents = []DocumentRecord{}
	}
	if meta.ProcessingStats == nil {
		meta.ProcessingStats = map[string]interface{}{}
	}

	index := make(map[string]int, len(meta.Documents))
	for i, doc := range meta.Documents {
		if _, exists := index[doc.Filename]; exists {
			l.log.Warn().Str("filename", doc.Filename).Msg("Duplicate document in metadata file")
			continue
		}
		index[doc.Filename] = i
	}

	l.meta = meta
	l.index = index
	l.detected = make(map[string]bool)

	l.log.Info().
		Str("path", l.path).
		Int("documents", len(meta.Documents)).
		Msg("Metadata loaded")

	return true, nil
}

// Summary returns a human-readable overview of the aggregate statistics.
func (l *Ledger) Summary() string {
	agg := l.AggregateStatistics()

	var b strings.Builder
	b.WriteString("Dataset Summary:\n")
	b.WriteString("----------------\n")
	fmt.Fprintf(&b, "Total Documents: %d\n", agg.TotalDocuments)
	fmt.Fprintf(&b, "Total PII Detected: %d\n", agg.TotalPIIDetected)
	fmt.Fprintf(&b, "Average PII per Document: %.2f\n", agg.AvgPIIPerDocument)
	b.WriteString("\nPII by Type:\n")
	writeCounts(&b, agg.PIIByType)
	b.WriteString("\nDocuments by Type:\n")
	writeCounts(&b, agg.DocumentsByType)

	return strings.TrimSpace(b.String())
}

func writeCounts(b *strings.Builder, counts map[string]int) {
	if len(counts) == 0 {
		b.WriteString("  (none)\n")
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, "  %-20s %d\n", k+":", counts[k])
	}
}
