package ledger

import (
	"fmt"
	"io"

	"github.com/segmentio/parquet-go"

	"docredact/internal/raster"
)

// FindingRow is one redacted box flattened for columnar analysis.
type FindingRow struct {
	RunID       string  `parquet:"run_id"`
	Filename    string  `parquet:"filename"`
	DocType     string  `parquet:"doc_type"`
	Page        int32   `parquet:"page"`
	PIIType     string  `parquet:"pii_type"`
	ValueLength int32   `parquet:"value_length"`
	Confidence  float64 `parquet:"confidence"`
	X           int32   `parquet:"x"`
	Y           int32   `parquet:"y"`
	Width       int32   `parquet:"width"`
	Height      int32   `parquet:"height"`
}

// FindingRows flattens every redacted box of the ledger, in document order.
func (l *Ledger) FindingRows() []FindingRow {
	var rows []FindingRow
	for _, doc := range l.meta.Documents {
		for _, box := range doc.RedactedBoxes {
			rows = append(rows, FindingRow{
				RunID:       l.meta.DatasetInfo.RunID,
				Filename:    doc.Filename,
				DocType:     doc.DocType,
				Page:        int32(box.Page),
				PIIType:     string(box.Type),
				ValueLength: int32(box.ValueLength),
				Confidence:  box.Confidence,
				X:           int32(box.BBox[0]),
				Y:           int32(box.BBox[1]),
				Width:       int32(box.BBox[2]),
				Height:      int32(box.BBox[3]),
			})
		}
	}
	return rows
}

// ExportParquet writes FindingRows to path and returns the number of rows written.
func (l *Ledger) ExportParquet(path string) (int, error) {
	rows := l.FindingRows()

	err := raster.WriteFileAtomic(path, func(w io.Writer) error {
		writer := parquet.NewGenericWriter[FindingRow](w)
		if _, err := writer.Write(rows); err != nil {
			return fmt.Errorf("failed to write parquet rows: %w", err)
		}
		return writer.Close()
	})
	if err != nil {
		return 0, newLedgerError("ExportParquet", path, err)
	}

	l.log.Info().
		Str("path", path).
		Int("rows", len(rows)).
		Msg("Findings exported to parquet")

	return len(rows), nil
}
