package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS redaction_documents (
	run_id               TEXT        NOT NULL,
	filename             TEXT        NOT NULL,
	doc_type             TEXT        NOT NULL DEFAULT '',
	page_count           INTEGER     NOT NULL DEFAULT 0,
	pii_count            INTEGER     NOT NULL DEFAULT 0,
	total_redactions     INTEGER     NOT NULL DEFAULT 0,
	pii_statistics       JSONB       NOT NULL DEFAULT '{}',
	redacted_files       JSONB       NOT NULL DEFAULT '[]',
	error                TEXT        NOT NULL DEFAULT '',
	processing_timestamp TEXT        NOT NULL,
	synced_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (run_id, filename)
);

CREATE TABLE IF NOT EXISTS redaction_findings (
	run_id       TEXT             NOT NULL,
	filename     TEXT             NOT NULL,
	seq          INTEGER          NOT NULL,
	page         INTEGER          NOT NULL,
	pii_type     TEXT             NOT NULL,
	value_length INTEGER          NOT NULL,
	confidence   DOUBLE PRECISION NOT NULL,
	x            INTEGER          NOT NULL,
	y            INTEGER          NOT NULL,
	width        INTEGER          NOT NULL,
	height       INTEGER          NOT NULL,
	PRIMARY KEY (run_id, filename, seq)
);`

// documentRow mirrors one DocumentRecord in redaction_documents.
type documentRow struct {
	RunID               string `db:"run_id"`
	Filename            string `db:"filename"`
	DocType             string `db:"doc_type"`
	PageCount           int    `db:"page_count"`
	PIICount            int    `db:"pii_count"`
	TotalRedactions     int    `db:"total_redactions"`
	PIIStatistics       string `db:"pii_statistics"`
	RedactedFiles       string `db:"redacted_files"`
	Error               string `db:"error"`
	ProcessingTimestamp string `db:"processing_timestamp"`
}

// findingRow mirrors one redacted box in redaction_findings.
type findingRow struct {
	RunID       string  `db:"run_id"`
	Filename    string  `db:"filename"`
	Seq         int     `db:"seq"`
	Page        int     `db:"page"`
	PIIType     string  `db:"pii_type"`
	ValueLength int     `db:"value_length"`
	Confidence  float64 `db:"confidence"`
	X           int     `db:"x"`
	Y           int     `db:"y"`
	Width       int     `db:"width"`
	Height      int     `db:"height"`
}

// PostgresSink mirrors ledger records into PostgreSQL.
type PostgresSink struct {
	db  *sqlx.DB
	log zerolog.Logger
}

// NewPostgresSink connects to databaseURL and ensures the schema exists.
func NewPostgresSink(ctx context.Context, databaseURL string, log zerolog.Logger) (*PostgresSink, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	sink := &PostgresSink{db: db, log: log}
	if err := sink.initialize(ctx); err != nil {
		db.Close()
		return nil, err
	}

	log.Info().
		Str("database_url", maskDatabaseURL(databaseURL)).
		Msg("Postgres sink initialized")

	return sink, nil
}

func (s *PostgresSink) initialize(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Sync upserts every document of the ledger and replaces its findings, in one transaction.
func (s *PostgresSink) Sync(ctx context.Context, l *Ledger) error {
	runID := l.DatasetInfo().RunID
	docs, findings, err := databaseRows(runID, l.Documents())
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, doc := range docs {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO redaction_documents
				(run_id, filename, doc_type, page_count, pii_count, total_redactions,
				 pii_statistics, redacted_files, error, processing_timestamp)
			VALUES
				(:run_id, :filename, :doc_type, :page_count, :pii_count, :total_redactions,
				 :pii_statistics, :redacted_files, :error, :processing_timestamp)
			ON CONFLICT (run_id, filename) DO UPDATE SET
				doc_type = EXCLUDED.doc_type,
				page_count = EXCLUDED.page_count,
				pii_count = EXCLUDED.pii_count,
				total_redactions = EXCLUDED.total_redactions,
				pii_statistics = EXCLUDED.pii_statistics,
				redacted_files = EXCLUDED.redacted_files,
				error = EXCLUDED.error,
				processing_timestamp = EXCLUDED.processing_timestamp,
				synced_at = now()`, doc)
		if err != nil {
			return fmt.Errorf("failed to upsert document %s: %w", doc.Filename, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM redaction_findings WHERE run_id = $1`, runID); err != nil {
		return fmt.Errorf("failed to clear findings: %w", err)
	}
	if len(findings) > 0 {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO redaction_findings
				(run_id, filename, seq, page, pii_type, value_length, confidence, x, y, width, height)
			VALUES
				(:run_id, :filename, :seq, :page, :pii_type, :value_length, :confidence, :x, :y, :width, :height)`,
			findings)
		if err != nil {
			return fmt.Errorf("failed to insert findings: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	s.log.Info().
		Str("run_id", runID).
		Int("documents", len(docs)).
		Int("findings", len(findings)).
		Msg("Ledger synced to database")

	return nil
}

// Close closes the database connection.
func (s *PostgresSink) Close() error {
	return s.db.Close()
}

func databaseRows(runID string, records []DocumentRecord) ([]documentRow, []findingRow, error) {
	docs := make([]documentRow, 0, len(records))
	var findings []findingRow

	for _, rec := range records {
		stats := rec.PIIStatistics
		if stats == nil {
			stats = map[string]int{}
		}
		statsJSON, err := json.Marshal(stats)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encode pii statistics: %w", err)
		}
		files := rec.RedactedFiles
		if files == nil {
			files = []string{}
		}
		filesJSON, err := json.Marshal(files)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encode redacted files: %w", err)
		}

		docs = append(docs, documentRow{
			RunID:               runID,
			Filename:            rec.Filename,
			DocType:             rec.DocType,
			PageCount:           rec.PageCount,
			PIICount:            rec.PIICount,
			TotalRedactions:     rec.TotalRedactions,
			PIIStatistics:       string(statsJSON),
			RedactedFiles:       string(filesJSON),
			Error:               rec.Error,
			ProcessingTimestamp: rec.ProcessingTimestamp,
		})

		for i, box := range rec.RedactedBoxes {
			findings = append(findings, findingRow{
				RunID:       runID,
				Filename:    rec.Filename,
				Seq:         i,
				Page:        box.Page,
				PIIType:     string(box.Type),
				ValueLength: box.ValueLength,
				Confidence:  box.Confidence,
				X:           box.BBox[0],
				Y:           box.BBox[1],
				Width:       box.BBox[2],
				Height:      box.BBox[3],
			})
		}
	}

	return docs, findings, nil
}

// maskDatabaseURL hides the password of a postgres:// URL for logging.
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}
