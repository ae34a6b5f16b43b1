package sheets

import (
	"reflect"
	"testing"

	"docredact/internal/ledger"
	"docredact/internal/pii"
)

func TestExtractSpreadsheetID(t *testing.T) {
	tests := []struct {
		url     string
		want    string
		wantErr bool
	}{
		{"https://docs.google.com/spreadsheets/d/1AbC-d_E2/edit#gid=0", "1AbC-d_E2", false},
		{"https://docs.google.com/spreadsheets/d/xyz", "xyz", false},
		{"https://example.com/not-a-sheet", "", true},
	}

	for _, tt := range tests {
		got, err := extractSpreadsheetID(tt.url)
		if (err != nil) != tt.wantErr {
			t.Errorf("extractSpreadsheetID(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("extractSpreadsheetID(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestReviewRows(t *testing.T) {
	docs := []ledger.DocumentRecord{
		{
			Filename:            "sales_contract_img_01.png",
			DocType:             "sales_contract",
			PageCount:           1,
			PlantedPII:          make([]ledger.PlantedPII, 9),
			PIICount:            3,
			PIIStatistics:       map[string]int{"name": 2, "phone": 1},
			RedactedFiles:       []string{"redacted_sales_contract_img_01.png"},
			TotalRedactions:     3,
			ProcessingTimestamp: "2024-03-01T01:30:00.000000Z",
		},
		{
			Filename:        "lease.pdf",
			PageCount:       3,
			RedactedFiles:   []string{"redacted_lease_page_0.png", "redacted_lease_page_2.png"},
			FailedPages:     []int{1},
			TotalRedactions: 0,
		},
		{Filename: "broken.jpg", Error: "failed to load document"},
		{Filename: "queued.png"},
	}

	rows := ReviewRows("run-1", docs)
	if len(rows) != len(docs) {
		t.Fatalf("ReviewRows() returned %d rows, want %d", len(rows), len(docs))
	}
	for i, row := range rows {
		if len(row) != len(headers) {
			t.Errorf("row %d has %d columns, want %d", i, len(row), len(headers))
		}
	}

	want := []interface{}{
		"run-1", "sales_contract_img_01.png", "sales_contract", 1, 9, 3,
		0, 0, 2, 1, 0,
		3, "", "ok", "", "2024-03-01T01:30:00.000000Z",
	}
	if !reflect.DeepEqual(rows[0], want) {
		t.Errorf("rows[0] = %v, want %v", rows[0], want)
	}

	for i, wantStatus := range []string{"ok", "partial", "error", "pending"} {
		if got := rows[i][13]; got != wantStatus {
			t.Errorf("rows[%d] status = %v, want %s", i, got, wantStatus)
		}
	}
	if rows[1][12] != "1" {
		t.Errorf("failed pages = %v, want \"1\"", rows[1][12])
	}
}

func TestHeadersFollowTypeOrder(t *testing.T) {
	for i, typ := range pii.AllTypes {
		found := false
		for _, h := range headers[6:11] {
			if h == string(typ) {
				found = true
			}
		}
		if !found {
			t.Errorf("AllTypes[%d] = %s has no review column", i, typ)
		}
	}
	if lastColumn != "P" {
		t.Errorf("lastColumn = %s, want P", lastColumn)
	}
}
