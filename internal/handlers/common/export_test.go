package common_test

import (
	"bytes"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"milltrack/internal/handlers/common"
)

func TestExportCSV(t *testing.T) {
	w := httptest.NewRecorder()
	common.ExportCSV(w, "beams.csv", []string{"Beam No", "Quantity"}, [][]string{
		{"B1", "600"},
		{"B2", "400"},
	})

	if ct := w.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "beams.csv") {
		t.Errorf("Content-Disposition = %q", cd)
	}

	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}
	if strings.TrimSpace(lines[0]) != "Beam No,Quantity" {
		t.Errorf("header = %q", lines[0])
	}
}

func TestExportExcel(t *testing.T) {
	// 28 columns, the widest sheet exported, to cross the AA boundary.
	headers := make([]string, 28)
	row := make([]string, 28)
	for i := range headers {
		col, _ := excelize.ColumnNumberToName(i + 1)
		headers[i] = "H" + col
		row[i] = "v" + col
	}

	w := httptest.NewRecorder()
	common.ExportExcel(w, "WideSheet", headers, [][]string{row})

	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	if err != nil {
		t.Fatalf("exported workbook unreadable: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("WideSheet")
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 2 || len(rows[0]) != 28 {
		t.Fatalf("sheet shape = %d rows, %d cols", len(rows), len(rows[0]))
	}
	if rows[0][26] != "HAA" || rows[1][27] != "vAB" {
		t.Errorf("columns past Z wrong: %q, %q", rows[0][26], rows[1][27])
	}
	// The scratch sheet is dropped from the workbook.
	for _, name := range f.GetSheetList() {
		if name == "Sheet1" {
			t.Error("Sheet1 should be deleted")
		}
	}
}
