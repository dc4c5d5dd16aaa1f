package orderbook_test

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"milltrack/internal/handlers/orderbook"
	"milltrack/internal/models"
	"milltrack/internal/store"
	"milltrack/internal/testutil"
	"milltrack/internal/websocket"
)

func newHandler(t *testing.T) *orderbook.Handler {
	t.Helper()
	return &orderbook.Handler{
		DB:    testutil.SetupTestDB(t),
		Store: testutil.SetupTestStore(t),
		Hub:   websocket.NewHub(),
	}
}

// orderRow fills every required column, keyed off the combo.
func orderRow(orderNo, designNo string, meters float64) map[string]interface{} {
	return map[string]interface{}{
		"Office Date":             "2024-03-01",
		"Order No.":               orderNo,
		"Design No.":              designNo,
		"Quality":                 "Poplin",
		"Factory Order (Meters)":  meters,
		"Weaving Location":        "259/1",
		"Party Name":              "Acme Textiles",
		"Party Quantity (Meters)": meters,
		"Delivery Date":           "2024-05-01",
	}
}

func buildWorkbook(t *testing.T, headers []string, rows []map[string]interface{}) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	for i, name := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, name)
	}
	for r, row := range rows {
		for i, name := range headers {
			if v, ok := row[name]; ok {
				cell, _ := excelize.CoordinatesToCellName(i+1, r+2)
				f.SetCellValue(sheet, cell, v)
			}
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return buf.Bytes()
}

func uploadRequest(t *testing.T, filename string, workbook []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	part.Write(workbook)
	mw.Close()

	req := httptest.NewRequest("POST", "/api/v1/orderbook/import", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestImport(t *testing.T) {
	h := newHandler(t)

	wb := buildWorkbook(t, orderbook.RequiredColumns, []map[string]interface{}{
		orderRow("O1", "D1", 1000),
		orderRow("O1", "D2", 500),
	})
	w := httptest.NewRecorder()
	h.Import(w, uploadRequest(t, "orderbook_march.xlsx", wb))
	testutil.AssertStatus(t, w, 200)

	orders := store.Load[models.Order](h.Store, store.Orderbook)
	if len(orders) != 2 {
		t.Fatalf("got %d orders, want 2", len(orders))
	}
	if orders[0].OrderNo != "O1" || orders[0].FactoryOrderM != 1000 || orders[0].WeavingLocation != "259/1" {
		t.Errorf("order = %+v", orders[0])
	}
	if orders[0].UploadFilename != "orderbook_march.xlsx" {
		t.Errorf("UploadFilename = %q", orders[0].UploadFilename)
	}
}

func TestImportRejectsMissingColumns(t *testing.T) {
	h := newHandler(t)

	headers := orderbook.RequiredColumns[:10]
	wb := buildWorkbook(t, headers, []map[string]interface{}{orderRow("O1", "D1", 1000)})
	w := httptest.NewRecorder()
	h.Import(w, uploadRequest(t, "orderbook.xlsx", wb))
	testutil.AssertStatus(t, w, 400)
	if !strings.Contains(w.Body.String(), "missing columns") {
		t.Errorf("error = %s", w.Body.String())
	}
}

func TestImportRejectsDuplicateCombos(t *testing.T) {
	h := newHandler(t)
	testutil.Seed(t, h.Store, store.Orderbook, []models.Order{
		{OrderNo: "O1", DesignNo: "D1", FactoryOrderM: 1000},
	})

	wb := buildWorkbook(t, orderbook.RequiredColumns, []map[string]interface{}{
		orderRow("O1", "D1", 1000),
		orderRow("O2", "D2", 500),
	})
	w := httptest.NewRecorder()
	h.Import(w, uploadRequest(t, "orderbook.xlsx", wb))
	testutil.AssertStatus(t, w, 400)
	if !strings.Contains(w.Body.String(), "already in orderbook: O1/D1") {
		t.Errorf("error = %s", w.Body.String())
	}
	// All-or-nothing: O2/D2 must not land.
	if orders := store.Load[models.Order](h.Store, store.Orderbook); len(orders) != 1 {
		t.Errorf("failed import changed the book: %d rows", len(orders))
	}
}

func TestImportSkipsBlankRows(t *testing.T) {
	h := newHandler(t)

	wb := buildWorkbook(t, orderbook.RequiredColumns, []map[string]interface{}{
		orderRow("O1", "D1", 1000),
		{"Quality": "stray note without a combo"},
	})
	w := httptest.NewRecorder()
	h.Import(w, uploadRequest(t, "orderbook.xlsx", wb))
	testutil.AssertStatus(t, w, 200)

	if orders := store.Load[models.Order](h.Store, store.Orderbook); len(orders) != 1 {
		t.Errorf("got %d orders, want 1", len(orders))
	}
}

func TestListWithFilter(t *testing.T) {
	h := newHandler(t)
	testutil.Seed(t, h.Store, store.Orderbook, []models.Order{
		{OrderNo: "O1", DesignNo: "D1"},
		{OrderNo: "O2", DesignNo: "D2"},
	})

	w := httptest.NewRecorder()
	h.List(w, testutil.AuthedRequest("GET", "/api/v1/orderbook?order_no=O2", nil, ""))
	testutil.AssertStatus(t, w, 200)

	var orders []models.Order
	testutil.DecodeEnvelope(t, w, &orders)
	if len(orders) != 1 || orders[0].OrderNo != "O2" {
		t.Errorf("orders = %+v", orders)
	}
}

func TestListPaginated(t *testing.T) {
	h := newHandler(t)
	testutil.Seed(t, h.Store, store.Orderbook, []models.Order{
		{OrderNo: "O1", DesignNo: "D1"},
		{OrderNo: "O2", DesignNo: "D2"},
		{OrderNo: "O3", DesignNo: "D3"},
	})

	w := httptest.NewRecorder()
	h.List(w, testutil.AuthedRequest("GET", "/api/v1/orderbook?page=2&limit=2", nil, ""))
	testutil.AssertStatus(t, w, 200)

	var resp struct {
		Data []models.Order `json:"data"`
		Meta *models.Meta   `json:"meta"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Data) != 1 || resp.Data[0].OrderNo != "O3" {
		t.Errorf("page 2 = %+v", resp.Data)
	}
	if resp.Meta == nil || resp.Meta.Total != 3 || resp.Meta.Page != 2 || resp.Meta.Limit != 2 {
		t.Errorf("meta = %+v", resp.Meta)
	}
}

func TestClose(t *testing.T) {
	h := newHandler(t)
	testutil.Seed(t, h.Store, store.Orderbook, []models.Order{
		{OrderNo: "O1", DesignNo: "D1"},
		{OrderNo: "O1", DesignNo: "D2"},
	})

	body := map[string]interface{}{
		"combos": []map[string]string{{"order_no": "O1", "design_no": "D1"}},
	}
	w := httptest.NewRecorder()
	h.Close(w, testutil.AuthedJSONRequest("POST", "/api/v1/orderbook/close", body, ""))
	testutil.AssertStatus(t, w, 200)

	live := store.Load[models.Order](h.Store, store.Orderbook)
	if len(live) != 1 || live[0].DesignNo != "D2" {
		t.Errorf("live book = %+v", live)
	}
	closed := store.Load[models.Order](h.Store, store.OrdersClosed)
	if len(closed) != 1 || closed[0].DesignNo != "D1" {
		t.Errorf("closed book = %+v", closed)
	}
}

func TestCloseUnknownCombo(t *testing.T) {
	h := newHandler(t)

	body := map[string]interface{}{
		"combos": []map[string]string{{"order_no": "O9", "design_no": "D9"}},
	}
	w := httptest.NewRecorder()
	h.Close(w, testutil.AuthedJSONRequest("POST", "/api/v1/orderbook/close", body, ""))
	testutil.AssertStatus(t, w, 400)
}

func TestDelete(t *testing.T) {
	h := newHandler(t)
	testutil.Seed(t, h.Store, store.Orderbook, []models.Order{
		{OrderNo: "O1", DesignNo: "D1"},
		{OrderNo: "O1", DesignNo: "D2"},
	})

	w := httptest.NewRecorder()
	h.Delete(w, testutil.AuthedRequest("DELETE", "/api/v1/orderbook?order_no=O1&design_no=D1", nil, ""))
	testutil.AssertStatus(t, w, 200)

	if orders := store.Load[models.Order](h.Store, store.Orderbook); len(orders) != 1 {
		t.Errorf("got %d orders after delete, want 1", len(orders))
	}

	w = httptest.NewRecorder()
	h.Delete(w, testutil.AuthedRequest("DELETE", "/api/v1/orderbook?order_no=O1&design_no=D1", nil, ""))
	testutil.AssertStatus(t, w, 404)
}

func TestOrdersAndDesigns(t *testing.T) {
	h := newHandler(t)
	testutil.Seed(t, h.Store, store.Orderbook, []models.Order{
		{OrderNo: "O2", DesignNo: "D3"},
		{OrderNo: "O1", DesignNo: "D1"},
		{OrderNo: "O1", DesignNo: "D2"},
	})

	w := httptest.NewRecorder()
	h.Orders(w, testutil.AuthedRequest("GET", "/api/v1/orderbook/orders", nil, ""))
	var orders []string
	testutil.DecodeEnvelope(t, w, &orders)
	if len(orders) != 2 || orders[0] != "O1" {
		t.Errorf("orders = %v", orders)
	}

	w = httptest.NewRecorder()
	h.Designs(w, testutil.AuthedRequest("GET", "/api/v1/orderbook/designs?order_no=O1", nil, ""))
	var designs []string
	testutil.DecodeEnvelope(t, w, &designs)
	if len(designs) != 2 || designs[1] != "D2" {
		t.Errorf("designs = %v", designs)
	}

	w = httptest.NewRecorder()
	h.Designs(w, testutil.AuthedRequest("GET", "/api/v1/orderbook/designs", nil, ""))
	testutil.AssertStatus(t, w, 400)
}

func TestExportRoundTripsHeaders(t *testing.T) {
	h := newHandler(t)
	testutil.Seed(t, h.Store, store.Orderbook, []models.Order{
		{OrderNo: "O1", DesignNo: "D1", FactoryOrderM: 1000},
	})

	w := httptest.NewRecorder()
	h.Export(w, testutil.AuthedRequest("GET", "/api/v1/orderbook/export?format=csv", nil, ""))
	testutil.AssertStatus(t, w, 200)

	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d csv lines, want 2", len(lines))
	}
	// The header row must match the import contract column for column.
	if !strings.HasPrefix(lines[0], "Office Date,") || !strings.Contains(lines[0], "Delivery Date") {
		t.Errorf("header = %s", lines[0])
	}
}
