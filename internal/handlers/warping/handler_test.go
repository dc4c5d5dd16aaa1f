package warping_test

import (
	"net/http/httptest"
	"strings"
	"testing"

	"milltrack/internal/handlers/warping"
	"milltrack/internal/models"
	"milltrack/internal/store"
	"milltrack/internal/testutil"
	"milltrack/internal/websocket"
)

func newHandler(t *testing.T) *warping.Handler {
	t.Helper()
	return &warping.Handler{
		DB:    testutil.SetupTestDB(t),
		Store: testutil.SetupTestStore(t),
		Hub:   websocket.NewHub(),
	}
}

func seedCombo(t *testing.T, s *store.Store) {
	t.Helper()
	testutil.Seed(t, s, store.Orderbook, []models.Order{
		{OrderNo: "O1", DesignNo: "D1", FactoryOrderM: 1000},
	})
}

func productionBody(beamNo string, quantity float64) map[string]interface{} {
	return map[string]interface{}{
		"order_no":       "O1",
		"design_no":      "D1",
		"beam_no":        beamNo,
		"machine_no":     "M1",
		"warper_name":    "Ravi",
		"quantity":       quantity,
		"rpm":            400.0,
		"sections":       4.0,
		"breakages":      2.0,
		"start_datetime": "2024-03-01T08:00",
		"end_datetime":   "2024-03-01T10:00",
	}
}

func TestCreateProduction(t *testing.T) {
	h := newHandler(t)
	seedCombo(t, h.Store)

	w := httptest.NewRecorder()
	req := testutil.AuthedJSONRequest("POST", "/api/v1/warping/production", productionBody("B1", 600), "")
	h.CreateProduction(w, req)
	testutil.AssertStatus(t, w, 200)

	var created models.WarpingProduction
	testutil.DecodeEnvelope(t, w, &created)
	if created.TotalOrderQuantity != 1000 {
		t.Errorf("TotalOrderQuantity = %v, want 1000", created.TotalOrderQuantity)
	}
	// (600/400)*4 + 2*5 = 16 minutes; (16+30)/120*100 = 38.33.
	if created.WarpingTimeMinutes != 16 {
		t.Errorf("WarpingTimeMinutes = %v, want 16", created.WarpingTimeMinutes)
	}
	if created.Efficiency != 38.33 {
		t.Errorf("Efficiency = %v, want 38.33", created.Efficiency)
	}

	records := store.Load[models.WarpingProduction](h.Store, store.WarpingProduction)
	if len(records) != 1 || records[0].BeamNo != "B1" {
		t.Errorf("stored records = %+v", records)
	}
}

func TestCreateProductionRejectsDuplicateBeam(t *testing.T) {
	h := newHandler(t)
	seedCombo(t, h.Store)

	w := httptest.NewRecorder()
	h.CreateProduction(w, testutil.AuthedJSONRequest("POST", "/api/v1/warping/production", productionBody("B1", 100), ""))
	testutil.AssertStatus(t, w, 200)

	w = httptest.NewRecorder()
	h.CreateProduction(w, testutil.AuthedJSONRequest("POST", "/api/v1/warping/production", productionBody("B1", 100), ""))
	testutil.AssertStatus(t, w, 400)
	if !strings.Contains(w.Body.String(), "already recorded") {
		t.Errorf("error = %s", w.Body.String())
	}
}

func TestCreateProductionRejectsQuantityOverrun(t *testing.T) {
	h := newHandler(t)
	seedCombo(t, h.Store)

	w := httptest.NewRecorder()
	h.CreateProduction(w, testutil.AuthedJSONRequest("POST", "/api/v1/warping/production", productionBody("B1", 600), ""))
	testutil.AssertStatus(t, w, 200)

	// 600 + 500 overruns the 1000 meter order.
	w = httptest.NewRecorder()
	h.CreateProduction(w, testutil.AuthedJSONRequest("POST", "/api/v1/warping/production", productionBody("B2", 500), ""))
	testutil.AssertStatus(t, w, 400)
	if !strings.Contains(w.Body.String(), "exceeds order total") {
		t.Errorf("error = %s", w.Body.String())
	}

	// 600 + 400 lands exactly on the order total and passes.
	w = httptest.NewRecorder()
	h.CreateProduction(w, testutil.AuthedJSONRequest("POST", "/api/v1/warping/production", productionBody("B2", 400), ""))
	testutil.AssertStatus(t, w, 200)
}

func TestCreateProductionRejectsUnknownCombo(t *testing.T) {
	h := newHandler(t)

	w := httptest.NewRecorder()
	h.CreateProduction(w, testutil.AuthedJSONRequest("POST", "/api/v1/warping/production", productionBody("B1", 100), ""))
	testutil.AssertStatus(t, w, 400)
	if !strings.Contains(w.Body.String(), "not in orderbook") {
		t.Errorf("error = %s", w.Body.String())
	}
}

func TestCreateProductionRejectsBadTimes(t *testing.T) {
	h := newHandler(t)
	seedCombo(t, h.Store)

	body := productionBody("B1", 100)
	body["end_datetime"] = "2024-03-01T07:00"
	w := httptest.NewRecorder()
	h.CreateProduction(w, testutil.AuthedJSONRequest("POST", "/api/v1/warping/production", body, ""))
	testutil.AssertStatus(t, w, 400)
	if !strings.Contains(w.Body.String(), "must be after") {
		t.Errorf("error = %s", w.Body.String())
	}
}

func TestCreateProductionRejectsFutureEnd(t *testing.T) {
	h := newHandler(t)
	seedCombo(t, h.Store)

	body := productionBody("B1", 100)
	body["start_datetime"] = "2099-01-01T08:00"
	body["end_datetime"] = "2099-01-01T10:00"
	w := httptest.NewRecorder()
	h.CreateProduction(w, testutil.AuthedJSONRequest("POST", "/api/v1/warping/production", body, ""))
	testutil.AssertStatus(t, w, 400)
	if !strings.Contains(w.Body.String(), "cannot be in the future") {
		t.Errorf("error = %s", w.Body.String())
	}
}

func TestCreateProductionValidatesFields(t *testing.T) {
	h := newHandler(t)

	body := productionBody("", -5)
	delete(body, "beam_no")
	w := httptest.NewRecorder()
	h.CreateProduction(w, testutil.AuthedJSONRequest("POST", "/api/v1/warping/production", body, ""))
	testutil.AssertStatus(t, w, 400)
	for _, want := range []string{"beam_no", "quantity"} {
		if !strings.Contains(w.Body.String(), want) {
			t.Errorf("error should mention %s: %s", want, w.Body.String())
		}
	}
}

func TestDispatchUpsert(t *testing.T) {
	h := newHandler(t)
	seedCombo(t, h.Store)
	testutil.Seed(t, h.Store, store.WarpingProduction, []models.WarpingProduction{
		{OrderNo: "O1", DesignNo: "D1", BeamNo: "B1", Quantity: 100},
	})

	body := map[string]string{"beam_no": "B1", "date": "2024-03-02", "dispatch_status": "No"}
	w := httptest.NewRecorder()
	h.CreateDispatch(w, testutil.AuthedJSONRequest("POST", "/api/v1/warping/dispatch", body, ""))
	testutil.AssertStatus(t, w, 200)

	// Same beam again flips the record in place, not a second row.
	body["dispatch_status"] = "Yes"
	w = httptest.NewRecorder()
	h.CreateDispatch(w, testutil.AuthedJSONRequest("POST", "/api/v1/warping/dispatch", body, ""))
	testutil.AssertStatus(t, w, 200)

	records := store.Load[models.WarpingDispatch](h.Store, store.WarpingDispatch)
	if len(records) != 1 {
		t.Fatalf("got %d dispatch records, want 1", len(records))
	}
	if records[0].DispatchStatus != "Yes" {
		t.Errorf("dispatch_status = %q, want Yes", records[0].DispatchStatus)
	}
}

func TestDispatchRequiresWarpedBeam(t *testing.T) {
	h := newHandler(t)

	body := map[string]string{"beam_no": "B9", "date": "2024-03-02", "dispatch_status": "Yes"}
	w := httptest.NewRecorder()
	h.CreateDispatch(w, testutil.AuthedJSONRequest("POST", "/api/v1/warping/dispatch", body, ""))
	testutil.AssertStatus(t, w, 400)
	if !strings.Contains(w.Body.String(), "not found in warping production") {
		t.Errorf("error = %s", w.Body.String())
	}
}

func TestDispatchRejectsBadStatus(t *testing.T) {
	h := newHandler(t)
	testutil.Seed(t, h.Store, store.WarpingProduction, []models.WarpingProduction{
		{OrderNo: "O1", DesignNo: "D1", BeamNo: "B1"},
	})

	body := map[string]string{"beam_no": "B1", "date": "2024-03-02", "dispatch_status": "Maybe"}
	w := httptest.NewRecorder()
	h.CreateDispatch(w, testutil.AuthedJSONRequest("POST", "/api/v1/warping/dispatch", body, ""))
	testutil.AssertStatus(t, w, 400)
}

func TestQuantityBalance(t *testing.T) {
	h := newHandler(t)
	seedCombo(t, h.Store)
	testutil.Seed(t, h.Store, store.WarpingProduction, []models.WarpingProduction{
		{OrderNo: "O1", DesignNo: "D1", BeamNo: "B1", Quantity: 600},
	})

	w := httptest.NewRecorder()
	h.QuantityBalance(w, testutil.AuthedRequest("GET", "/api/v1/warping/quantity?order_no=O1&design_no=D1", nil, ""))
	testutil.AssertStatus(t, w, 200)

	var balance map[string]float64
	testutil.DecodeEnvelope(t, w, &balance)
	if balance["allowed"] != 1000 || balance["warped"] != 600 || balance["remaining"] != 400 {
		t.Errorf("balance = %v", balance)
	}
}

func TestAvailableBeams(t *testing.T) {
	h := newHandler(t)
	testutil.Seed(t, h.Store, store.WarpingProduction, []models.WarpingProduction{
		{BeamNo: "B1"}, {BeamNo: "B2"},
	})
	testutil.Seed(t, h.Store, store.WarpingDispatch, []models.WarpingDispatch{
		{BeamNo: "B1", DispatchStatus: "Yes"},
	})

	w := httptest.NewRecorder()
	h.AvailableBeams(w, testutil.AuthedRequest("GET", "/api/v1/warping/available-beams", nil, ""))
	testutil.AssertStatus(t, w, 200)

	var beams []string
	testutil.DecodeEnvelope(t, w, &beams)
	if len(beams) != 1 || beams[0] != "B2" {
		t.Errorf("beams = %v", beams)
	}
}
