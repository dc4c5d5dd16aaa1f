package beam_test

import (
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"

	"milltrack/internal/config"
	"milltrack/internal/handlers/beam"
	"milltrack/internal/mill"
	"milltrack/internal/models"
	"milltrack/internal/store"
	"milltrack/internal/testutil"
	"milltrack/internal/websocket"
)

func newHandler(t *testing.T) *beam.Handler {
	t.Helper()
	return &beam.Handler{
		DB:     testutil.SetupTestDB(t),
		Store:  testutil.SetupTestStore(t),
		Hub:    websocket.NewHub(),
		Config: config.Default(),
	}
}

// seedWeavableBeam puts B1 through warping, sizing and both dispatches
// so it is ready for a loom at 259/1.
func seedWeavableBeam(t *testing.T, s *store.Store) {
	t.Helper()
	testutil.Seed(t, s, store.Orderbook, []models.Order{
		{OrderNo: "O1", DesignNo: "D1", FactoryOrderM: 1000, WeavingLocation: "259/1"},
	})
	testutil.Seed(t, s, store.WarpingProduction, []models.WarpingProduction{
		{OrderNo: "O1", DesignNo: "D1", BeamNo: "B1", Quantity: 800},
	})
	testutil.Seed(t, s, store.WarpingDispatch, []models.WarpingDispatch{
		{Date: "2024-03-01", BeamNo: "B1", DispatchStatus: "Yes"},
	})
	testutil.Seed(t, s, store.SizingProduction, []models.SizingProduction{
		{BeamNo: "B1", Status: "Yes"},
	})
	testutil.Seed(t, s, store.SizingDispatch, []models.SizingDispatch{
		{Date: "2024-03-02", BeamNo: "B1", DispatchStatus: "Yes"},
	})
}

func initiateBody(beamNo string, loomNo int) map[string]interface{} {
	return map[string]interface{}{
		"location":       "259/1",
		"beam_no":        beamNo,
		"loom_no":        loomNo,
		"start_datetime": "2024-03-03T08:00",
	}
}

func TestInitiate(t *testing.T) {
	h := newHandler(t)
	seedWeavableBeam(t, h.Store)

	w := httptest.NewRecorder()
	h.Initiate(w, testutil.AuthedJSONRequest("POST", "/api/v1/beam/initiate", initiateBody("B1", 10), ""))
	testutil.AssertStatus(t, w, 200)

	records := store.Load[models.InitiateBeam](h.Store, store.InitiateBeam)
	if len(records) != 1 || records[0].BeamNo != "B1" || records[0].LoomNo != 10 {
		t.Errorf("initiations = %+v", records)
	}
}

func TestInitiateRejectsUnknownLoom(t *testing.T) {
	h := newHandler(t)
	seedWeavableBeam(t, h.Store)

	// 259/1 runs looms 1-128.
	w := httptest.NewRecorder()
	h.Initiate(w, testutil.AuthedJSONRequest("POST", "/api/v1/beam/initiate", initiateBody("B1", 500), ""))
	testutil.AssertStatus(t, w, 400)
	if !strings.Contains(w.Body.String(), "not installed") {
		t.Errorf("error = %s", w.Body.String())
	}
}

func TestInitiateRejectsUnavailableBeam(t *testing.T) {
	h := newHandler(t)
	seedWeavableBeam(t, h.Store)

	w := httptest.NewRecorder()
	h.Initiate(w, testutil.AuthedJSONRequest("POST", "/api/v1/beam/initiate", initiateBody("B9", 10), ""))
	testutil.AssertStatus(t, w, 400)
	if !strings.Contains(w.Body.String(), "not available") {
		t.Errorf("error = %s", w.Body.String())
	}
}

func TestInitiateRejectsBusyLoom(t *testing.T) {
	h := newHandler(t)
	seedWeavableBeam(t, h.Store)
	testutil.Seed(t, h.Store, store.SizingDispatch, []models.SizingDispatch{
		{Date: "2024-03-02", BeamNo: "B1", DispatchStatus: "Yes"},
		{Date: "2024-03-02", BeamNo: "B2", DispatchStatus: "Yes"},
	})
	testutil.Seed(t, h.Store, store.WarpingProduction, []models.WarpingProduction{
		{OrderNo: "O1", DesignNo: "D1", BeamNo: "B1"},
		{OrderNo: "O1", DesignNo: "D1", BeamNo: "B2"},
	})

	w := httptest.NewRecorder()
	h.Initiate(w, testutil.AuthedJSONRequest("POST", "/api/v1/beam/initiate", initiateBody("B1", 10), ""))
	testutil.AssertStatus(t, w, 200)

	w = httptest.NewRecorder()
	h.Initiate(w, testutil.AuthedJSONRequest("POST", "/api/v1/beam/initiate", initiateBody("B2", 10), ""))
	testutil.AssertStatus(t, w, 400)
	if !strings.Contains(w.Body.String(), "already has an active beam") {
		t.Errorf("error = %s", w.Body.String())
	}
}

func statusBody(loomNo int, status string) map[string]interface{} {
	return map[string]interface{}{
		"location": "259/1",
		"loom_no":  loomNo,
		"status":   status,
		"role":     "Grey Weaver",
		"name":     "Mohan",
	}
}

func TestRecordStatusWalksLifecycle(t *testing.T) {
	h := newHandler(t)
	seedWeavableBeam(t, h.Store)
	testutil.Seed(t, h.Store, store.InitiateBeam, []models.InitiateBeam{
		{Location: "259/1", BeamNo: "B1", LoomNo: 10, Timestamp: "2024-03-03 08:00:00"},
	})

	for i, status := range mill.StatusFlow {
		body := statusBody(10, status)
		body["timestamp"] = fmt.Sprintf("2024-03-%02d 08:00:00", 4+i)
		w := httptest.NewRecorder()
		h.RecordStatus(w, testutil.AuthedJSONRequest("POST", "/api/v1/beam/status", body, ""))
		testutil.AssertStatus(t, w, 200)
	}

	// Beam End is terminal: the loom no longer has an active beam.
	w := httptest.NewRecorder()
	h.RecordStatus(w, testutil.AuthedJSONRequest("POST", "/api/v1/beam/status", statusBody(10, mill.BeamStart), ""))
	testutil.AssertStatus(t, w, 400)
	if !strings.Contains(w.Body.String(), "no active beam") {
		t.Errorf("error = %s", w.Body.String())
	}
}

func TestRecordStatusRejectsOutOfOrder(t *testing.T) {
	h := newHandler(t)
	seedWeavableBeam(t, h.Store)
	testutil.Seed(t, h.Store, store.InitiateBeam, []models.InitiateBeam{
		{Location: "259/1", BeamNo: "B1", LoomNo: 10, Timestamp: "2024-03-03 08:00:00"},
	})

	// The first event must be Beam Start, not QC Start.
	w := httptest.NewRecorder()
	h.RecordStatus(w, testutil.AuthedJSONRequest("POST", "/api/v1/beam/status", statusBody(10, mill.QCStart), ""))
	testutil.AssertStatus(t, w, 400)
	var resp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if !strings.Contains(resp.Error, `expects "Beam Start" next`) {
		t.Errorf("error = %s", resp.Error)
	}
}

func TestRecordStatusAcceptsMinuteTimestamp(t *testing.T) {
	h := newHandler(t)
	seedWeavableBeam(t, h.Store)
	testutil.Seed(t, h.Store, store.InitiateBeam, []models.InitiateBeam{
		{Location: "259/1", BeamNo: "B1", LoomNo: 10, Timestamp: "2024-03-03 08:00:00"},
	})

	// Shop floor forms submit minute precision; stored normalized with
	// seconds so event ordering stays lexicographic.
	body := statusBody(10, mill.BeamStart)
	body["timestamp"] = "2024-03-04 08:30"
	w := httptest.NewRecorder()
	h.RecordStatus(w, testutil.AuthedJSONRequest("POST", "/api/v1/beam/status", body, ""))
	testutil.AssertStatus(t, w, 200)

	events := store.Load[models.BeamEvent](h.Store, store.BeamOnLoom)
	if len(events) != 1 || events[0].Timestamp != "2024-03-04 08:30:00" {
		t.Errorf("events = %+v, want one event at 2024-03-04 08:30:00", events)
	}
}

func TestRecordStatusRejectsFutureTimestamp(t *testing.T) {
	h := newHandler(t)
	seedWeavableBeam(t, h.Store)
	testutil.Seed(t, h.Store, store.InitiateBeam, []models.InitiateBeam{
		{Location: "259/1", BeamNo: "B1", LoomNo: 10, Timestamp: "2024-03-03 08:00:00"},
	})

	body := statusBody(10, mill.BeamStart)
	body["timestamp"] = "2099-01-01 00:00:00"
	w := httptest.NewRecorder()
	h.RecordStatus(w, testutil.AuthedJSONRequest("POST", "/api/v1/beam/status", body, ""))
	testutil.AssertStatus(t, w, 400)
	if !strings.Contains(w.Body.String(), "future") {
		t.Errorf("error = %s", w.Body.String())
	}
}

func TestRecordStatusRejectsBeamMismatch(t *testing.T) {
	h := newHandler(t)
	seedWeavableBeam(t, h.Store)
	testutil.Seed(t, h.Store, store.InitiateBeam, []models.InitiateBeam{
		{Location: "259/1", BeamNo: "B1", LoomNo: 10, Timestamp: "2024-03-03 08:00:00"},
	})

	body := statusBody(10, mill.BeamStart)
	body["beam_no"] = "B7"
	w := httptest.NewRecorder()
	h.RecordStatus(w, testutil.AuthedJSONRequest("POST", "/api/v1/beam/status", body, ""))
	testutil.AssertStatus(t, w, 400)
	if !strings.Contains(w.Body.String(), "running beam B1") {
		t.Errorf("error = %s", w.Body.String())
	}
}

func TestNextStatusEndpoint(t *testing.T) {
	h := newHandler(t)
	seedWeavableBeam(t, h.Store)
	testutil.Seed(t, h.Store, store.InitiateBeam, []models.InitiateBeam{
		{Location: "259/1", BeamNo: "B1", LoomNo: 10, Timestamp: "2024-03-03 08:00:00"},
	})

	w := httptest.NewRecorder()
	h.NextStatus(w, testutil.AuthedRequest("GET", "/api/v1/beam/next-status?loom_no=10", nil, ""))
	testutil.AssertStatus(t, w, 200)

	var got map[string]string
	testutil.DecodeEnvelope(t, w, &got)
	if got["beam_no"] != "B1" || got["next_status"] != mill.BeamStart {
		t.Errorf("next-status = %v", got)
	}

	w = httptest.NewRecorder()
	h.NextStatus(w, testutil.AuthedRequest("GET", "/api/v1/beam/next-status", nil, ""))
	testutil.AssertStatus(t, w, 400)
}

func TestAvailableLooms(t *testing.T) {
	h := newHandler(t)
	seedWeavableBeam(t, h.Store)
	testutil.Seed(t, h.Store, store.InitiateBeam, []models.InitiateBeam{
		{Location: "259/1", BeamNo: "B1", LoomNo: 10, Timestamp: "2024-03-03 08:00:00"},
	})

	w := httptest.NewRecorder()
	h.AvailableLooms(w, testutil.AuthedRequest("GET", "/api/v1/beam/available-looms/259/1", nil, ""), "259/1")
	testutil.AssertStatus(t, w, 200)

	var looms []int
	testutil.DecodeEnvelope(t, w, &looms)
	if len(looms) != 127 {
		t.Fatalf("got %d looms, want 127", len(looms))
	}
	for _, loom := range looms {
		if loom == 10 {
			t.Error("loom 10 holds an active initiation and should be excluded")
		}
	}
}

func TestLoomLatest(t *testing.T) {
	h := newHandler(t)
	seedWeavableBeam(t, h.Store)
	testutil.Seed(t, h.Store, store.InitiateBeam, []models.InitiateBeam{
		{Location: "259/1", BeamNo: "B1", LoomNo: 10, Timestamp: "2024-03-03 08:00:00"},
	})

	w := httptest.NewRecorder()
	h.LoomLatest(w, testutil.AuthedRequest("GET", "/api/v1/beam/loom/10/latest?location=259/1", nil, ""), "10")
	testutil.AssertStatus(t, w, 200)

	var design mill.LoomDesign
	testutil.DecodeEnvelope(t, w, &design)
	if design.BeamNo != "B1" || design.DesignNo != "D1" {
		t.Errorf("design = %+v", design)
	}

	w = httptest.NewRecorder()
	h.LoomLatest(w, testutil.AuthedRequest("GET", "/api/v1/beam/loom/99/latest?location=259/1", nil, ""), "99")
	testutil.AssertStatus(t, w, 404)
}
