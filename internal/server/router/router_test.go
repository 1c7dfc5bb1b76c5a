package router

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zaptest"

	"github.com/mamadbah2/restopos/internal/domain/models"
	"github.com/mamadbah2/restopos/internal/repository/memory"
	"github.com/mamadbah2/restopos/internal/server/handlers"
	"github.com/mamadbah2/restopos/internal/service/billview"
	"github.com/mamadbah2/restopos/internal/service/ledger"
	"github.com/mamadbah2/restopos/internal/service/menu"
	"github.com/mamadbah2/restopos/internal/service/printjobs"
)

type testServer struct {
	engine *gin.Engine
	store  *memory.Store
}

func newTestServer(t *testing.T, printLimit string) *testServer {
	t.Helper()
	logger := zaptest.NewLogger(t)
	store := memory.New(memory.WithLogger(logger))

	ledgerSvc := ledger.NewService(store, logger)
	menuSvc := menu.NewService(store, logger)
	trackers := []*printjobs.Tracker{
		printjobs.NewTracker(models.ChannelClient, store, logger, printjobs.WithTimeout(time.Hour)),
		printjobs.NewTracker(models.ChannelKitchen, store, logger, printjobs.WithTimeout(time.Hour)),
	}
	controller := billview.NewController(ledgerSvc, store, trackers, logger)

	engine, err := New(
		handlers.NewBillHandler(ledgerSvc, menuSvc, controller, logger),
		handlers.NewFoodHandler(menuSvc, logger),
		Options{PrintRateLimit: printLimit},
		logger,
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &testServer{engine: engine, store: store}
}

type call struct {
	method string
	path   string
	body   any
	actor  string
	role   string
}

func (s *testServer) do(t *testing.T, c call) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if c.body != nil {
		if err := json.NewEncoder(&body).Encode(c.body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(c.method, c.path, &body)
	req.Header.Set("Content-Type", "application/json")
	if c.actor != "" {
		req.Header.Set("X-Actor", c.actor)
	}
	if c.role != "" {
		req.Header.Set("X-Role", c.role)
	}
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, want, rec.Body.String())
	}
}

func billBody(qty int) handlers.BillRequest {
	return handlers.BillRequest{
		TableNumber: "12",
		Foods:       []models.BillFood{{ID: "f1", Name: "Yassa", Price: 20000, Quantity: qty}},
	}
}

func createBill(t *testing.T, s *testServer) handlers.BillResponse {
	t.Helper()
	rec := s.do(t, call{method: http.MethodPost, path: "/bills", body: billBody(2), actor: "cashier"})
	expectStatus(t, rec, http.StatusCreated)
	return decode[handlers.BillResponse](t, rec)
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, "100-M")
	expectStatus(t, s.do(t, call{method: http.MethodGet, path: "/healthz"}), http.StatusOK)
}

func TestMutationsRequireActor(t *testing.T) {
	s := newTestServer(t, "100-M")

	rec := s.do(t, call{method: http.MethodPost, path: "/bills", body: billBody(1)})
	expectStatus(t, rec, http.StatusUnauthorized)
}

func TestBillLifecycle(t *testing.T) {
	s := newTestServer(t, "100-M")

	bill := createBill(t, s)
	if bill.Code != "HS00000001" || bill.Total != 40000 || bill.CreatedBy != "cashier" {
		t.Fatalf("created = %+v", bill)
	}

	rec := s.do(t, call{method: http.MethodGet, path: "/bills/" + bill.ID})
	expectStatus(t, rec, http.StatusOK)

	rec = s.do(t, call{method: http.MethodPut, path: "/bills/" + bill.ID, body: billBody(3), actor: "manager"})
	expectStatus(t, rec, http.StatusOK)
	updated := decode[handlers.BillResponse](t, rec)
	if updated.Total != 60000 || updated.Code != bill.Code {
		t.Fatalf("updated = %+v", updated)
	}

	rec = s.do(t, call{method: http.MethodGet, path: "/bills/" + bill.ID + "/history"})
	expectStatus(t, rec, http.StatusOK)
	history := decode[[]models.BillHistoryEntry](t, rec)
	if len(history) != 1 || history[0].UpdatedBy != "manager" || history[0].OldData.Foods[0].Quantity != 2 {
		t.Fatalf("history = %+v", history)
	}

	rec = s.do(t, call{method: http.MethodGet, path: "/bills"})
	expectStatus(t, rec, http.StatusOK)
	if list := decode[[]handlers.BillResponse](t, rec); len(list) != 1 {
		t.Fatalf("list = %+v", list)
	}
}

func TestInvalidBill(t *testing.T) {
	s := newTestServer(t, "100-M")

	rec := s.do(t, call{method: http.MethodPost, path: "/bills", body: handlers.BillRequest{TableNumber: "1"}, actor: "cashier"})
	expectStatus(t, rec, http.StatusUnprocessableEntity)
}

func TestPrintFlow(t *testing.T) {
	s := newTestServer(t, "100-M")
	bill := createBill(t, s)
	printPath := "/bills/" + bill.ID + "/print/kitchen"

	rec := s.do(t, call{method: http.MethodPost, path: printPath, actor: "waiter"})
	expectStatus(t, rec, http.StatusPreconditionRequired)

	rec = s.do(t, call{method: http.MethodPost, path: printPath + "?confirm=true", actor: "waiter"})
	expectStatus(t, rec, http.StatusAccepted)
	job := decode[models.PrintJob](t, rec)
	if job.Status != models.JobPending || job.BillID != bill.ID {
		t.Fatalf("job = %+v", job)
	}

	rec = s.do(t, call{method: http.MethodGet, path: printPath})
	expectStatus(t, rec, http.StatusOK)
	if state := decode[models.JobState](t, rec); state.State != models.StatePending || state.JobID != job.ID {
		t.Fatalf("print status = %+v", state)
	}

	rec = s.do(t, call{method: http.MethodGet, path: "/bills/" + bill.ID + "/gate"})
	expectStatus(t, rec, http.StatusOK)
	if gate := decode[billview.Gate](t, rec); gate.CanMutate {
		t.Fatalf("gate open while a job is pending: %+v", gate)
	}

	rec = s.do(t, call{method: http.MethodPut, path: "/bills/" + bill.ID, body: billBody(5), actor: "waiter"})
	expectStatus(t, rec, http.StatusConflict)

	rec = s.do(t, call{method: http.MethodPost, path: "/bills/" + bill.ID + "/print/client?confirm=true", actor: "waiter"})
	expectStatus(t, rec, http.StatusConflict)
}

func TestPrintErrors(t *testing.T) {
	s := newTestServer(t, "100-M")
	bill := createBill(t, s)

	rec := s.do(t, call{method: http.MethodPost, path: "/bills/" + bill.ID + "/print/bar?confirm=true", actor: "waiter"})
	expectStatus(t, rec, http.StatusBadRequest)

	rec = s.do(t, call{method: http.MethodPost, path: "/bills/missing/print/client?confirm=true", actor: "waiter"})
	expectStatus(t, rec, http.StatusNotFound)

	rec = s.do(t, call{method: http.MethodPost, path: "/bills/missing/print/client", actor: "waiter"})
	expectStatus(t, rec, http.StatusNotFound)

	rec = s.do(t, call{method: http.MethodGet, path: "/bills/missing"})
	expectStatus(t, rec, http.StatusNotFound)
}

func TestPrintRateLimit(t *testing.T) {
	s := newTestServer(t, "1-M")
	bill := createBill(t, s)
	path := "/bills/" + bill.ID + "/print/client"

	expectStatus(t, s.do(t, call{method: http.MethodPost, path: path, actor: "waiter"}), http.StatusPreconditionRequired)
	expectStatus(t, s.do(t, call{method: http.MethodPost, path: path, actor: "waiter"}), http.StatusTooManyRequests)
}

func TestFoodsAndSelections(t *testing.T) {
	s := newTestServer(t, "100-M")
	food := models.Food{Name: "Thiakry", Price: 1500, Type: "dessert"}

	rec := s.do(t, call{method: http.MethodPost, path: "/foods", body: food, actor: "waiter"})
	expectStatus(t, rec, http.StatusForbidden)

	rec = s.do(t, call{method: http.MethodPost, path: "/foods", body: food, actor: "boss", role: "admin"})
	expectStatus(t, rec, http.StatusCreated)
	created := decode[models.Food](t, rec)

	rec = s.do(t, call{method: http.MethodGet, path: "/foods"})
	expectStatus(t, rec, http.StatusOK)
	if foods := decode[[]models.Food](t, rec); len(foods) != 1 {
		t.Fatalf("foods = %+v", foods)
	}

	body := handlers.BillRequest{
		TableNumber: "2",
		Selections:  []models.FoodSelection{{FoodID: created.ID, Quantity: 3}},
	}
	rec = s.do(t, call{method: http.MethodPost, path: "/bills", body: body, actor: "waiter"})
	expectStatus(t, rec, http.StatusCreated)
	if bill := decode[handlers.BillResponse](t, rec); bill.Total != 4500 || bill.Foods[0].Name != "Thiakry" {
		t.Fatalf("bill = %+v", bill)
	}

	body.Selections[0].FoodID = "missing"
	rec = s.do(t, call{method: http.MethodPost, path: "/bills", body: body, actor: "waiter"})
	expectStatus(t, rec, http.StatusNotFound)
}

func TestRateLimitRejectsBadFormat(t *testing.T) {
	if _, err := rateLimit("lots"); err == nil {
		t.Fatalf("rateLimit(lots) succeeded")
	}
}
