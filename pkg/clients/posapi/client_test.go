package posapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mamadbah2/restopos/internal/domain/models"
)

func TestClientSendsActorAndDecodesBill(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Actor") != "waiter" {
			t.Errorf("X-Actor = %q", r.Header.Get("X-Actor"))
		}
		if r.Method != http.MethodGet || r.URL.Path != "/bills/b1" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":    "b1",
			"code":  "HS00000001",
			"total": 40000,
			"foods": []models.BillFood{{ID: "f1", Price: 20000, Quantity: 2}},
		})
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL + "/", Actor: "waiter"})
	bill, err := client.GetBill(context.Background(), "b1")
	if err != nil {
		t.Fatalf("GetBill: %v", err)
	}
	if bill.ID != "b1" || bill.Code != "HS00000001" || bill.Total != 40000 || len(bill.Foods) != 1 {
		t.Fatalf("bill = %+v", bill)
	}
}

func TestClientReturnsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"a print job is still in progress for this bill"}`))
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, Actor: "waiter"})
	_, err := client.EditBill(context.Background(), "b1", EditRequest{TableNumber: "1"})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("EditBill error = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusConflict || apiErr.Message == "" {
		t.Fatalf("apiErr = %+v", apiErr)
	}
}

func TestPrintNeedsConfirmation(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Query().Get("confirm") != "true" {
			t.Errorf("confirm query = %q", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(models.PrintJob{ID: "j1", BillID: "b1", Status: models.JobPending})
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, Actor: "waiter"})
	if _, err := client.Print(context.Background(), "b1", models.ChannelKitchen, false); !errors.Is(err, ErrConfirmationRequired) {
		t.Fatalf("Print(unconfirmed) = %v, want ErrConfirmationRequired", err)
	}
	if calls != 0 {
		t.Fatalf("unconfirmed print reached the server")
	}

	job, err := client.Print(context.Background(), "b1", models.ChannelKitchen, true)
	if err != nil {
		t.Fatalf("Print: %v", err)
	}
	if job.ID != "j1" || job.Status != models.JobPending {
		t.Fatalf("job = %+v", job)
	}
}

func TestPrintStatusDecodesJobState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/bills/b1/print/kitchen" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(models.JobState{
			Channel: models.ChannelKitchen,
			BillID:  "b1",
			JobID:   "j1",
			Status:  models.JobPending,
			State:   models.StatePending,
			Label:   models.StatusLabel(models.StatePending),
		})
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, Actor: "waiter"})
	state, err := client.PrintStatus(context.Background(), "b1", models.ChannelKitchen)
	if err != nil {
		t.Fatalf("PrintStatus: %v", err)
	}
	if state.JobID != "j1" || state.State != models.StatePending || state.State.Settled() {
		t.Fatalf("state = %+v", state)
	}
}
