package posapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/mamadbah2/restopos/internal/domain/models"
)

// ErrConfirmationRequired is returned by Print when confirm is false.
var ErrConfirmationRequired = errors.New("print requires confirmation")

// Config holds the settings of the API client.
type Config struct {
	BaseURL string
	Actor   string
	Role    string
	Timeout time.Duration
}

// Bill mirrors a bill response of the API.
type Bill struct {
	models.Bill
	Total int64 `json:"total"`
}

// EditRequest is the body of a bill creation or edit.
type EditRequest struct {
	TableNumber string            `json:"tableNumber"`
	Note        string            `json:"note"`
	Foods       []models.BillFood `json:"foods"`
}

// Gate mirrors the gate response of the API.
type Gate struct {
	BillID    string          `json:"billId"`
	Client    models.JobState `json:"client"`
	Kitchen   models.JobState `json:"kitchen"`
	CanMutate bool            `json:"canMutate"`
}

// APIError is a non-2xx answer of the API.
type APIError struct {
	StatusCode int
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api returned %d: %s", e.StatusCode, e.Message)
}

// Client is a resty-backed client of the POS HTTP API.
type Client struct {
	httpClient *resty.Client
}

// NewClient builds an API client using the provided configuration values.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	restyClient := resty.New()
	restyClient.
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetTimeout(timeout)
	if cfg.Actor != "" {
		restyClient.SetHeader("X-Actor", cfg.Actor)
	}
	if cfg.Role != "" {
		restyClient.SetHeader("X-Role", cfg.Role)
	}

	return &Client{httpClient: restyClient}
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	apiErr := new(APIError)

	req := c.httpClient.R().
		SetContext(ctx).
		SetResult(result).
		SetError(apiErr)
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.IsError() {
		apiErr.StatusCode = resp.StatusCode()
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode())
		}
		return apiErr
	}
	return nil
}

// ListBills returns every bill, newest first.
func (c *Client) ListBills(ctx context.Context) ([]Bill, error) {
	var bills []Bill
	if err := c.do(ctx, http.MethodGet, "/bills", nil, &bills); err != nil {
		return nil, err
	}
	return bills, nil
}

// GetBill returns one bill.
func (c *Client) GetBill(ctx context.Context, id string) (*Bill, error) {
	bill := new(Bill)
	if err := c.do(ctx, http.MethodGet, "/bills/"+id, nil, bill); err != nil {
		return nil, err
	}
	return bill, nil
}

// EditBill replaces the mutable fields of a bill.
func (c *Client) EditBill(ctx context.Context, id string, req EditRequest) (*Bill, error) {
	bill := new(Bill)
	if err := c.do(ctx, http.MethodPut, "/bills/"+id, req, bill); err != nil {
		return nil, err
	}
	return bill, nil
}

// Gate returns the print state of both channels of a bill.
func (c *Client) Gate(ctx context.Context, id string) (*Gate, error) {
	gate := new(Gate)
	if err := c.do(ctx, http.MethodGet, "/bills/"+id+"/gate", nil, gate); err != nil {
		return nil, err
	}
	return gate, nil
}

// PrintStatus returns the latest job state of a bill on one channel.
func (c *Client) PrintStatus(ctx context.Context, id string, channel models.Channel) (*models.JobState, error) {
	state := new(models.JobState)
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/bills/%s/print/%s", id, channel), nil, state); err != nil {
		return nil, err
	}
	return state, nil
}

// Print submits a print job. confirm must be true; printing is a physical action.
func (c *Client) Print(ctx context.Context, id string, channel models.Channel, confirm bool) (*models.PrintJob, error) {
	if !confirm {
		return nil, ErrConfirmationRequired
	}
	job := new(models.PrintJob)
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/bills/%s/print/%s?confirm=true", id, channel), nil, job); err != nil {
		return nil, err
	}
	return job, nil
}
