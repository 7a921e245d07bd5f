package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/signsinfo/capacity/internal/capacity"
	"github.com/signsinfo/capacity/internal/datekey"
)

// Client provides HTTP access to the capacity API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client

	// Debug callback (optional)
	debugFunc func(format string, args ...any)
}

// ClientConfig holds configuration for the API client.
type ClientConfig struct {
	// BaseURL is the API base URL (e.g., "https://signsinfo.com/backend/api")
	BaseURL string

	// Token is the bearer token identifying the operator (optional)
	Token string

	// Timeout is the HTTP request timeout (default: 15s)
	Timeout time.Duration

	// DebugFunc is an optional callback for debug logging
	DebugFunc func(format string, args ...any)
}

var _ Backend = (*Client)(nil)

// NewClient creates a new capacity API client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}

	return &Client{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		debugFunc: cfg.DebugFunc,
	}
}

// debug logs a message if debug function is configured
func (c *Client) debug(format string, args ...any) {
	if c.debugFunc != nil {
		c.debugFunc(format, args...)
	}
}

// BaseURL returns the configured API base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ListMachines returns every printer.
func (c *Client) ListMachines(ctx context.Context) ([]capacity.Machine, error) {
	var dtos []MachineDTO
	if err := c.getJSON(ctx, url.Values{"type": {TypePrinter}}, &dtos); err != nil {
		return nil, fmt.Errorf("list machines: %w", err)
	}
	machines := make([]capacity.Machine, len(dtos))
	for i, d := range dtos {
		machines[i] = d.Machine()
	}
	return machines, nil
}

// GetUsages returns the usage rows stored for date. Machines without a row
// are omitted.
func (c *Client) GetUsages(ctx context.Context, date datekey.Key) ([]capacity.UsageRecord, error) {
	var dtos []UsageDTO
	q := url.Values{"type": {TypeUsages}, "date": {date.String()}}
	if err := c.getJSON(ctx, q, &dtos); err != nil {
		return nil, fmt.Errorf("get usages for %s: %w", date, err)
	}
	usages := make([]capacity.UsageRecord, len(dtos))
	for i, d := range dtos {
		usages[i] = d.Usage()
		if usages[i].Date == "" {
			usages[i].Date = date
		}
	}
	return usages, nil
}

// GetJobs returns the jobs recorded for date.
func (c *Client) GetJobs(ctx context.Context, date datekey.Key) ([]capacity.Job, error) {
	var dtos []JobDTO
	q := url.Values{"type": {TypeJob}, "date": {date.String()}}
	if err := c.getJSON(ctx, q, &dtos); err != nil {
		return nil, fmt.Errorf("get jobs for %s: %w", date, err)
	}
	jobs := make([]capacity.Job, len(dtos))
	for i, d := range dtos {
		jobs[i] = d.Job()
		if jobs[i].Date == "" {
			jobs[i].Date = date
		}
	}
	return jobs, nil
}

// UpsertUsage writes units used and returns the row id.
func (c *Client) UpsertUsage(ctx context.Context, w UsageWrite) (int64, error) {
	body := UsagePatch{
		Type:      TypeUsage,
		UsageID:   w.ID,
		PrinterID: w.MachineID,
		Date:      w.Date.String(),
		UnitsUsed: w.UnitsUsed,
	}
	id, err := c.sendForID(ctx, http.MethodPatch, body)
	if err != nil {
		return 0, fmt.Errorf("upsert usage: %w", err)
	}
	return id, nil
}

// SetDerivedFlag writes the derive-from-jobs flag and returns the row id.
func (c *Client) SetDerivedFlag(ctx context.Context, w FlagWrite) (int64, error) {
	body := UseJobsPatch{
		Type:      TypeUseJobs,
		UsageID:   w.ID,
		PrinterID: w.MachineID,
		Date:      w.Date.String(),
		UseJobs:   w.Derived,
	}
	id, err := c.sendForID(ctx, http.MethodPatch, body)
	if err != nil {
		return 0, fmt.Errorf("set derived flag: %w", err)
	}
	return id, nil
}

// CreateJob stores a new job and returns its id.
func (c *Client) CreateJob(ctx context.Context, job capacity.Job) (int64, error) {
	dto := JobToDTO(job)
	dto.ID = 0
	dto.Type = TypeJob
	id, err := c.sendForID(ctx, http.MethodPost, dto)
	if err != nil {
		return 0, fmt.Errorf("create job: %w", err)
	}
	return id, nil
}

// UpdateJob replaces a job's name, quantity and dimensions.
func (c *Client) UpdateJob(ctx context.Context, job capacity.Job) error {
	dto := JobToDTO(job)
	dto.Type = TypeJob
	if _, err := c.doRequest(ctx, http.MethodPatch, Path, dto); err != nil {
		return fmt.Errorf("update job %d: %w", job.ID, err)
	}
	return nil
}

// DeleteJob removes a job.
func (c *Client) DeleteJob(ctx context.Context, id int64) error {
	if err := c.delete(ctx, TypeJob, id); err != nil {
		return fmt.Errorf("delete job %d: %w", id, err)
	}
	return nil
}

// CreateMachine stores a new printer and returns its id.
func (c *Client) CreateMachine(ctx context.Context, m capacity.Machine) (int64, error) {
	dto := MachineToDTO(m)
	dto.ID = 0
	dto.Type = TypePrinter
	id, err := c.sendForID(ctx, http.MethodPost, dto)
	if err != nil {
		return 0, fmt.Errorf("create machine: %w", err)
	}
	return id, nil
}

// UpdateMachine replaces a printer's name, capacity and unit.
func (c *Client) UpdateMachine(ctx context.Context, m capacity.Machine) error {
	dto := MachineToDTO(m)
	dto.Type = TypePrinter
	if _, err := c.doRequest(ctx, http.MethodPatch, Path, dto); err != nil {
		return fmt.Errorf("update machine %d: %w", m.ID, err)
	}
	return nil
}

// DeleteMachine removes a printer.
func (c *Client) DeleteMachine(ctx context.Context, id int64) error {
	if err := c.delete(ctx, TypePrinter, id); err != nil {
		return fmt.Errorf("delete machine %d: %w", id, err)
	}
	return nil
}

// GetReport returns per-machine utilization over [start, end].
func (c *Client) GetReport(ctx context.Context, start, end datekey.Key) (map[int64]float64, error) {
	var raw map[string]float64
	q := url.Values{"type": {TypeReport}, "startDate": {start.String()}, "endDate": {end.String()}}
	if err := c.getJSON(ctx, q, &raw); err != nil {
		return nil, fmt.Errorf("get report %s..%s: %w", start, end, err)
	}
	return DecodeReport(raw)
}

// ServerInfo is the health report of a capacity API server.
type ServerInfo struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// Health fetches the server's health report.
func (c *Client) Health(ctx context.Context) (ServerInfo, error) {
	var info ServerInfo
	body, err := c.doRequest(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return info, fmt.Errorf("health check: %w", err)
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return info, fmt.Errorf("failed to parse health response: %w", err)
	}
	return info, nil
}

func (c *Client) getJSON(ctx context.Context, q url.Values, result any) error {
	body, err := c.doRequest(ctx, http.MethodGet, Path+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func (c *Client) sendForID(ctx context.Context, method string, body any) (int64, error) {
	resp, err := c.doRequest(ctx, method, Path, body)
	if err != nil {
		return 0, err
	}
	return DecodeID(resp)
}

func (c *Client) delete(ctx context.Context, kind string, id int64) error {
	q := url.Values{"type": {kind}, "id": {strconv.FormatInt(id, 10)}}
	_, err := c.doRequest(ctx, http.MethodDelete, Path+"?"+q.Encode(), nil)
	return err
}

// doRequest performs an HTTP request with authentication and JSON handling.
func (c *Client) doRequest(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
		c.debug("request: %s %s - body: %s", method, path, string(jsonData))
	} else {
		c.debug("request: %s %s", method, path)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("X-Request-ID", uuid.New().String())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	c.debug("response: %d - %s", resp.StatusCode, string(respBody))

	if resp.StatusCode >= 400 {
		var apiErr APIError
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Error != "" {
			apiErr.StatusCode = resp.StatusCode
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Err())
		}
		return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}
