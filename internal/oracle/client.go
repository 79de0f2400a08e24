// Package oracle talks to the remote spreadsheet endpoint. A successful
// fetch is the only proof that a credential is valid.
package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BradenHooton/matcenter/internal/metrics"
	"github.com/BradenHooton/matcenter/internal/models"
)

const (
	DefaultTimeout     = 15 * time.Second
	DefaultDescription = "Условие не указано"

	maxResponseBytes = 4 << 20
)

var leadingNumber = regexp.MustCompile(`^(\d+)`)

type Config struct {
	Endpoint string
	Timeout  time.Duration // per call; zero uses DefaultTimeout
}

// response is the wire format of every endpoint action
type response struct {
	Success bool       `json:"success"`
	Error   string     `json:"error"`
	Tasks   []wireTask `json:"tasks"`
	IsAdmin bool       `json:"isAdmin"`
	Count   int        `json:"count"`
}

type wireTask struct {
	Number      json.RawMessage `json:"number"`
	Status      string          `json:"status"`
	Description string          `json:"description"`
	Hint        string          `json:"hint"`
}

// Client is safe for concurrent use
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(config Config, logger *slog.Logger) *Client {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
	}
}

// Fetch loads the protected task list using credential as authorization.
// Transport errors, non-2xx statuses and malformed bodies wrap
// models.ErrOracleUnavailable or models.ErrMalformedResponse; an explicit
// rejection wraps models.ErrInvalidCredential.
func (c *Client) Fetch(ctx context.Context, credential, clientID string) (*models.ProtectedData, error) {
	params := url.Values{}
	params.Set("password", credential)
	params.Set("clientId", clientID)

	resp, err := c.call(ctx, params)
	if err != nil {
		return nil, err
	}
	if len(resp.Tasks) == 0 {
		return nil, fmt.Errorf("%w: empty task list", models.ErrMalformedResponse)
	}

	data := &models.ProtectedData{
		Tasks:   make([]models.Task, 0, len(resp.Tasks)),
		IsAdmin: resp.IsAdmin,
		Count:   resp.Count,
	}
	for _, t := range resp.Tasks {
		data.Tasks = append(data.Tasks, normalizeTask(t))
	}

	c.logger.Info("protected data loaded",
		slog.Int("tasks", len(data.Tasks)),
		slog.Bool("is_admin", data.IsAdmin),
	)
	return data, nil
}

// ChangeTaskStatus sets the status cell of a task
func (c *Client) ChangeTaskStatus(ctx context.Context, credential string, taskNumber int, status string) error {
	params := url.Values{}
	params.Set("password", credential)
	params.Set("action", "changeStatus")
	params.Set("taskNumber", strconv.Itoa(taskNumber))
	params.Set("newStatus", status)

	_, err := c.call(ctx, params)
	return err
}

// SetHint stores hint text for a task
func (c *Client) SetHint(ctx context.Context, credential string, taskNumber int, hint string) error {
	params := url.Values{}
	params.Set("password", credential)
	params.Set("action", "setHint")
	params.Set("taskNumber", strconv.Itoa(taskNumber))
	params.Set("hintText", hint)

	_, err := c.call(ctx, params)
	return err
}

func (c *Client) call(ctx context.Context, params url.Values) (*response, error) {
	start := time.Now()
	resp, err := c.do(ctx, params)
	metrics.ObserveOracle(params.Get("action"), start, err)
	return resp, err
}

func (c *Client) do(ctx context.Context, params url.Values) (*response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	endpoint, err := url.Parse(c.config.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid endpoint: %v", models.ErrOracleUnavailable, err)
	}
	query := endpoint.Query()
	for k, vs := range params {
		for _, v := range vs {
			query.Add(k, v)
		}
	}
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrOracleUnavailable, err)
	}

	start := time.Now()
	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrOracleUnavailable, err)
	}
	defer httpResp.Body.Close()

	c.logger.Debug("oracle responded",
		slog.String("action", params.Get("action")),
		slog.Int("status", httpResp.StatusCode),
		slog.Duration("elapsed", time.Since(start)),
	)

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: HTTP status %d", models.ErrOracleUnavailable, httpResp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", models.ErrOracleUnavailable, err)
	}

	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrMalformedResponse, err)
	}
	if !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = "request rejected"
		}
		return nil, fmt.Errorf("%w: %s", models.ErrInvalidCredential, msg)
	}
	return &resp, nil
}

func normalizeTask(t wireTask) models.Task {
	numberText := rawText(t.Number)

	task := models.Task{
		NumberText:  numberText,
		Status:      strings.TrimSpace(t.Status),
		Description: t.Description,
		Hint:        t.Hint,
	}
	if task.Description == "" {
		task.Description = DefaultDescription
	}
	if m := leadingNumber.FindStringSubmatch(numberText); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			task.Number = &n
		}
	}
	return task
}

// rawText accepts the number column as either a JSON string or a number
func rawText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// IsTransient reports whether err came from the transport rather than an
// explicit rejection by the endpoint
func IsTransient(err error) bool {
	return errors.Is(err, models.ErrOracleUnavailable) || errors.Is(err, models.ErrMalformedResponse)
}
