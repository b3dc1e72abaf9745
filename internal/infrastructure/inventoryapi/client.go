// Package inventoryapi is the HTTP client of the remote inventory service.
// It is the only component that talks to the network; the composers and the
// batch selector see it through the item, unit and batch Source interfaces.
package inventoryapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"dentalstock/internal/core/apperror"
	appctx "dentalstock/internal/core/context"
	"dentalstock/internal/core/id"
	"dentalstock/internal/domain/batch"
	"dentalstock/internal/domain/catalogs/item"
	"dentalstock/internal/domain/catalogs/unit"
	"dentalstock/internal/domain/documents/export_tx"
	"dentalstock/internal/domain/documents/import_tx"
	"dentalstock/internal/infrastructure/inventoryapi/dto"
	"dentalstock/pkg/logger"
)

const (
	HeaderRequestID      = "X-Request-ID"
	HeaderTraceID        = "X-Trace-ID"
	HeaderSessionID      = "X-Session-ID"
	HeaderIdempotencyKey = "X-Idempotency-Key"

	maxResponseBytes = 4 << 20 // 4 MiB
)

var tracer = otel.Tracer("dentalstock/inventoryapi")

// Compile-time checks that Client serves every consumer.
var (
	_ item.Source         = (*Client)(nil)
	_ unit.Source         = (*Client)(nil)
	_ batch.Source        = (*Client)(nil)
	_ import_tx.Submitter = (*Client)(nil)
	_ export_tx.Submitter = (*Client)(nil)
)

// Config configures a Client.
type Config struct {
	// BaseURL is the service root, e.g. https://clinic.example/api/.
	BaseURL string
	// Token is sent as a bearer token when set.
	Token   string
	Timeout time.Duration

	// HTTPClient overrides the default client (tests).
	HTTPClient *http.Client
	Logger     *logger.Logger
}

// Client calls the inventory service. It never retries; every failure is
// returned to the caller as an *apperror.AppError.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
	log   *logger.Logger
}

// New creates a Client.
func New(cfg Config) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", cfg.BaseURL)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Default()
	}

	return &Client{
		base:  base,
		token: cfg.Token,
		http:  httpClient,
		log:   log.WithComponent("inventoryapi"),
	}, nil
}

// ListItems returns the items stored in warehouses of type wt.
func (c *Client) ListItems(ctx context.Context, wt item.WarehouseType) ([]item.InventoryItem, error) {
	q := url.Values{}
	if wt != "" {
		q.Set("warehouseType", string(wt))
	}

	body, err := c.do(ctx, http.MethodGet, "items", "items", q, nil)
	if err != nil {
		return nil, err
	}
	list, err := dto.DecodeList[dto.ItemResponse](body)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("decode items: %w", err))
	}

	items := make([]item.InventoryItem, 0, len(list))
	for i := range list {
		items = append(items, list[i].ToItem())
	}
	return items, nil
}

// GetBaseUnit returns the base unit of an item.
func (c *Client) GetBaseUnit(ctx context.Context, itemID int64) (*unit.Definition, error) {
	path := "items/" + strconv.FormatInt(itemID, 10) + "/units/base"
	body, err := c.do(ctx, http.MethodGet, "items/{id}/units/base", path, nil, nil)
	if err != nil {
		return nil, err
	}

	var resp dto.UnitResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("decode base unit: %w", err))
	}
	def := resp.ToDefinition()
	return &def, nil
}

// ListBatches returns the batches of an item in the order the service sent
// them (earliest expiry first).
func (c *Client) ListBatches(ctx context.Context, itemID int64) ([]batch.Batch, error) {
	path := "items/" + strconv.FormatInt(itemID, 10) + "/batches"
	body, err := c.do(ctx, http.MethodGet, "items/{id}/batches", path, nil, nil)
	if err != nil {
		return nil, err
	}
	list, err := dto.DecodeList[dto.BatchResponse](body)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("decode batches: %w", err))
	}

	batches := make([]batch.Batch, 0, len(list))
	for i := range list {
		batches = append(batches, list[i].ToBatch())
	}
	return batches, nil
}

// CreateImport posts an import document.
func (c *Client) CreateImport(ctx context.Context, payload import_tx.Payload) error {
	if err := payload.Validate(); err != nil {
		return apperror.NewValidation("import payload is malformed").WithCause(err)
	}
	_, err := c.do(ctx, http.MethodPost, "import-transactions", "import-transactions", nil, payload)
	return err
}

// CreateExport posts an export document.
func (c *Client) CreateExport(ctx context.Context, payload export_tx.Payload) error {
	if err := payload.Validate(); err != nil {
		return apperror.NewValidation("export payload is malformed").WithCause(err)
	}
	_, err := c.do(ctx, http.MethodPost, "export-transactions", "export-transactions", nil, payload)
	return err
}

// do issues one request and returns the response body of a 2xx reply.
// route is the path template used for span names and logs.
func (c *Client) do(ctx context.Context, method, route, path string, query url.Values, in any) ([]byte, error) {
	tr := appctx.GetTrace(ctx)
	if tr == nil {
		tr = appctx.NewTraceContext()
	} else {
		tr = tr.ForRequest()
	}
	ctx = appctx.WithTrace(ctx, tr)

	ctx, span := tracer.Start(ctx, method+" "+route,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.route", route),
			attribute.String("request.id", tr.RequestID),
		),
	)
	defer span.End()

	u := c.base.ResolveReference(&url.URL{Path: path})
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return nil, apperror.NewInternal(fmt.Errorf("encode %s body: %w", route, err))
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("build %s request: %w", route, err))
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set(HeaderRequestID, tr.RequestID)
	req.Header.Set(HeaderTraceID, tr.TraceID)
	if tr.SessionID != "" {
		req.Header.Set(HeaderSessionID, tr.SessionID)
	}
	if method == http.MethodPost {
		req.Header.Set(HeaderIdempotencyKey, id.NewString())
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		appErr := transportError(ctx, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, appErr.Code)
		c.log.WithContext(ctx).Warnw("inventory request failed",
			"method", method,
			"route", route,
			"latency_ms", time.Since(start).Milliseconds(),
			"error", err)
		return nil, appErr
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		appErr := transportError(ctx, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, appErr.Code)
		return nil, appErr
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	latency := time.Since(start)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		appErr := apperror.FromResponse(resp.StatusCode, body)
		span.SetStatus(codes.Error, appErr.Code)
		c.log.WithContext(ctx).Warnw("inventory request rejected",
			"method", method,
			"route", route,
			"status", resp.StatusCode,
			"code", appErr.Code,
			"latency_ms", latency.Milliseconds())
		return nil, appErr
	}

	c.log.WithContext(ctx).Debugw("inventory request",
		"method", method,
		"route", route,
		"status", resp.StatusCode,
		"latency_ms", latency.Milliseconds())
	return body, nil
}

func transportError(ctx context.Context, err error) *apperror.AppError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperror.NewTimeout(err)
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apperror.NewTimeout(err)
	}
	return apperror.NewServiceUnavailable(err)
}
