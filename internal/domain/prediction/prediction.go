// Package prediction forwards doctors' feature vectors to the breast-cancer
// model service and relays its answer unchanged.
package prediction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/aimedicare/aimedicare/internal/platform/apperror"
	"github.com/aimedicare/aimedicare/internal/platform/telemetry"
	"github.com/aimedicare/aimedicare/internal/platform/upstream"
)

const serviceName = "prediction"

const (
	MsgInvalidBody = "Request body must be a JSON object."
	MsgUnavailable = "The prediction service is currently unavailable. Please try again later."
)

type Client struct {
	url        string
	httpClient *http.Client
	metrics    *telemetry.Metrics
}

func NewClient(url string, httpClient *http.Client, metrics *telemetry.Metrics) *Client {
	if httpClient == nil {
		httpClient = upstream.NewHTTPClient(0)
	}
	return &Client{url: url, httpClient: httpClient, metrics: metrics}
}

// Predict posts payload to the model service and returns its JSON reply.
func (c *Client) Predict(ctx context.Context, payload json.RawMessage) (out json.RawMessage, err error) {
	start := time.Now()
	defer func() { c.metrics.ObserveUpstream(serviceName, "breast", start, err) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", serviceName, err)
	}
	defer resp.Body.Close()

	body, err := upstream.ReadBody(serviceName, resp)
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("%s: response is not JSON", serviceName)
	}
	return body, nil
}

type Predictor interface {
	Predict(ctx context.Context, payload json.RawMessage) (json.RawMessage, error)
}

type Handler struct {
	predictor Predictor
}

func NewHandler(p Predictor) *Handler {
	return &Handler{predictor: p}
}

func (h *Handler) RegisterRoutes(g *echo.Group, mw ...echo.MiddlewareFunc) {
	g.POST("/breast", h.Breast, mw...)
}

func (h *Handler) Breast(c echo.Context) error {
	payload, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return apperror.Wrap(apperror.KindValidation, MsgInvalidBody, err)
	}
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 || payload[0] != '{' || !json.Valid(payload) {
		return apperror.Validation(MsgInvalidBody)
	}

	out, err := h.predictor.Predict(c.Request().Context(), payload)
	if err != nil {
		return upstream.AppError(err, MsgUnavailable, true)
	}
	return c.JSONBlob(http.StatusOK, out)
}
