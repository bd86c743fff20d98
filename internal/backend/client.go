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
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/nekogravitycat/futsal-booking-session/internal/slot"
)

// ErrUnavailable marks transport failures and timeouts.
var ErrUnavailable = errors.New("backend unavailable")

const maxErrorBody = 64 << 10

var tracer = otel.Tracer("github.com/nekogravitycat/futsal-booking-session/internal/backend")

// Method selects the booking-creation endpoint.
type Method string

const (
	MethodGateway Method = "gateway"
	MethodPoints  Method = "points"
)

// Client calls the platform REST API. The zero timeout is not allowed; every
// call is bounded.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	token   string
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		timeout: timeout,
	}
}

// WithToken returns a copy that forwards token as the bearer credential.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

// ListSlots implements slot.Fetcher.
func (c *Client) ListSlots(ctx context.Context, courtID slot.CourtID, date string) ([]slot.Slot, error) {
	q := url.Values{}
	q.Set("date", date)
	path := "/futsals/" + strconv.FormatInt(int64(courtID), 10) + "/slots?" + q.Encode()

	var slots []slot.Slot
	if err := c.do(ctx, "backend.ListSlots", http.MethodGet, path, nil, &slots); err != nil {
		return nil, errors.Wrapf(err, "list slots of court %d on %s", courtID, date)
	}
	return slots, nil
}

// CreateBooking posts to the endpoint of the given payment method.
func (c *Client) CreateBooking(ctx context.Context, method Method, payload BookingPayload) (*BookingCreated, error) {
	path := "/bookings"
	if method == MethodPoints {
		path = "/bookings/points"
	}

	var out BookingCreated
	if err := c.do(ctx, "backend.CreateBooking", http.MethodPost, path, payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PaymentCallback hands the gateway's return-trip parameters to the backend.
func (c *Client) PaymentCallback(ctx context.Context, params CallbackParams) (*CallbackResult, error) {
	var out CallbackResult
	if err := c.do(ctx, "backend.PaymentCallback", http.MethodPost, "/payments/callback", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	ctx, span := tracer.Start(ctx, op, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("http.method", method), attribute.String("http.path", path))

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encode request body")
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		return errors.Mark(errors.Wrapf(err, "%s %s", method, path), ErrUnavailable)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: extractMessage(raw)}
		span.SetStatus(codes.Error, apiErr.Error())
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctx.Err() != nil {
			return errors.Mark(errors.Wrap(err, "read response"), ErrUnavailable)
		}
		return errors.Wrapf(err, "decode %s %s response", method, path)
	}
	return nil
}

// extractMessage pulls the server's message out of the common error shapes:
// {"message"}, {"data":{"message"}}, {"error"} and {"detail"}.
func extractMessage(raw []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Detail  string `json:"detail"`
		Data    struct {
			Message string `json:"message"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	for _, m := range []string{body.Data.Message, body.Message, body.Error, body.Detail} {
		if m != "" {
			return m
		}
	}
	return ""
}

// Message returns the server's message carried by err, if any.
func Message(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return ""
}

// ParseMethod validates a payment method name.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case MethodGateway, MethodPoints:
		return Method(s), nil
	}
	return "", fmt.Errorf("unknown payment method %q", s)
}
