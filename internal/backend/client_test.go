package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nekogravitycat/futsal-booking-session/internal/selection"
	"github.com/nekogravitycat/futsal-booking-session/internal/slot"
)

func TestListSlots(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/futsals/2/slots", r.URL.Path)
		assert.Equal(t, "2025-06-01", r.URL.Query().Get("date"))
		assert.Equal(t, "Bearer user-token", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`[{"slot_id":10,"title":"Morning","start_time":"06:00","end_time":"07:00","price":1500,"credit_point":15,"is_available":true}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/api/", time.Second).WithToken("user-token")
	slots, err := c.ListSlots(context.Background(), 2, "2025-06-01")
	require.NoError(t, err)
	assert.Equal(t, []slot.Slot{{
		ID: 10, Title: "Morning", StartTime: "06:00", EndTime: "07:00",
		Price: 1500, CreditPoint: 15, IsAvailable: true,
	}}, slots)
}

func TestCreateBookingRoutesByMethod(t *testing.T) {
	var paths []string
	var body BookingPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"b-1","status":"pending","payment_url":"https://pay.example/abc"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	payload := BookingPayload{
		BookingDate: "2025-06-01",
		Remarks:     "friendly match",
		Slots:       []selection.Line{{SlotID: 10, Price: 1500, CreditPoint: 15}},
	}

	created, err := c.CreateBooking(context.Background(), MethodGateway, payload)
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/abc", created.PaymentURL)

	_, err = c.CreateBooking(context.Background(), MethodPoints, payload)
	require.NoError(t, err)

	assert.Equal(t, []string{"/bookings", "/bookings/points"}, paths)
	assert.Equal(t, payload, body)
}

func TestErrorMessageExtraction(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "nested data message", body: `{"data":{"message":"Slot already booked"}}`, want: "Slot already booked"},
		{name: "top-level message", body: `{"message":"Insufficient credit points"}`, want: "Insufficient credit points"},
		{name: "error key", body: `{"error":"remarks is required"}`, want: "remarks is required"},
		{name: "not json", body: `<html>bad gateway</html>`, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, time.Second).CreateBooking(context.Background(), MethodPoints, BookingPayload{})
			require.Error(t, err)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
			assert.Equal(t, tt.want, Message(err))
		})
	}
}

func TestTimeoutIsUnavailable(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := NewClient(srv.URL, 20*time.Millisecond).PaymentCallback(context.Background(), CallbackParams{Pidx: "p"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
	assert.Empty(t, Message(err))
}

func TestPaymentCallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p CallbackParams
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		assert.Equal(t, CallbackParams{Pidx: "px", Amount: "1500", PurchaseOrderID: "po-1", TransactionID: "tx"}, p)
		_, _ = w.Write([]byte(`{"status":"PAYMENT_SUCCESS","message":"ok"}`))
	}))
	defer srv.Close()

	res, err := NewClient(srv.URL, time.Second).PaymentCallback(context.Background(),
		CallbackParams{Pidx: "px", Amount: "1500", PurchaseOrderID: "po-1", TransactionID: "tx"})
	require.NoError(t, err)
	assert.Equal(t, PaymentSuccess, res.Status)
}

func TestParseMethod(t *testing.T) {
	m, err := ParseMethod("points")
	require.NoError(t, err)
	assert.Equal(t, MethodPoints, m)

	_, err = ParseMethod("cash")
	assert.Error(t, err)
}
