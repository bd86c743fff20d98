package app

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/nekogravitycat/futsal-booking-session/internal/backend"
	"github.com/nekogravitycat/futsal-booking-session/internal/payment"
	"github.com/nekogravitycat/futsal-booking-session/internal/realtime"
)

func newTestContainer(t *testing.T, platformURL string) *Container {
	t.Helper()
	gin.SetMode(gin.TestMode)
	return NewContainer(Config{
		JWTSecret:   "secret",
		Backend:     backend.NewClient(platformURL, time.Second),
		Conn:        realtime.NewBus(),
		Ledger:      payment.NewMemoryRepository(),
		Location:    time.UTC,
		SafeView:    "/",
		SuccessView: "/user/bookings",
		Logger:      zerolog.Nop(),
	})
}

func serve(c *Container, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	c.Router.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestRoutesAreWired(t *testing.T) {
	var callbacks atomic.Int32
	platform := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/payments/callback" {
			callbacks.Add(1)
		}
		_, _ = w.Write([]byte(`{"status":"PAYMENT_SUCCESS"}`))
	}))
	defer platform.Close()

	c := newTestContainer(t, platform.URL)

	assert.Equal(t, http.StatusOK, serve(c, http.MethodGet, "/healthz").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(c, http.MethodPost, "/v1/sessions").Code)

	w := serve(c, http.MethodGet, "/v1/payment/callback?pidx=a&purchase_order_id=b")
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/user/bookings?notice=payment+successful%2C+your+booking+is+confirmed&status=success", w.Header().Get("Location"))

	serve(c, http.MethodGet, "/v1/payment/callback?pidx=a&purchase_order_id=b")
	assert.Equal(t, int32(1), callbacks.Load())
}
