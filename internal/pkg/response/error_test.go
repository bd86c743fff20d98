package response

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/nekogravitycat/futsal-booking-session/internal/pkg/apperror"
)

func TestError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	sentinel := apperror.New(http.StatusConflict, "slot is not available")

	tests := []struct {
		name string
		err  error
		code int
		body string
	}{
		{name: "app error", err: sentinel, code: http.StatusConflict, body: `{"error":"slot is not available"}`},
		{name: "wrapped cause", err: sentinel.WithCause(errors.New("db")), code: http.StatusConflict, body: `{"error":"slot is not available"}`},
		{name: "plain error", err: errors.New("boom"), code: http.StatusInternalServerError, body: `{"error":"internal server error"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)

			Error(c, tt.err)

			assert.Equal(t, tt.code, w.Code)
			assert.JSONEq(t, tt.body, w.Body.String())
		})
	}
}
