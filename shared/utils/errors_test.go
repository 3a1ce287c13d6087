package utils

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julis-sh/intranet/shared/apperr"
)

func TestRespondError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"not found", apperr.NotFound("Event"), http.StatusNotFound, "Event not found"},
		{"forbidden", apperr.PermissionDenied("No tenant access"), http.StatusForbidden, "No tenant access"},
		{"invalid state", apperr.InvalidState("Event is not pending (current status: approved)"), http.StatusBadRequest, "Event is not pending (current status: approved)"},
		{"validation", apperr.Validation("bad"), http.StatusBadRequest, "bad"},
		{"unauthorized", apperr.Unauthorized("Invalid token"), http.StatusUnauthorized, "Invalid token"},
		{"unavailable", apperr.Unavailable("SMTP not configured"), http.StatusServiceUnavailable, "SMTP not configured"},
		{"external", apperr.ExternalService("Sending failed", fmt.Errorf("dial tcp")), http.StatusBadGateway, "Sending failed"},
		{"wrapped", errors.Wrap(apperr.NotFound("Meeting"), "loading"), http.StatusNotFound, "Meeting not found"},
		{"internal", apperr.Internal("db down", fmt.Errorf("boom")), http.StatusInternalServerError, "Internal server error"},
		{"foreign", fmt.Errorf("boom"), http.StatusInternalServerError, "Internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			RespondError(c, tt.err)

			assert.Equal(t, tt.status, w.Code)
			var body APIResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.False(t, body.Success)
			assert.Equal(t, tt.message, body.Error)
		})
	}
}

func TestPagination(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		query string
		skip  int
		limit int
	}{
		{"", 0, 50},
		{"?skip=10&limit=20", 10, 20},
		{"?skip=-1&limit=0", 0, 50},
		{"?limit=1000", 0, 200},
		{"?limit=abc", 0, 50},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodGet, "/"+tt.query, nil)
			skip, limit := Pagination(c, 50, 200)
			assert.Equal(t, tt.skip, skip)
			assert.Equal(t, tt.limit, limit)
		})
	}
}
