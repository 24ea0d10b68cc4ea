package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/your-org/idverify/internal/storage"
)

// Submit stats each submitted path before enqueueing; the probe reports
// existence through its error alone.
var _ func(context.Context, string) error = (*storage.MinIOStore)(nil).StatObject

func postJSON(t *testing.T, h *VerificationHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/v1/verifications", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	h.Submit(c)
	return w
}

func TestSubmitValidation(t *testing.T) {
	h := NewVerificationHandler(nil, nil, nil)

	t.Run("malformed body", func(t *testing.T) {
		w := postJSON(t, h, "{")
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing required fields", func(t *testing.T) {
		w := postJSON(t, h, `{"document_path": "documents/front.png"}`)
		require.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestGetRejectsInvalidID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewVerificationHandler(nil, nil, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/v1/verifications/not-a-uuid", nil)
	c.Params = gin.Params{{Key: "id", Value: "not-a-uuid"}}

	h.Get(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}
