package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/season-scheduler/internal/models"
	appErrors "github.com/noah-isme/season-scheduler/pkg/errors"
)

func newContext() (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	return c, w
}

func TestJSONEnvelope(t *testing.T) {
	c, w := newContext()
	JSON(c, http.StatusOK, []string{"a"}, &models.Pagination{Page: 1, PageSize: 20, TotalCount: 1}, map[string]interface{}{"warning": "x"})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body, "data")
	assert.Contains(t, body, "pagination")
	assert.Contains(t, body, "meta")
	assert.NotContains(t, body, "error")
}

func TestErrorUsesStatusOfAppError(t *testing.T) {
	c, w := newContext()
	Error(c, appErrors.Clone(appErrors.ErrExportExpired, ""))
	assert.Equal(t, http.StatusGone, w.Code)
	assert.Contains(t, w.Body.String(), "EXPORT_EXPIRED")

	c, w = newContext()
	Error(c, errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "boom")
}

func TestAttachments(t *testing.T) {
	c, w := newContext()
	Attachment(c, "season.csv", "text/csv", []byte("a,b\n"))
	assert.Equal(t, `attachment; filename="season.csv"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "a,b\n", w.Body.String())

	c, w = newContext()
	AttachmentReader(c, "season.pdf", "application/pdf", 4, strings.NewReader("%PDF"))
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Equal(t, "%PDF", w.Body.String())
}
