package cors

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func request(allowed []string, method, origin string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(New(allowed))
	router.GET("/runs", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.OPTIONS("/runs", func(c *gin.Context) { c.Status(http.StatusOK) })
	req := httptest.NewRequest(method, "/runs", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCORSAllowList(t *testing.T) {
	allowed := []string{"https://league.example/"}

	w := request(allowed, http.MethodGet, "https://league.example")
	assert.Equal(t, "https://league.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), "Content-Disposition")

	w = request(allowed, http.MethodGet, "https://evil.example")
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSAllowAllAndPreflight(t *testing.T) {
	w := request(nil, http.MethodGet, "")
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	w = request(nil, http.MethodOptions, "https://any.example")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://any.example", w.Header().Get("Access-Control-Allow-Origin"))
}
