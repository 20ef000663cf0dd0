package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type routes struct{}

func (routes) RegisterRoutes(e *echo.Echo) {
	e.GET("/boom", func(c echo.Context) error { panic("boom") })
	e.GET("/missing", func(c echo.Context) error {
		return AppErrorResponse(c, NotFoundError("nothing here").WithError(errors.New("lookup")))
	})
}

func serve(s *Server, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestServer_Healthz(t *testing.T) {
	s := NewServer(routes{}, nil)
	rec := serve(s, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServer_MetricsPath(t *testing.T) {
	s := NewServer(routes{}, nil)
	assert.Equal(t, http.StatusOK, serve(s, http.MethodGet, "/metrics").Code)

	off := NewServer(routes{}, nil, WithMetricsPath(""))
	assert.Equal(t, http.StatusNotFound, serve(off, http.MethodGet, "/metrics").Code)
}

func TestServer_RecoversPanics(t *testing.T) {
	s := NewServer(routes{}, nil)
	assert.Equal(t, http.StatusInternalServerError, serve(s, http.MethodGet, "/boom").Code)
}

func TestServer_AppErrorStatus(t *testing.T) {
	s := NewServer(routes{}, nil)
	rec := serve(s, http.MethodGet, "/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "nothing here")
}
