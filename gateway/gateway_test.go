package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julis-sh/intranet/shared/utils"
)

type received struct {
	method string
	path   string
	query  string
	body   string
	auth   string
}

func backend(t *testing.T, got *received) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		body, _ := io.ReadAll(r.Body)
		*got = received{
			method: r.Method,
			path:   r.URL.Path,
			query:  r.URL.RawQuery,
			body:   string(body),
			auth:   r.Header.Get("Authorization"),
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", `attachment; filename="x.pdf"`)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func deadURL() string {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	return srv.URL
}

func newRouter(gw *Gateway, origins ...string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	registerRoutes(router, gw, origins)
	return router
}

func serve(router *gin.Engine, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestForward_StripsPrefix(t *testing.T) {
	var got received
	srv := backend(t, &got)
	gw := NewGateway()
	gw.Mount(NewServiceClient("members", srv.URL), "kreisverband", "member-changes")
	router := newRouter(gw)

	w := serve(router, http.MethodPost, "/api/v1/member-changes?send_emails=false", `{"scenario":"eintritt"}`, map[string]string{
		"Authorization": "Bearer abc",
		"Content-Type":  "application/json",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, `{"success":true}`, w.Body.String())
	assert.Equal(t, `attachment; filename="x.pdf"`, w.Header().Get("Content-Disposition"))

	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "/member-changes", got.path)
	assert.Equal(t, "send_emails=false", got.query)
	assert.Equal(t, `{"scenario":"eintritt"}`, got.body)
	assert.Equal(t, "Bearer abc", got.auth)

	w = serve(router, http.MethodGet, "/api/v1/kreisverband/123/vorstand", "", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "/kreisverband/123/vorstand", got.path)
}

func TestForward_UnknownRoute(t *testing.T) {
	router := newRouter(NewGateway())

	w := serve(router, http.MethodGet, "/api/v1/location/sessions", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	var resp utils.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Unknown API route", resp.Error)
}

func TestForward_ServiceDown(t *testing.T) {
	gw := NewGateway()
	gw.Mount(NewServiceClient("documents", deadURL()), "documents")
	router := newRouter(gw)

	for i := 0; i < 5; i++ {
		w := serve(router, http.MethodGet, "/api/v1/documents", "", nil)
		assert.Equal(t, http.StatusBadGateway, w.Code)
	}
	w := serve(router, http.MethodGet, "/api/v1/documents", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, utils.StateOpen, gw.routes["documents"].breaker.GetState())
}

func TestCORS(t *testing.T) {
	var got received
	gw := NewGateway()
	gw.Mount(NewServiceClient("calendar", backend(t, &got).URL), "public")
	router := newRouter(gw, "http://localhost:5173/")

	w := serve(router, http.MethodOptions, "/api/v1/public/events", "", map[string]string{"Origin": "http://localhost:5173"})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, got.path)

	w = serve(router, http.MethodGet, "/api/v1/public/events", "", map[string]string{"Origin": "https://evil.example"})
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	router = newRouter(gw, "*")
	w = serve(router, http.MethodGet, "/api/v1/public/events", "", map[string]string{"Origin": "https://any.example"})
	assert.Equal(t, "https://any.example", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestServiceStatus(t *testing.T) {
	var got received
	gw := NewGateway()
	gw.Mount(NewServiceClient("auth", backend(t, &got).URL), "auth")
	router := newRouter(gw)

	w := serve(router, http.MethodGet, "/health/services", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	gw.Mount(NewServiceClient("meetings", deadURL()), "meetings")
	w = serve(router, http.MethodGet, "/health/services", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp struct {
		Data map[string]struct {
			Healthy bool   `json:"healthy"`
			Circuit string `json:"circuit"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Data["auth_service"].Healthy)
	assert.False(t, resp.Data["meetings_service"].Healthy)
	assert.Equal(t, "closed", resp.Data["meetings_service"].Circuit)
}
