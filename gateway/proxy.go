package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/julis-sh/intranet/shared/utils"
)

const apiPrefix = "/api/v1"

// hopHeaders are connection scoped and never forwarded
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// ServiceClient handles HTTP communication with one backend service
type ServiceClient struct {
	name       string
	baseURL    string
	httpClient *http.Client
	breaker    *utils.CircuitBreaker
}

// NewServiceClient creates a client for the service at baseURL
func NewServiceClient(name, baseURL string) *ServiceClient {
	return &ServiceClient{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			// exports wait for the office converter
			Timeout: 90 * time.Second,
		},
		breaker: utils.NewCircuitBreaker(name, 5, 30*time.Second),
	}
}

// Gateway maps the first path segment below /api/v1 to a service
type Gateway struct {
	routes   map[string]*ServiceClient
	services []*ServiceClient
}

// NewGateway returns a gateway without routes
func NewGateway() *Gateway {
	return &Gateway{routes: make(map[string]*ServiceClient)}
}

// Mount routes every segment to client
func (g *Gateway) Mount(client *ServiceClient, segments ...string) {
	g.services = append(g.services, client)
	for _, segment := range segments {
		g.routes[segment] = client
	}
}

// Forward proxies /api/v1/<segment>/... to the owning service with the
// prefix removed
func (g *Gateway) Forward(c *gin.Context) {
	path := strings.TrimPrefix(c.Request.URL.Path, apiPrefix)
	segment := strings.SplitN(strings.TrimPrefix(path, "/"), "/", 2)[0]
	client, ok := g.routes[segment]
	if !ok {
		utils.NotFoundResponse(c, "Unknown API route")
		return
	}
	client.ProxyRequest(c, path)
}

// ProxyRequest sends the request to the service and streams the answer back
func (sc *ServiceClient) ProxyRequest(c *gin.Context, path string) {
	targetURL := sc.baseURL + path
	if c.Request.URL.RawQuery != "" {
		targetURL += "?" + c.Request.URL.RawQuery
	}

	req, err := http.NewRequestWithContext(c.Request.Context(), c.Request.Method, targetURL, c.Request.Body)
	if err != nil {
		utils.InternalServerErrorResponse(c, "Failed to create request")
		return
	}
	req.ContentLength = c.Request.ContentLength
	copyHeaders(req.Header, c.Request.Header)
	if ip, _, err := net.SplitHostPort(c.Request.RemoteAddr); err == nil {
		req.Header.Set("X-Forwarded-For", ip)
	}

	var resp *http.Response
	err = sc.breaker.Call(func() error {
		var err error
		resp, err = sc.httpClient.Do(req)
		return err
	})
	if err != nil {
		sc.fail(c, err)
		return
	}
	defer resp.Body.Close()

	copyHeaders(c.Writer.Header(), resp.Header)
	c.Status(resp.StatusCode)
	if _, err := io.Copy(c.Writer, resp.Body); err != nil {
		logrus.WithFields(logrus.Fields{
			"service": sc.name,
			"path":    path,
			"error":   err.Error(),
		}).Warn("Response stream interrupted")
	}
}

func (sc *ServiceClient) fail(c *gin.Context, err error) {
	if errors.Is(err, utils.ErrCircuitOpen) || errors.Is(err, utils.ErrTooManyRequests) {
		utils.ServiceUnavailableResponse(c, fmt.Sprintf("%s service temporarily unavailable", sc.name))
		return
	}
	logrus.WithFields(logrus.Fields{
		"service": sc.name,
		"error":   err.Error(),
	}).Error("Failed to communicate with service")
	utils.BadGatewayResponse(c, "Failed to communicate with service")
}

func copyHeaders(dst, src http.Header) {
	for key, values := range src {
		if isHopHeader(key) {
			continue
		}
		for _, value := range values {
			dst.Add(key, value)
		}
	}
}

func isHopHeader(key string) bool {
	for _, h := range hopHeaders {
		if strings.EqualFold(h, key) {
			return true
		}
	}
	return false
}

// HealthCheck checks if a service is healthy
func (sc *ServiceClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sc.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := sc.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("service returned status %d", resp.StatusCode)
	}
	return nil
}

// ServiceStatus returns the health of every mounted service
func (g *Gateway) ServiceStatus(ctx context.Context) map[string]interface{} {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		status = make(map[string]interface{}, len(g.services))
	)
	for _, sc := range g.services {
		wg.Add(1)
		go func(sc *ServiceClient) {
			defer wg.Done()
			entry := map[string]interface{}{
				"healthy": true,
				"circuit": sc.breaker.GetState(),
			}
			if err := sc.HealthCheck(ctx); err != nil {
				entry["healthy"] = false
				entry["error"] = err.Error()
			}
			mu.Lock()
			status[sc.name+"_service"] = entry
			mu.Unlock()
		}(sc)
	}
	wg.Wait()
	return status
}

func (g *Gateway) handleServiceStatus(c *gin.Context) {
	status := g.ServiceStatus(c.Request.Context())
	for _, entry := range status {
		if healthy, _ := entry.(map[string]interface{})["healthy"].(bool); !healthy {
			c.JSON(http.StatusServiceUnavailable, utils.APIResponse{
				Success: false,
				Message: "Some services are unhealthy",
				Data:    status,
			})
			return
		}
	}
	utils.OKResponse(c, "All services are healthy", status)
}
