package main

import (
	"log"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/julis-sh/intranet/shared/config"
	"github.com/julis-sh/intranet/shared/server"
)

// serviceRoute names a backend, its default address and the top level path
// segments it serves
type serviceRoute struct {
	name       string
	envKey     string
	defaultURL string
	segments   []string
}

var serviceRoutes = []serviceRoute{
	{"auth", "AUTH_SERVICE_URL", "http://localhost:8001", []string{"auth", "users", "audit", "settings"}},
	{"tenant", "TENANT_SERVICE_URL", "http://localhost:8002", []string{"tenants"}},
	{"calendar", "CALENDAR_SERVICE_URL", "http://localhost:8003", []string{"events", "admin", "categories", "public"}},
	{"meetings", "MEETINGS_SERVICE_URL", "http://localhost:8004", []string{"meetings"}},
	{"members", "MEMBERS_SERVICE_URL", "http://localhost:8005", []string{"kreisverband", "member-changes", "email-templates", "email-recipients"}},
	{"documents", "DOCUMENTS_SERVICE_URL", "http://localhost:8006", []string{"documents"}},
}

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Warn("No .env file found, using environment variables")
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}
	config.SetupLogging(cfg)

	gw := NewGateway()
	for _, route := range serviceRoutes {
		url := os.Getenv(route.envKey)
		if url == "" {
			url = route.defaultURL
		}
		gw.Mount(NewServiceClient(route.name, url), route.segments...)
	}

	router := server.NewEngine("API Gateway")
	registerRoutes(router, gw, cfg.CORSOrigins)

	if err := server.Run("API Gateway", config.Port("api_gateway", "8080"), router); err != nil {
		log.Fatal("Failed to start API Gateway:", err)
	}
}

func registerRoutes(router *gin.Engine, gw *Gateway, origins []string) {
	router.GET("/health/services", gw.handleServiceStatus)

	api := router.Group(apiPrefix)
	api.Use(CORS(origins))
	api.Any("/*path", gw.Forward)
}

// CORS answers preflight requests and marks responses for the allowed
// origins. "*" allows every origin.
func CORS(origins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(origins))
	for _, origin := range origins {
		allowed[strings.TrimRight(origin, "/")] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (allowed["*"] || allowed[origin]) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Request-ID")
			c.Header("Access-Control-Expose-Headers", "Content-Disposition, X-Request-ID")
			c.Header("Vary", "Origin")
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
