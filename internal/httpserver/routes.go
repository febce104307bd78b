package httpserver

import (
	"fmt"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sirosfoundation/go-realtime-shell/internal/websocket"
	"github.com/sirosfoundation/go-realtime-shell/pkg/middleware"
)

const appName = "Realtime Shell"

func (s *Service) registerRoutes(router *gin.Engine) {
	router.GET("/", s.handleRoot)
	router.GET("/health", s.handleHealth)
	router.GET("/ready", s.handleReady)
	router.GET("/error", s.handleError)

	api := router.Group("/api")
	api.GET("/status", s.handleStatus)
	api.GET("/info", s.handleInfo)
	api.GET("/rooms", s.handleRooms)

	router.GET("/ws/test", s.handleTestPage)
}

func (s *Service) serviceNames() []string {
	names := make([]string, 0)
	if s.deps.Services == nil {
		return names
	}
	for _, svc := range s.deps.Services.All() {
		names = append(names, svc.Name())
	}
	return names
}

func (s *Service) endpoints() gin.H {
	endpoints := gin.H{
		"health":        "/health",
		"ready":         "/ready",
		"api":           "/api/*",
		"websocket":     s.cfg.WebSocket.Path,
		"websocketTest": "/ws/test",
	}
	if s.cfg.Metrics.Enabled {
		endpoints["metrics"] = s.cfg.Metrics.Path
	}
	return endpoints
}

func (s *Service) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message":     appName,
		"version":     s.deps.Version,
		"environment": s.cfg.Server.Environment,
		"timestamp":   websocket.Timestamp(),
		"services":    s.serviceNames(),
		"endpoints":   s.endpoints(),
	})
}

func (s *Service) handleHealth(c *gin.Context) {
	services := make([]ServiceHealth, 0)
	healthy := true
	if s.deps.Services != nil {
		for _, svc := range s.deps.Services.All() {
			running := svc.IsRunning()
			status := "healthy"
			if !running {
				status = "unhealthy"
				healthy = false
			}
			services = append(services, ServiceHealth{Name: svc.Name(), Status: status, Running: running})
		}
	}

	resp := HealthResponse{
		Status:      "healthy",
		Timestamp:   websocket.Timestamp(),
		Version:     s.deps.Version,
		Uptime:      s.uptime(),
		Environment: s.cfg.Server.Environment,
		Services:    services,
		System:      systemInfo(),
	}

	code := http.StatusOK
	if !healthy {
		resp.Status = "degraded"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, resp)
}

func (s *Service) handleReady(c *gin.Context) {
	ready := true
	if s.deps.Services != nil {
		for _, svc := range s.deps.Services.All() {
			if !svc.IsRunning() {
				ready = false
				break
			}
		}
	}

	if !ready {
		c.JSON(http.StatusServiceUnavailable, ReadyResponse{Status: "not ready", Timestamp: websocket.Timestamp()})
		return
	}
	c.JSON(http.StatusOK, ReadyResponse{Status: "ready", Timestamp: websocket.Timestamp()})
}

// handleError always fails, to exercise the recovery path
func (s *Service) handleError(c *gin.Context) {
	panic("This is a test error from /error endpoint")
}

func (s *Service) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, StatusResponse{
		Status:    "ok",
		Uptime:    time.Since(s.deps.StartedAt).Seconds(),
		Timestamp: websocket.Timestamp(),
		Memory:    memoryStats(),
		Version:   runtime.Version(),
	})
}

func (s *Service) handleInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        appName,
		"version":     s.deps.Version,
		"description": "A service-based realtime application shell",
		"features": []string{
			"Service-based architecture",
			"HTTP server",
			"WebSocket rooms and events",
			"Graceful shutdown",
			"Prometheus metrics",
		},
		"endpoints": s.endpoints(),
	})
}

func (s *Service) handleRooms(c *gin.Context) {
	var dir *websocket.Directory
	if s.deps.Directory != nil {
		dir = s.deps.Directory()
	}
	if dir == nil {
		middleware.AbortWithError(c, http.StatusServiceUnavailable, "WebSocket service is not running", nil)
		return
	}

	c.JSON(http.StatusOK, RoomsResponse{
		RoomsInfo: dir.AllRoomsInfo(),
		Timestamp: websocket.Timestamp(),
	})
}

func (s *Service) handleTestPage(c *gin.Context) {
	c.HTML(http.StatusOK, "ws-test.html", gin.H{
		"Path": s.cfg.WebSocket.Path,
	})
}

func (s *Service) uptime() Uptime {
	d := time.Since(s.deps.StartedAt)
	return Uptime{Seconds: d.Seconds(), Human: formatUptime(d)}
}

func formatUptime(d time.Duration) string {
	total := int64(d.Seconds())
	days := total / 86400
	hours := (total % 86400) / 3600
	minutes := (total % 3600) / 60
	secs := total % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, secs)
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, secs)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, secs)
	default:
		return fmt.Sprintf("%ds", secs)
	}
}

func memoryStats() MemoryStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return MemoryStats{
		Alloc:      m.Alloc,
		TotalAlloc: m.TotalAlloc,
		Sys:        m.Sys,
		HeapInuse:  m.HeapInuse,
		NumGC:      m.NumGC,
	}
}

func systemInfo() SystemInfo {
	hostname, _ := os.Hostname()
	return SystemInfo{
		Memory:     memoryStats(),
		Goroutines: runtime.NumGoroutine(),
		CPUCount:   runtime.NumCPU(),
		GoVersion:  runtime.Version(),
		Platform:   runtime.GOOS,
		Arch:       runtime.GOARCH,
		Hostname:   hostname,
	}
}
