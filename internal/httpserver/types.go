package httpserver

import "github.com/sirosfoundation/go-realtime-shell/internal/websocket"

// ServiceHealth is the health of one registered service
type ServiceHealth struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Running bool   `json:"running"`
}

// Uptime is reported both in seconds and human readable
type Uptime struct {
	Seconds float64 `json:"seconds"`
	Human   string  `json:"human"`
}

// MemoryStats is a subset of runtime.MemStats
type MemoryStats struct {
	Alloc      uint64 `json:"alloc"`
	TotalAlloc uint64 `json:"totalAlloc"`
	Sys        uint64 `json:"sys"`
	HeapInuse  uint64 `json:"heapInuse"`
	NumGC      uint32 `json:"numGC"`
}

// SystemInfo describes the process and host
type SystemInfo struct {
	Memory     MemoryStats `json:"memory"`
	Goroutines int         `json:"goroutines"`
	CPUCount   int         `json:"cpuCount"`
	GoVersion  string      `json:"goVersion"`
	Platform   string      `json:"platform"`
	Arch       string      `json:"arch"`
	Hostname   string      `json:"hostname"`
}

// HealthResponse is the response from the /health endpoint
type HealthResponse struct {
	Status      string          `json:"status"`
	Timestamp   string          `json:"timestamp"`
	Version     string          `json:"version"`
	Uptime      Uptime          `json:"uptime"`
	Environment string          `json:"environment"`
	Services    []ServiceHealth `json:"services"`
	System      SystemInfo      `json:"system"`
}

// ReadyResponse is the response from the /ready endpoint
type ReadyResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// StatusResponse is the response from the /api/status endpoint
type StatusResponse struct {
	Status    string      `json:"status"`
	Uptime    float64     `json:"uptime"`
	Timestamp string      `json:"timestamp"`
	Memory    MemoryStats `json:"memory"`
	Version   string      `json:"version"`
}

// RoomsResponse is the response from the /api/rooms endpoint
type RoomsResponse struct {
	websocket.RoomsInfo
	Timestamp string `json:"timestamp"`
}
