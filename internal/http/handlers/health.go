package handlers

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
)

// Pinger checks that a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles the health endpoint.
type HealthHandler struct {
	version   string
	startTime time.Time
	db        Pinger
	player    Player
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(version string) *HealthHandler {
	return &HealthHandler{
		version:   version,
		startTime: time.Now(),
	}
}

// WithDB adds a database check.
func (h *HealthHandler) WithDB(db Pinger) *HealthHandler {
	h.db = db
	return h
}

// WithPlayer adds the player state to the report.
func (h *HealthHandler) WithPlayer(p Player) *HealthHandler {
	h.player = p
	return h
}

// HealthInput is the input for the health check endpoint.
type HealthInput struct{}

// MemoryInfo holds system and process memory figures in MiB.
type MemoryInfo struct {
	TotalMB     float64 `json:"total_mb"`
	AvailableMB float64 `json:"available_mb"`
	ProcessMB   float64 `json:"process_mb"`
}

// HealthResponse is the health check body.
type HealthResponse struct {
	Status        string            `json:"status"`
	Timestamp     string            `json:"timestamp"`
	Version       string            `json:"version"`
	Uptime        string            `json:"uptime"`
	UptimeSeconds float64           `json:"uptime_seconds"`
	Goroutines    int               `json:"goroutines"`
	Memory        MemoryInfo        `json:"memory"`
	Checks        map[string]string `json:"checks"`
}

// HealthOutput is the output for the health check endpoint.
type HealthOutput struct {
	Body HealthResponse
}

// Register registers the health route with the API.
func (h *HealthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns service health including memory use and dependency checks",
		Tags:        []string{"System"},
	}, h.GetHealth)
}

// GetHealth returns the health status of the service. Status is "degraded"
// when a configured dependency fails its check or the player has stopped on
// an error.
func (h *HealthHandler) GetHealth(ctx context.Context, input *HealthInput) (*HealthOutput, error) {
	now := time.Now()
	uptime := now.Sub(h.startTime)

	checks := map[string]string{
		"database": "not_configured",
		"player":   "not_configured",
	}
	status := "healthy"

	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			checks["database"] = "error: " + err.Error()
			status = "degraded"
		} else {
			checks["database"] = "ok"
		}
	}

	if h.player != nil {
		st := h.player.Status()
		switch {
		case st.Error != "":
			checks["player"] = "error: " + st.Error
			status = "degraded"
		case st.Stalled:
			checks["player"] = "stalled"
		default:
			checks["player"] = st.State
		}
	}

	return &HealthOutput{
		Body: HealthResponse{
			Status:        status,
			Timestamp:     now.UTC().Format(time.RFC3339),
			Version:       h.version,
			Uptime:        uptime.Round(time.Second).String(),
			UptimeSeconds: uptime.Seconds(),
			Goroutines:    runtime.NumGoroutine(),
			Memory:        memoryInfo(ctx),
			Checks:        checks,
		},
	}, nil
}

func memoryInfo(ctx context.Context) MemoryInfo {
	const mib = 1024 * 1024
	var info MemoryInfo

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil && vm != nil {
		info.TotalMB = float64(vm.Total) / mib
		info.AvailableMB = float64(vm.Available) / mib
	}

	proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		return info
	}
	if pm, err := proc.MemoryInfoWithContext(ctx); err == nil && pm != nil {
		info.ProcessMB = float64(pm.RSS) / mib
	}
	return info
}
