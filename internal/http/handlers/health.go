package handlers

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
	"gorm.io/gorm"

	"github.com/clipstitch/clipstitch/internal/catalog"
)

// StatsProvider reports catalog contents for the health payload.
type StatsProvider interface {
	Stats(ctx context.Context) (*catalog.Stats, error)
}

// HealthHandler handles the health check endpoint.
type HealthHandler struct {
	version   string
	startTime time.Time
	db        *gorm.DB
	stats     StatsProvider
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(version string) *HealthHandler {
	return &HealthHandler{
		version:   version,
		startTime: time.Now(),
	}
}

// WithDB sets the catalog database used for the ping check.
func (h *HealthHandler) WithDB(db *gorm.DB) *HealthHandler {
	h.db = db
	return h
}

// WithStats sets the catalog stats provider.
func (h *HealthHandler) WithStats(stats StatsProvider) *HealthHandler {
	h.stats = stats
	return h
}

// CPUInfo holds CPU load details.
type CPUInfo struct {
	Cores     int     `json:"cores"`
	Load1Min  float64 `json:"load1Min"`
	Load5Min  float64 `json:"load5Min"`
	Load15Min float64 `json:"load15Min"`
}

// MemoryInfo holds system and process memory details, in megabytes.
type MemoryInfo struct {
	TotalMB     float64 `json:"totalMb"`
	UsedMB      float64 `json:"usedMb"`
	AvailableMB float64 `json:"availableMb"`
	ProcessMB   float64 `json:"processMb"`
	// ChildrenMB covers ffmpeg and yt-dlp subprocesses.
	ChildrenMB float64 `json:"childrenMb"`
}

// DatabaseHealth holds catalog connection details.
type DatabaseHealth struct {
	Status         string  `json:"status" enum:"ok,error,unknown"`
	ResponseTimeMS float64 `json:"responseTimeMs"`
	OpenConns      int     `json:"openConns"`
	InUse          int     `json:"inUse"`
	Idle           int     `json:"idle"`
}

// HealthResponse is the health endpoint body.
type HealthResponse struct {
	OK            bool           `json:"ok"`
	Status        string         `json:"status" enum:"healthy,degraded"`
	Version       string         `json:"version"`
	Timestamp     string         `json:"timestamp"`
	UptimeSeconds float64        `json:"uptimeSeconds"`
	CPU           CPUInfo        `json:"cpu"`
	Memory        MemoryInfo     `json:"memory"`
	Database      DatabaseHealth `json:"database"`
	Catalog       *catalog.Stats `json:"catalog,omitempty"`
}

// HealthInput is the input for the health check endpoint.
type HealthInput struct{}

// HealthOutput is the output for the health check endpoint.
type HealthOutput struct {
	Body HealthResponse
}

// Register registers the health route with the API.
func (h *HealthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      "GET",
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns service health including system metrics, catalog connectivity, and catalog contents",
		Tags:        []string{"System"},
	}, h.GetHealth)
}

// GetHealth returns the health status of the service.
func (h *HealthHandler) GetHealth(ctx context.Context, _ *HealthInput) (*HealthOutput, error) {
	now := time.Now()
	dbHealth := h.databaseHealth(ctx)

	resp := HealthResponse{
		OK:            dbHealth.Status != "error",
		Status:        "healthy",
		Version:       h.version,
		Timestamp:     now.UTC().Format(time.RFC3339),
		UptimeSeconds: now.Sub(h.startTime).Seconds(),
		CPU:           cpuInfo(),
		Memory:        memoryInfo(),
		Database:      dbHealth,
	}
	if !resp.OK {
		resp.Status = "degraded"
	}

	if h.stats != nil {
		// Stats failures degrade the payload, not the status; the ping
		// above already covers connectivity.
		if stats, err := h.stats.Stats(ctx); err == nil {
			resp.Catalog = stats
		}
	}

	return &HealthOutput{Body: resp}, nil
}

func cpuInfo() CPUInfo {
	info := CPUInfo{Cores: runtime.NumCPU()}

	if loadAvg, err := load.Avg(); err == nil && loadAvg != nil {
		info.Load1Min = loadAvg.Load1
		info.Load5Min = loadAvg.Load5
		info.Load15Min = loadAvg.Load15
	}
	return info
}

func memoryInfo() MemoryInfo {
	info := MemoryInfo{}

	if vmStat, err := mem.VirtualMemory(); err == nil && vmStat != nil {
		info.TotalMB = float64(vmStat.Total) / 1024 / 1024
		info.UsedMB = float64(vmStat.Used) / 1024 / 1024
		info.AvailableMB = float64(vmStat.Available) / 1024 / 1024
	}

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return info
	}
	if memStat, err := proc.MemoryInfo(); err == nil && memStat != nil {
		info.ProcessMB = float64(memStat.RSS) / 1024 / 1024
	}
	if children, err := proc.Children(); err == nil {
		for _, child := range children {
			if childMem, err := child.MemoryInfo(); err == nil && childMem != nil {
				info.ChildrenMB += float64(childMem.RSS) / 1024 / 1024
			}
		}
	}
	return info
}

func (h *HealthHandler) databaseHealth(ctx context.Context) DatabaseHealth {
	health := DatabaseHealth{Status: "ok"}

	if h.db == nil {
		health.Status = "unknown"
		return health
	}

	sqlDB, err := h.db.DB()
	if err != nil {
		health.Status = "error"
		return health
	}

	stats := sqlDB.Stats()
	health.OpenConns = stats.OpenConnections
	health.InUse = stats.InUse
	health.Idle = stats.Idle

	start := time.Now()
	err = sqlDB.PingContext(ctx)
	health.ResponseTimeMS = float64(time.Since(start).Microseconds()) / 1000
	if err != nil {
		health.Status = "error"
	}
	return health
}
