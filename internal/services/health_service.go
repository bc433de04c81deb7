package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"ethvaluation/internal/config"
)

// ClientCounter reports connected websocket clients.
type ClientCounter interface {
	ClientCount() int
}

// HealthService provides health check functionality
type HealthService struct {
	version   string
	buildTime string
	paths     config.Paths
	analysis  *AnalysisService
	clients   ClientCounter
	startTime time.Time
	logger    *slog.Logger
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string                   `json:"status"`
	Timestamp time.Time                `json:"timestamp"`
	Version   string                   `json:"version"`
	Runtime   map[string]any           `json:"runtime,omitempty"`
	Services  map[string]ServiceHealth `json:"services,omitempty"`
}

// ServiceHealth represents individual service health
type ServiceHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// SystemStats represents system statistics
type SystemStats struct {
	UptimeSeconds    float64        `json:"uptime_seconds"`
	Runs             map[string]int `json:"runs"`
	ActiveRuns       int            `json:"active_runs"`
	WebSocketClients int            `json:"websocket_clients"`
	GoVersion        string         `json:"go_version"`
	OS               string         `json:"os"`
	Arch             string         `json:"arch"`
}

// NewHealthService creates a health service. analysis and clients may be nil,
// in which case the corresponding checks report not_ready.
func NewHealthService(version, buildTime string, paths config.Paths, analysis *AnalysisService, clients ClientCounter, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthService{
		version:   version,
		buildTime: buildTime,
		paths:     paths,
		analysis:  analysis,
		clients:   clients,
		startTime: time.Now(),
		logger:    logger.With(slog.String("service", "health")),
	}
}

// HealthCheck returns overall health status
func (hs *HealthService) HealthCheck(ctx context.Context) HealthStatus {
	hs.logger.DebugContext(ctx, "health check", slog.Duration("uptime", time.Since(hs.startTime)))
	return HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		Version:   hs.version,
	}
}

// ReadinessCheck reports whether the inputs and outputs are reachable and the
// analysis service is accepting runs.
func (hs *HealthService) ReadinessCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    "ready",
		Timestamp: time.Now(),
		Version:   hs.version,
		Services: map[string]ServiceHealth{
			"data":      hs.checkDir(hs.paths.DataDir, false),
			"output":    hs.checkDir(hs.paths.OutputDir, true),
			"analysis":  hs.checkAnalysis(),
			"websocket": hs.checkWebSocket(),
		},
	}
	for _, sh := range status.Services {
		if sh.Status != "ready" {
			status.Status = "not_ready"
			break
		}
	}
	if status.Status != "ready" {
		hs.logger.WarnContext(ctx, "readiness check failed", slog.Any("services", status.Services))
	}
	return status
}

// LivenessCheck returns liveness status
func (hs *HealthService) LivenessCheck(ctx context.Context) HealthStatus {
	return HealthStatus{
		Status:    "alive",
		Timestamp: time.Now(),
		Version:   hs.version,
		Runtime: map[string]any{
			"uptime":     time.Since(hs.startTime).Seconds(),
			"go_version": runtime.Version(),
			"goroutines": runtime.NumGoroutine(),
		},
	}
}

// Version returns version information
func (hs *HealthService) Version() map[string]any {
	result := map[string]any{
		"version":    hs.version,
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"start_time": hs.startTime.Format(time.RFC3339),
	}
	if hs.buildTime != "" {
		result["build_time"] = hs.buildTime
	}
	return result
}

// SystemStats returns system statistics
func (hs *HealthService) SystemStats(ctx context.Context) SystemStats {
	stats := SystemStats{
		UptimeSeconds: time.Since(hs.startTime).Seconds(),
		Runs:          map[string]int{},
		GoVersion:     runtime.Version(),
		OS:            runtime.GOOS,
		Arch:          runtime.GOARCH,
	}
	if hs.analysis != nil {
		stats.Runs = hs.analysis.Store().Stats()
		stats.ActiveRuns = hs.analysis.ActiveRuns()
	}
	if hs.clients != nil {
		stats.WebSocketClients = hs.clients.ClientCount()
	}
	return stats
}

func (hs *HealthService) checkDir(dir string, create bool) ServiceHealth {
	if create {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return ServiceHealth{Status: "not_ready", Message: fmt.Sprintf("cannot create %s: %v", dir, err)}
		}
	}
	info, err := os.Stat(dir)
	if err != nil {
		return ServiceHealth{Status: "not_ready", Message: fmt.Sprintf("directory not found: %s", dir)}
	}
	if !info.IsDir() {
		return ServiceHealth{Status: "not_ready", Message: fmt.Sprintf("%s is not a directory", dir)}
	}
	return ServiceHealth{Status: "ready"}
}

func (hs *HealthService) checkAnalysis() ServiceHealth {
	if hs.analysis == nil {
		return ServiceHealth{Status: "not_ready", Message: "analysis service not initialized"}
	}
	hs.analysis.mu.Lock()
	closed := hs.analysis.closed
	hs.analysis.mu.Unlock()
	if closed {
		return ServiceHealth{Status: "not_ready", Message: ErrShuttingDown.Error()}
	}
	return ServiceHealth{Status: "ready", Message: fmt.Sprintf("%d active runs", hs.analysis.ActiveRuns())}
}

func (hs *HealthService) checkWebSocket() ServiceHealth {
	if hs.clients == nil {
		return ServiceHealth{Status: "not_ready", Message: "websocket hub not initialized"}
	}
	return ServiceHealth{Status: "ready"}
}

// GetDetailedHealth returns comprehensive health information
func (hs *HealthService) GetDetailedHealth(ctx context.Context) map[string]any {
	return map[string]any{
		"health":    hs.HealthCheck(ctx),
		"readiness": hs.ReadinessCheck(ctx),
		"liveness":  hs.LivenessCheck(ctx),
		"stats":     hs.SystemStats(ctx),
	}
}
