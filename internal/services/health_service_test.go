package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ethvaluation/internal/config"
)

type fixedClients int

func (c fixedClients) ClientCount() int { return int(c) }

func TestHealthService_Readiness(t *testing.T) {
	svc, paths := newTestService(t)
	require.NoError(t, os.MkdirAll(paths.DataDir, 0o755))

	hs := NewHealthService("1.2.3", "", paths, svc, fixedClients(2), nil)
	ready := hs.ReadinessCheck(context.Background())
	assert.Equal(t, "ready", ready.Status)
	assert.Len(t, ready.Services, 4)

	stats := hs.SystemStats(context.Background())
	assert.Equal(t, 2, stats.WebSocketClients)
	assert.Equal(t, 0, stats.ActiveRuns)
	assert.Equal(t, 0, stats.Runs["total"])
}

func TestHealthService_NotReady(t *testing.T) {
	paths := config.Paths{
		DataDir:   filepath.Join(t.TempDir(), "missing"),
		OutputDir: t.TempDir(),
	}
	hs := NewHealthService("dev", "", paths, nil, nil, nil)

	ready := hs.ReadinessCheck(context.Background())
	assert.Equal(t, "not_ready", ready.Status)
	assert.Equal(t, "not_ready", ready.Services["data"].Status)
	assert.Equal(t, "not_ready", ready.Services["analysis"].Status)
	assert.Equal(t, "ready", ready.Services["output"].Status)

	assert.Equal(t, "ok", hs.HealthCheck(context.Background()).Status)
	assert.Equal(t, "alive", hs.LivenessCheck(context.Background()).Status)
	assert.Equal(t, "dev", hs.Version()["version"])
}

func TestHealthService_ShuttingDown(t *testing.T) {
	svc, paths := newTestService(t)
	require.NoError(t, os.MkdirAll(paths.DataDir, 0o755))
	require.NoError(t, svc.Shutdown(context.Background()))

	hs := NewHealthService("dev", "", paths, svc, fixedClients(0), nil)
	assert.Equal(t, "not_ready", hs.ReadinessCheck(context.Background()).Services["analysis"].Status)
}
