package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gpuwatch/internal/snapshot"
	"gpuwatch/internal/status"
)

func TestRenderStatusConnected(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	out := renderStatus(status.PublishedState{
		OK:     true,
		State:  "connected",
		Server: &status.ServerInfo{Host: "gpu-box-1", Port: 22, User: "ubuntu"},
		Data: &snapshot.Snapshot{
			GPUs: []snapshot.DeviceRecord{{
				Index:          0,
				Name:           "Tesla T4",
				UtilizationGPU: snapshot.Float(12),
				MemoryUsedMB:   snapshot.Float(1024),
				MemoryTotalMB:  snapshot.Float(16384),
			}},
			Summary: snapshot.Summary{
				GPUCount:      1,
				MemoryUsedMB:  snapshot.Float(1024),
				MemoryTotalMB: snapshot.Float(16384),
			},
			DriverVersion: "535.104.05",
			Timestamp:     now,
		},
	})

	assert.Contains(t, out, "ubuntu@gpu-box-1:22")
	assert.Contains(t, out, "connected")
	assert.Contains(t, out, "Tesla T4")
	assert.Contains(t, out, "12%")
	assert.Contains(t, out, "driver 535.104.05")
	// Absent fields render as the placeholder, never zero.
	assert.Contains(t, out, "unknown")
}

func TestRenderStatusRetryingShowsStaleNote(t *testing.T) {
	out := renderStatus(status.PublishedState{
		OK:    false,
		State: "retrying",
		Error: "Remote command exceeded 5s timeout",
		Data: &snapshot.Snapshot{
			GPUs:    []snapshot.DeviceRecord{{Index: 0, Name: "Tesla T4"}},
			Summary: snapshot.Summary{GPUCount: 1},
		},
	})

	assert.Contains(t, out, "retrying")
	assert.Contains(t, out, "timeout")
	assert.Contains(t, out, "showing last good snapshot")
	assert.Contains(t, out, "Tesla T4")
}

func TestRenderStatusConfigErrors(t *testing.T) {
	out := renderStatus(status.PublishedState{
		OK:           false,
		State:        "disconnected",
		ConfigErrors: []string{"server_host is not set"},
	})

	assert.Contains(t, out, "config: server_host is not set")
	assert.Contains(t, out, "no snapshot yet")
}

func TestStatusCommandFetchesState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/status", r.URL.Path)
		_ = json.NewEncoder(w).Encode(status.PublishedState{
			OK:     true,
			State:  "connected",
			Server: &status.ServerInfo{Host: "gpu-box-1", Port: 22, User: "ubuntu"},
			Data: &snapshot.Snapshot{
				GPUs:    []snapshot.DeviceRecord{{Index: 0, Name: "Tesla T4"}},
				Summary: snapshot.Summary{GPUCount: 1},
			},
		})
	}))
	defer srv.Close()

	cmd := newStatusCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--addr", strings.TrimPrefix(srv.URL, "http://")})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "Tesla T4")
}

func TestStatusCommandUnreachable(t *testing.T) {
	cmd := newStatusCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--addr", "127.0.0.1:1"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No gpuwatch instance reachable")
}

func TestVersionString(t *testing.T) {
	SetVersionInfo("1.2.3", "abc123", "2025-06-01")
	defer SetVersionInfo("dev", "none", "unknown")

	v := versionString()
	assert.Contains(t, v, "1.2.3")
	assert.Contains(t, v, "abc123")
}
