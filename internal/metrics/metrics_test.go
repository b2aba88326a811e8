package metrics

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterIdempotentAndCountersWork(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))
	require.NoError(t, Register(reg))

	ObservePipeline("install", true, 1.5)
	ObservePipeline("install", false, 0.2)
	IncNotification("RUNNING", true)
	IncDownload("mod", false)
	AddDownloadBytes("forge", 1024)
	IncStart()
	IncStop("kill")
	SetState("RUNNING", []string{"ABSENT", "RUNNING"})

	mfs, err := reg.Gather()
	require.NoError(t, err)
	want := map[string]bool{
		"forgekeeper_pipeline_runs_total":        false,
		"forgekeeper_pipeline_duration_seconds":  false,
		"forgekeeper_report_notifications_total": false,
		"forgekeeper_download_requests_total":    false,
		"forgekeeper_download_bytes_total":       false,
		"forgekeeper_process_starts_total":       false,
		"forgekeeper_process_stops_total":        false,
		"forgekeeper_process_state":              false,
	}
	for _, mf := range mfs {
		if _, ok := want[mf.GetName()]; ok {
			want[mf.GetName()] = true
			assert.NotEmpty(t, mf.GetMetric(), mf.GetName())
		}
	}
	for n, ok := range want {
		assert.True(t, ok, "expected metric %s", n)
	}
}

func TestRegisterAlreadyRegisteredIsIgnored(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(processStarts))
	require.NoError(t, registerAll(reg, []prometheus.Collector{processStarts, processStops}))
}

func TestHandlerServes(t *testing.T) {
	_ = Register(prometheus.DefaultRegisterer)
	IncStart()
	srv := httptest.NewServer(Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	b, _ := io.ReadAll(resp.Body)
	assert.True(t, strings.Contains(string(b), "forgekeeper_process_starts_total"))
}

func TestSamplerAbsentProcess(t *testing.T) {
	s := NewSampler(time.Second, func() int32 { return 0 }, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Nil(t, s.Collect(context.Background()))
	assert.Nil(t, s.Last())
}

func TestSamplerSelf(t *testing.T) {
	pid := int32(os.Getpid())
	s := NewSampler(10*time.Millisecond, func() int32 { return pid }, nil)
	reg := prometheus.NewRegistry()
	require.NoError(t, s.Register(reg))

	smp := s.Collect(context.Background())
	require.NotNil(t, smp)
	assert.Equal(t, pid, smp.PID)
	assert.NotZero(t, smp.MemoryRSS)

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	time.Sleep(50 * time.Millisecond)
	cancel()
	s.Stop()
	require.NotNil(t, s.Last())
}
