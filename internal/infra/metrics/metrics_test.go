package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/blend2egg/internal/domain"
)

func sampleReport() domain.RunReport {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rr := domain.RunReport{
		RunID:      "r1",
		Pipeline:   "egg",
		StartedAt:  started,
		FinishedAt: started.Add(12 * time.Second),
		Status:     domain.StatusFailed,
		Files: []domain.FileResult{
			{Src: "/p/a.blend", Dst: "/o/a.egg", Status: domain.FileStatusConverted},
			{Src: "/p/b.blend", Dst: "/o/b.egg", Status: domain.FileStatusConverted},
			{Src: "/p/c.blend", Dst: "/o/c.egg", Status: domain.FileStatusMissing},
		},
	}
	rr.Finalize()
	return rr
}

func TestRecordRun_Counters(t *testing.T) {
	c := NewCollector(nil)
	c.RecordRun(sampleReport())

	assert.Equal(t, 1.0, testutil.ToFloat64(c.runsTotal.WithLabelValues("egg", domain.StatusFailed)))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.filesTotal.WithLabelValues(domain.FileStatusConverted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.filesTotal.WithLabelValues(domain.FileStatusMissing)))
	assert.Equal(t, float64(sampleReport().FinishedAt.Unix()), testutil.ToFloat64(c.lastRun))
	assert.Equal(t, 1, testutil.CollectAndCount(c.runDuration))
}

func TestWriteTextfile(t *testing.T) {
	c := NewCollector(nil)
	c.ObservePhase("plan", 3*time.Millisecond)
	c.RecordRun(sampleReport())

	path := filepath.Join(t.TempDir(), "textfile", "blend2egg.prom")
	require.NoError(t, c.WriteTextfile(path))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(b)
	assert.Contains(t, out, `blend2egg_runs_total{pipeline="egg",status="failed"} 1`)
	assert.Contains(t, out, `blend2egg_files_total{status="missing"} 1`)
	assert.Contains(t, out, `blend2egg_phase_duration_seconds_count{phase="plan"} 1`)
}

func TestCollectors_AreIndependent(t *testing.T) {
	a, b := NewCollector(nil), NewCollector(nil)
	a.RecordRun(sampleReport())

	assert.Equal(t, 0, testutil.CollectAndCount(b.runsTotal))
	assert.Equal(t, 1, testutil.CollectAndCount(a.runsTotal))
}
