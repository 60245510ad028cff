package decoder

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunSummarySaveLoad(t *testing.T) {
	summary := NewRunSummary(1234, "run_1234.dat")
	summary.FinishedAt = summary.StartedAt.Add(3 * time.Second)
	summary.Records = 10
	summary.Correlated = 4
	summary.Rollovers[6] = 2
	summary.MaxDeadtime["tof_ch6"] = 0.125

	filename := filepath.Join(t.TempDir(), "summary.yaml")
	require.NoError(t, summary.Save(filename))

	loaded, err := LoadRunSummary(filename)
	require.NoError(t, err)
	assert.Equal(t, summary.ProcessingID, loaded.ProcessingID)
	assert.Equal(t, 1234, loaded.RunNumber)
	assert.True(t, summary.StartedAt.Equal(loaded.StartedAt))
	assert.Equal(t, uint64(4), loaded.Correlated)
	assert.Equal(t, summary.Rollovers, loaded.Rollovers)
	assert.Equal(t, 0.125, loaded.MaxDeadtime["tof_ch6"])
}

func TestNewRunSummaryIDs(t *testing.T) {
	a := NewRunSummary(1, "a")
	b := NewRunSummary(1, "a")
	assert.NotEqual(t, a.ProcessingID, b.ProcessingID)
	assert.Len(t, a.Rollovers, NumChannels)
}

func TestLoadRunSummaryMissing(t *testing.T) {
	_, err := LoadRunSummary(filepath.Join(t.TempDir(), "missing.yaml"))
	var openErr *ErrOpenFile
	assert.ErrorAs(t, err, &openErr)
}

func TestSortedKeys(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, SortedKeys(map[string]int{"c": 1, "a": 2, "b": 3}))
	assert.Empty(t, SortedKeys(map[int]bool{}))
}
