package main

import (
	"os"
	"path/filepath"
	"testing"

	decoder "github.com/next-exp/tof_decoder/pkg"
	"github.com/next-exp/tof_decoder/pkg/h5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingMonitor struct {
	decoded   int
	panicAt   int
	singles   int
	errors    []string
	deadtimes map[string]float64
}

func (m *countingMonitor) RecordDecoded(kind string, channel uint8) {
	m.decoded++
	if m.panicAt > 0 && m.decoded == m.panicAt {
		panic("monitor failure")
	}
}
func (m *countingMonitor) RecordCorrelated()            {}
func (m *countingMonitor) RecordSingle(channel uint8)   { m.singles++ }
func (m *countingMonitor) RecordMacropulse()            {}
func (m *countingMonitor) RecordRollover(channel uint8) {}
func (m *countingMonitor) RecordError(component string) { m.errors = append(m.errors, component) }
func (m *countingMonitor) SetMaxDeadtime(histogram string, fraction float64) {
	if m.deadtimes == nil {
		m.deadtimes = make(map[string]float64)
	}
	m.deadtimes[histogram] = fraction
}

func writeRawRun(t *testing.T, dir string) Job {
	t.Helper()
	var data []byte
	for i := range 4 {
		data = decoder.AppendRecord(data, decoder.RawRecord{
			Kind: decoder.Waveform, Channel: 6, CoarseTime: uint32(100 * (i + 1)), Samples: []uint16{1, 2, 3},
		})
	}
	input := filepath.Join(dir, "run_12.dat")
	require.NoError(t, os.WriteFile(input, data, 0o644))
	return Job{Input: input, Output: filepath.Join(dir, "run_12.h5"), RunNumber: 12}
}

func TestProcessFileCommitsOutput(t *testing.T) {
	configuration = decoder.DefaultConfiguration()
	dir := t.TempDir()
	job := writeRawRun(t, dir)

	monitor := &countingMonitor{}
	summary, err := processFile(job, monitor)
	require.NoError(t, err)
	assert.Equal(t, 12, summary.RunNumber)
	assert.Equal(t, 4, monitor.decoded)
	assert.Empty(t, monitor.errors)

	_, err = os.Stat(job.Output)
	assert.NoError(t, err)
	_, err = os.Stat(job.Output + h5.PartialSuffix)
	assert.True(t, os.IsNotExist(err))
}

func TestProcessFilePanicRemovesPartialOutput(t *testing.T) {
	configuration = decoder.DefaultConfiguration()
	dir := t.TempDir()
	job := writeRawRun(t, dir)

	_, err := processFile(job, &countingMonitor{panicAt: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recovered from panic")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "run_12.dat", entries[0].Name())
}
