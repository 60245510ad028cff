package h5

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	decoder "github.com/next-exp/tof_decoder/pkg"
	"github.com/next-exp/tof_decoder/pkg/tof"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringConversion(t *testing.T) {
	assert.Equal(t, "tof_ch6", convertFromHdf5String(convertToHdf5String("tof_ch6")))
	assert.Equal(t, "", convertFromHdf5String(convertToHdf5String("")))
}

func writeTestRun(t *testing.T, filename string, writeEvents bool) (decoder.RunSummary, *tof.Histogram) {
	t.Helper()
	writer, err := NewWriter(filename, 4, writeEvents)
	require.NoError(t, err)
	writer.bufferSize = 2

	for i := range 5 {
		require.NoError(t, writer.WriteCorrelatedEvent(decoder.CorrelatedEvent{
			Timetag: uint64(1000 * i), LeftFineTime: 500, RightFineTime: 520, LeftChannel: 6, RightChannel: 7,
		}))
		require.NoError(t, writer.WriteSingle(decoder.Event{
			Kind: decoder.Waveform, Samples: []uint16{10, 20, 30, 40},
		}))
	}

	h, err := tof.FromCounts("tof_ch6", 0, 40, []float64{1, 20, 5, 0})
	require.NoError(t, err)
	require.NoError(t, writer.WriteHistogram(h.Name, h))
	profile, err := tof.Estimate(h, 100, 10, 0)
	require.NoError(t, err)
	require.NoError(t, writer.WriteDeadtime(profile))
	corrected, err := tof.CorrectDeadtime(h, profile.Fractions)
	require.NoError(t, err)
	require.NoError(t, writer.WriteCorrected(h.Name, corrected))

	summary := decoder.NewRunSummary(77, "run_77.dat")
	summary.Records = 10
	summary.Macropulses = 100
	summary.Rollovers[6] = 3
	require.NoError(t, writer.WriteRunInfo(summary))

	_, err = os.Stat(filename)
	assert.True(t, os.IsNotExist(err), "final name only appears on commit")
	require.NoError(t, writer.Commit())
	return summary, h
}

func TestWriterReaderRoundTrip(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "run_77.h5")
	summary, h := writeTestRun(t, filename, true)

	_, err := os.Stat(filename + PartialSuffix)
	assert.True(t, os.IsNotExist(err))

	reader, err := OpenReader(filename)
	require.NoError(t, err)
	defer reader.Close()

	assert.Equal(t, []string{"tof_ch6"}, reader.HistogramNames())
	got, err := reader.ReadHistogram("tof_ch6")
	require.NoError(t, err)
	assert.Equal(t, h.Counts(), got.Counts())
	assert.True(t, h.SameBinning(got))

	corrected, err := reader.ReadCorrected("tof_ch6")
	require.NoError(t, err)
	assert.InDelta(t, 20/0.9, corrected.Counts()[1], 1e-9)

	fractions, err := reader.ReadDeadtime("tof_ch6")
	require.NoError(t, err)
	assert.Len(t, fractions, 4)

	info, err := reader.ReadRunInfo()
	require.NoError(t, err)
	assert.Equal(t, 77, info.RunNumber)
	assert.Equal(t, summary.ProcessingID, info.ProcessingID)
	assert.Equal(t, uint64(100), info.Macropulses)
	assert.Equal(t, uint64(3), info.Rollovers[6])
	assert.InDelta(t, 0.2, info.MaxDeadtime["tof_ch6"], 1e-12)

	_, err = reader.ReadHistogram("missing")
	assert.Error(t, err)

	events, err := reader.File.OpenGroup("Events")
	require.NoError(t, err)
	defer events.Close()
	coincidences, err := readTable[coincidenceHDF5](events, "coincidences")
	require.NoError(t, err)
	require.Len(t, coincidences, 5)
	assert.Equal(t, uint64(4000), coincidences[4].timetag)
	singles, err := readTable[singleHDF5](events, "singles")
	require.NoError(t, err)
	require.Len(t, singles, 5)
	assert.Equal(t, uint64(16), singles[4].sample_offset)
	samples, err := readTable[uint16](events, "samples")
	require.NoError(t, err)
	assert.Len(t, samples, 20)
}

func TestWriterWithoutEvents(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "histograms.h5")
	writeTestRun(t, filename, false)

	reader, err := OpenReader(filename)
	require.NoError(t, err)
	defer reader.Close()
	_, err = reader.File.OpenGroup("Events")
	assert.Error(t, err)
}

func TestWriterAbortLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	filename := filepath.Join(dir, "aborted.h5")
	writer, err := NewWriter(filename, 0, true)
	require.NoError(t, err)
	require.NoError(t, writer.WriteSingle(decoder.Event{Samples: []uint16{1}}))
	require.NoError(t, writer.Abort())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func writeEventsAndCommit(filename string, n int) error {
	writer, err := NewWriter(filename, 1, true)
	if err != nil {
		return err
	}
	writer.bufferSize = 3
	for i := range n {
		e := decoder.CorrelatedEvent{Timetag: uint64(i), LeftChannel: 6, RightChannel: 7}
		if err := writer.WriteCorrelatedEvent(e); err != nil {
			return errors.Join(err, writer.Abort())
		}
		if err := writer.WriteSingle(decoder.Event{Samples: []uint16{uint16(i)}}); err != nil {
			return errors.Join(err, writer.Abort())
		}
	}
	h, err := tof.FromCounts("tof_ch6", 0, 10, []float64{float64(n)})
	if err != nil {
		return errors.Join(err, writer.Abort())
	}
	if err := writer.WriteHistogram(h.Name, h); err != nil {
		return errors.Join(err, writer.Abort())
	}
	if err := writer.WriteRunInfo(decoder.NewRunSummary(n, filename)); err != nil {
		return errors.Join(err, writer.Abort())
	}
	return writer.Commit()
}

func TestConcurrentWriters(t *testing.T) {
	dir := t.TempDir()
	const nFiles = 6

	errs := make([]error, nFiles)
	var wg sync.WaitGroup
	for i := range nFiles {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = writeEventsAndCommit(filepath.Join(dir, fmt.Sprintf("run_%d.h5", i)), 20+i)
		}()
	}
	wg.Wait()

	for i := range nFiles {
		require.NoError(t, errs[i])
		reader, err := OpenReader(filepath.Join(dir, fmt.Sprintf("run_%d.h5", i)))
		require.NoError(t, err)
		h, err := reader.ReadHistogram("tof_ch6")
		require.NoError(t, err)
		assert.Equal(t, []float64{float64(20 + i)}, h.Counts())

		events, err := reader.File.OpenGroup("Events")
		require.NoError(t, err)
		coincidences, err := readTable[coincidenceHDF5](events, "coincidences")
		require.NoError(t, err)
		assert.Len(t, coincidences, 20+i)
		require.NoError(t, events.Close())
		require.NoError(t, reader.Close())
	}
}

func TestOpenReaderMissingFile(t *testing.T) {
	_, err := OpenReader(filepath.Join(t.TempDir(), "missing.h5"))
	var openErr *decoder.ErrOpenFile
	assert.ErrorAs(t, err, &openErr)
}
