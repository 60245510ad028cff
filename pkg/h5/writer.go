// Package h5 stores decoded runs in HDF5 files.
package h5

import (
	"errors"
	"fmt"
	"os"

	"github.com/jmbenlloch/go-hdf5"
	decoder "github.com/next-exp/tof_decoder/pkg"
	"github.com/next-exp/tof_decoder/pkg/tof"
)

const (
	PartialSuffix     = ".partial"
	defaultBufferSize = 4096
)

// Writer is a decoder.Sink writing to Filename. Data goes to a temporary
// file that only gets its final name on Commit.
type Writer struct {
	File        *hdf5.File
	Filename    string
	compression int
	writeEvents bool
	bufferSize  int

	RunGroup        *hdf5.Group
	EventsGroup     *hdf5.Group
	HistogramsGroup *hdf5.Group
	DeadtimeGroup   *hdf5.Group
	CorrectedGroup  *hdf5.Group

	RunInfoTable     *hdf5.Dataset
	RolloversTable   *hdf5.Dataset
	CoincidenceTable *hdf5.Dataset
	SinglesTable     *hdf5.Dataset
	SamplesArray     *hdf5.Dataset
	AxesTable        *hdf5.Dataset
	DeadtimeTable    *hdf5.Dataset

	coincidences  []coincidenceHDF5
	singles       []singleHDF5
	samples       []uint16
	nCoincidences int
	nSingles      int
	nSamples      int
	nAxes         int
	nDeadtime     int
	nRunInfo      int
	nRollovers    int
	closed        bool
}

// NewWriter creates the output file layout. When writeEvents is false only
// histograms and run information are stored.
func NewWriter(filename string, compression int, writeEvents bool) (*Writer, error) {
	libraryMu.Lock()
	defer libraryMu.Unlock()

	w := &Writer{
		Filename:    filename,
		compression: compression,
		writeEvents: writeEvents,
		bufferSize:  defaultBufferSize,
	}

	var err error
	w.File, err = createFile(w.partialName())
	if err != nil {
		return nil, err
	}
	if err := w.createLayout(); err != nil {
		return nil, errors.Join(err, w.abort())
	}
	return w, nil
}

func (w *Writer) partialName() string {
	return w.Filename + PartialSuffix
}

func (w *Writer) createLayout() error {
	var err error
	if w.RunGroup, err = createGroup(w.File, "Run"); err != nil {
		return err
	}
	if w.HistogramsGroup, err = createGroup(w.File, "Histograms"); err != nil {
		return err
	}
	if w.DeadtimeGroup, err = createGroup(w.File, "Deadtime"); err != nil {
		return err
	}
	if w.CorrectedGroup, err = createGroup(w.File, "Corrected"); err != nil {
		return err
	}
	if w.RunInfoTable, err = createTable(w.RunGroup, "runInfo", runInfoHDF5{}, w.compression); err != nil {
		return err
	}
	if w.RolloversTable, err = createTable(w.RunGroup, "rollovers", rolloverHDF5{}, w.compression); err != nil {
		return err
	}
	if w.AxesTable, err = createTable(w.HistogramsGroup, "axes", axisHDF5{}, w.compression); err != nil {
		return err
	}
	if w.DeadtimeTable, err = createTable(w.DeadtimeGroup, "params", deadtimeParamsHDF5{}, w.compression); err != nil {
		return err
	}

	if !w.writeEvents {
		return nil
	}
	if w.EventsGroup, err = createGroup(w.File, "Events"); err != nil {
		return err
	}
	if w.CoincidenceTable, err = createTable(w.EventsGroup, "coincidences", coincidenceHDF5{}, w.compression); err != nil {
		return err
	}
	if w.SinglesTable, err = createTable(w.EventsGroup, "singles", singleHDF5{}, w.compression); err != nil {
		return err
	}
	if w.SamplesArray, err = createArray(w.EventsGroup, "samples", hdf5.T_NATIVE_UINT16, 32768, w.compression); err != nil {
		return err
	}
	return nil
}

func (w *Writer) WriteCorrelatedEvent(e decoder.CorrelatedEvent) error {
	if !w.writeEvents {
		return nil
	}
	w.coincidences = append(w.coincidences, coincidenceHDF5{
		timetag:            e.Timetag,
		right_timetag:      e.RightTimetag,
		left_fine_time:     e.LeftFineTime,
		right_fine_time:    e.RightFineTime,
		left_charge:        e.LeftCharge,
		right_charge:       e.RightCharge,
		left_short_charge:  e.LeftShortCharge,
		right_short_charge: e.RightShortCharge,
		left_channel:       e.LeftChannel,
		right_channel:      e.RightChannel,
		macro_id:           e.MacroID,
		tof:                e.TofNs,
	})
	if len(w.coincidences) >= w.bufferSize {
		libraryMu.Lock()
		defer libraryMu.Unlock()
		return w.flushCoincidences()
	}
	return nil
}

func (w *Writer) WriteSingle(e decoder.Event) error {
	if !w.writeEvents {
		return nil
	}
	w.singles = append(w.singles, singleHDF5{
		channel:       e.Channel,
		kind:          uint8(e.Kind),
		extended_time: e.ExtendedTime,
		fine_time:     e.FineTime,
		short_charge:  e.ShortGateCharge,
		long_charge:   e.LongGateCharge,
		macro_id:      e.MacroID,
		tof:           e.TofNs,
		sample_offset: uint64(w.nSamples + len(w.samples)),
		n_samples:     uint32(len(e.Samples)),
	})
	w.samples = append(w.samples, e.Samples...)
	if len(w.singles) >= w.bufferSize {
		libraryMu.Lock()
		defer libraryMu.Unlock()
		return w.flushSingles()
	}
	return nil
}

func (w *Writer) flushCoincidences() error {
	if err := writeArrayToTable(w.CoincidenceTable, &w.coincidences, w.nCoincidences); err != nil {
		return fmt.Errorf("error writing coincidences: %w", err)
	}
	w.nCoincidences += len(w.coincidences)
	w.coincidences = w.coincidences[:0]
	return nil
}

func (w *Writer) flushSingles() error {
	if err := writeArrayToTable(w.SamplesArray, &w.samples, w.nSamples); err != nil {
		return fmt.Errorf("error writing samples: %w", err)
	}
	w.nSamples += len(w.samples)
	w.samples = w.samples[:0]

	if err := writeArrayToTable(w.SinglesTable, &w.singles, w.nSingles); err != nil {
		return fmt.Errorf("error writing singles: %w", err)
	}
	w.nSingles += len(w.singles)
	w.singles = w.singles[:0]
	return nil
}

func (w *Writer) writeFloats(group *hdf5.Group, name string, values []float64) error {
	dset, err := createFixedArray(group, name, hdf5.T_NATIVE_DOUBLE, len(values), w.compression)
	if err != nil {
		return err
	}
	if len(values) > 0 {
		err = dset.Write(&values)
	}
	return errors.Join(err, dset.Close())
}

func (w *Writer) WriteHistogram(name string, h *tof.Histogram) error {
	libraryMu.Lock()
	defer libraryMu.Unlock()

	if err := w.writeFloats(w.HistogramsGroup, name, h.Counts()); err != nil {
		return err
	}
	axis := axisHDF5{
		name:   convertToHdf5String(name),
		n_bins: int32(h.NBins()),
		min_ns: h.MinNs,
		max_ns: h.MaxNs,
	}
	if err := writeEntryToTable(w.AxesTable, axis, w.nAxes); err != nil {
		return fmt.Errorf("error writing axis of %s: %w", name, err)
	}
	w.nAxes++
	return nil
}

func (w *Writer) WriteDeadtime(profile tof.Profile) error {
	libraryMu.Lock()
	defer libraryMu.Unlock()

	if err := w.writeFloats(w.DeadtimeGroup, profile.Name, profile.Fractions); err != nil {
		return err
	}
	params := deadtimeParamsHDF5{
		name:            convertToHdf5String(profile.Name),
		full_dead_bins:  int32(profile.FullDeadBins),
		transition_bins: int32(profile.TransitionBins),
		max_fraction:    profile.MaxFraction(),
	}
	if err := writeEntryToTable(w.DeadtimeTable, params, w.nDeadtime); err != nil {
		return fmt.Errorf("error writing dead time parameters of %s: %w", profile.Name, err)
	}
	w.nDeadtime++
	return nil
}

func (w *Writer) WriteCorrected(name string, h *tof.Histogram) error {
	libraryMu.Lock()
	defer libraryMu.Unlock()

	return w.writeFloats(w.CorrectedGroup, name, h.Counts())
}

func (w *Writer) WriteRunInfo(summary decoder.RunSummary) error {
	libraryMu.Lock()
	defer libraryMu.Unlock()

	info := runInfoHDF5{
		run_number:    int32(summary.RunNumber),
		processing_id: convertToHdf5String(summary.ProcessingID),
		records:       summary.Records,
		compressed:    summary.Compressed,
		waveforms:     summary.Waveforms,
		correlated:    summary.Correlated,
		singles:       summary.Singles,
		unreferenced:  summary.Unreferenced,
		monitor:       summary.Monitor,
		macropulses:   summary.Macropulses,
		started_at:    summary.StartedAt.UnixNano(),
		finished_at:   summary.FinishedAt.UnixNano(),
	}
	if err := writeEntryToTable(w.RunInfoTable, info, w.nRunInfo); err != nil {
		return fmt.Errorf("error writing run info: %w", err)
	}
	w.nRunInfo++

	rollovers := make([]rolloverHDF5, len(summary.Rollovers))
	for ch, n := range summary.Rollovers {
		rollovers[ch] = rolloverHDF5{channel: int32(ch), rollovers: n}
	}
	if err := writeArrayToTable(w.RolloversTable, &rollovers, w.nRollovers); err != nil {
		return fmt.Errorf("error writing rollovers: %w", err)
	}
	w.nRollovers += len(rollovers)
	return nil
}

// Commit flushes buffered events, closes the file and gives it its final
// name.
func (w *Writer) Commit() error {
	libraryMu.Lock()
	defer libraryMu.Unlock()

	var errs []error
	if w.writeEvents {
		if err := w.flushCoincidences(); err != nil {
			errs = append(errs, err)
		}
		if err := w.flushSingles(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := w.close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		errs = append(errs, os.Remove(w.partialName()))
		return errors.Join(errs...)
	}
	if err := os.Rename(w.partialName(), w.Filename); err != nil {
		return fmt.Errorf("error renaming %s: %w", w.partialName(), err)
	}
	return nil
}

// Abort closes and removes the output, leaving nothing behind.
func (w *Writer) Abort() error {
	libraryMu.Lock()
	defer libraryMu.Unlock()

	return w.abort()
}

func (w *Writer) abort() error {
	err := w.close()
	if rmErr := os.Remove(w.partialName()); rmErr != nil && !os.IsNotExist(rmErr) {
		err = errors.Join(err, rmErr)
	}
	return err
}

func (w *Writer) Close() error {
	libraryMu.Lock()
	defer libraryMu.Unlock()

	return w.close()
}

func (w *Writer) close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	var errs []error

	datasets := []struct {
		name string
		dset *hdf5.Dataset
	}{
		{"run info table", w.RunInfoTable},
		{"rollovers table", w.RolloversTable},
		{"coincidence table", w.CoincidenceTable},
		{"singles table", w.SinglesTable},
		{"samples array", w.SamplesArray},
		{"axes table", w.AxesTable},
		{"dead time table", w.DeadtimeTable},
	}
	for _, d := range datasets {
		if d.dset == nil {
			continue
		}
		if err := d.dset.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing %s: %w", d.name, err))
		}
	}

	groups := []struct {
		name  string
		group *hdf5.Group
	}{
		{"run group", w.RunGroup},
		{"events group", w.EventsGroup},
		{"histograms group", w.HistogramsGroup},
		{"dead time group", w.DeadtimeGroup},
		{"corrected group", w.CorrectedGroup},
	}
	for _, g := range groups {
		if g.group == nil {
			continue
		}
		if err := g.group.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing %s: %w", g.name, err))
		}
	}

	if w.File != nil {
		if err := w.File.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing file: %w", err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
