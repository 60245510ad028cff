package h5

import (
	"errors"
	"fmt"
	"time"

	"github.com/jmbenlloch/go-hdf5"
	decoder "github.com/next-exp/tof_decoder/pkg"
	"github.com/next-exp/tof_decoder/pkg/tof"
)

// Reader gives keyed access to the histograms and run information of a
// file produced by Writer.
type Reader struct {
	File     *hdf5.File
	Filename string
	axes     map[string]axisHDF5
	names    []string
}

func OpenReader(filename string) (*Reader, error) {
	libraryMu.Lock()
	defer libraryMu.Unlock()

	f, err := hdf5.OpenFile(filename, hdf5.F_ACC_RDONLY)
	if err != nil {
		return nil, &decoder.ErrOpenFile{Filename: filename, Err: err}
	}
	r := &Reader{File: f, Filename: filename, axes: make(map[string]axisHDF5)}

	group, err := f.OpenGroup("Histograms")
	if err != nil {
		return nil, errors.Join(fmt.Errorf("error opening histograms of %s: %w", filename, err), f.Close())
	}
	defer group.Close()
	axes, err := readTable[axisHDF5](group, "axes")
	if err != nil {
		return nil, errors.Join(err, f.Close())
	}
	for _, axis := range axes {
		name := convertFromHdf5String(axis.name)
		r.axes[name] = axis
		r.names = append(r.names, name)
	}
	return r, nil
}

// HistogramNames lists the stored histograms in write order.
func (r *Reader) HistogramNames() []string {
	return r.names
}

func (r *Reader) ReadHistogram(name string) (*tof.Histogram, error) {
	return r.readHistogram("Histograms", name)
}

func (r *Reader) ReadCorrected(name string) (*tof.Histogram, error) {
	return r.readHistogram("Corrected", name)
}

func (r *Reader) ReadDeadtime(name string) ([]float64, error) {
	libraryMu.Lock()
	defer libraryMu.Unlock()

	group, err := r.File.OpenGroup("Deadtime")
	if err != nil {
		return nil, fmt.Errorf("error opening dead time group: %w", err)
	}
	defer group.Close()
	return readTable[float64](group, name)
}

func (r *Reader) readHistogram(groupName string, name string) (*tof.Histogram, error) {
	libraryMu.Lock()
	defer libraryMu.Unlock()

	axis, ok := r.axes[name]
	if !ok {
		return nil, fmt.Errorf("histogram %s not found in %s", name, r.Filename)
	}
	group, err := r.File.OpenGroup(groupName)
	if err != nil {
		return nil, fmt.Errorf("error opening group %s: %w", groupName, err)
	}
	defer group.Close()

	counts, err := readTable[float64](group, name)
	if err != nil {
		return nil, err
	}
	if len(counts) != int(axis.n_bins) {
		return nil, fmt.Errorf("histogram %s has %d bins, axis says %d", name, len(counts), axis.n_bins)
	}
	return tof.FromCounts(name, axis.min_ns, axis.max_ns, counts)
}

// ReadRunInfo returns the last run summary stored in the file.
func (r *Reader) ReadRunInfo() (decoder.RunSummary, error) {
	libraryMu.Lock()
	defer libraryMu.Unlock()

	var summary decoder.RunSummary
	group, err := r.File.OpenGroup("Run")
	if err != nil {
		return summary, fmt.Errorf("error opening run group: %w", err)
	}
	defer group.Close()

	infos, err := readTable[runInfoHDF5](group, "runInfo")
	if err != nil {
		return summary, err
	}
	if len(infos) == 0 {
		return summary, fmt.Errorf("no run info in %s", r.Filename)
	}
	info := infos[len(infos)-1]
	summary = decoder.RunSummary{
		RunNumber:    int(info.run_number),
		ProcessingID: convertFromHdf5String(info.processing_id),
		Input:        r.Filename,
		StartedAt:    time.Unix(0, info.started_at).UTC(),
		FinishedAt:   time.Unix(0, info.finished_at).UTC(),
		Records:      info.records,
		Compressed:   info.compressed,
		Waveforms:    info.waveforms,
		Correlated:   info.correlated,
		Singles:      info.singles,
		Unreferenced: info.unreferenced,
		Monitor:      info.monitor,
		Macropulses:  info.macropulses,
		Rollovers:    make([]uint64, decoder.NumChannels),
		MaxDeadtime:  make(map[string]float64),
	}

	rollovers, err := readTable[rolloverHDF5](group, "rollovers")
	if err != nil {
		return summary, err
	}
	for _, entry := range rollovers {
		if entry.channel >= 0 && int(entry.channel) < decoder.NumChannels {
			summary.Rollovers[entry.channel] = entry.rollovers
		}
	}

	deadtime, err := r.File.OpenGroup("Deadtime")
	if err != nil {
		return summary, fmt.Errorf("error opening dead time group: %w", err)
	}
	defer deadtime.Close()
	params, err := readTable[deadtimeParamsHDF5](deadtime, "params")
	if err != nil {
		return summary, err
	}
	for _, p := range params {
		summary.MaxDeadtime[convertFromHdf5String(p.name)] = p.max_fraction
	}
	return summary, nil
}

func (r *Reader) Close() error {
	libraryMu.Lock()
	defer libraryMu.Unlock()

	return r.File.Close()
}
