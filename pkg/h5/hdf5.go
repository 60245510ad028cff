package h5

import (
	"fmt"
	"sync"

	"github.com/jmbenlloch/go-hdf5"
)

const STRLEN = 48

// libhdf5 is not built thread safe. Every exported Writer and Reader method
// holds libraryMu while it calls into the library, so files may be written
// from several goroutines.
var libraryMu sync.Mutex

type runInfoHDF5 struct {
	run_number    int32
	processing_id [STRLEN]byte
	records       uint64
	compressed    uint64
	waveforms     uint64
	correlated    uint64
	singles       uint64
	unreferenced  uint64
	monitor       uint64
	macropulses   uint64
	started_at    int64
	finished_at   int64
}

type rolloverHDF5 struct {
	channel   int32
	rollovers uint64
}

type coincidenceHDF5 struct {
	timetag            uint64
	right_timetag      uint64
	left_fine_time     uint16
	right_fine_time    uint16
	left_charge        uint16
	right_charge       uint16
	left_short_charge  uint16
	right_short_charge uint16
	left_channel       uint8
	right_channel      uint8
	macro_id           uint64
	tof                float64
}

type singleHDF5 struct {
	channel       uint8
	kind          uint8
	extended_time uint64
	fine_time     uint16
	short_charge  uint16
	long_charge   uint16
	macro_id      uint64
	tof           float64
	sample_offset uint64
	n_samples     uint32
}

type axisHDF5 struct {
	name   [STRLEN]byte
	n_bins int32
	min_ns float64
	max_ns float64
}

type deadtimeParamsHDF5 struct {
	name            [STRLEN]byte
	full_dead_bins  int32
	transition_bins int32
	max_fraction    float64
}

func convertToHdf5String(s string) [STRLEN]byte {
	var byteArray [STRLEN]byte
	copy(byteArray[:], s)
	return byteArray
}

func convertFromHdf5String(b [STRLEN]byte) string {
	n := 0
	for n < STRLEN && b[n] != 0 {
		n++
	}
	return string(b[:n])
}

func createFile(fname string) (*hdf5.File, error) {
	f, err := hdf5.CreateFile(fname, hdf5.F_ACC_TRUNC)
	if err != nil {
		return nil, fmt.Errorf("error creating file %s: %w", fname, err)
	}
	return f, nil
}

func createGroup(file *hdf5.File, groupName string) (*hdf5.Group, error) {
	g, err := file.CreateGroup(groupName)
	if err != nil {
		return nil, fmt.Errorf("error creating group %s: %w", groupName, err)
	}
	return g, nil
}

// createArray creates an extendable 1-D dataset of a native numeric type.
func createArray(group *hdf5.Group, name string, dtype *hdf5.Datatype, chunk int, compression int) (*hdf5.Dataset, error) {
	dims := []uint{0}
	unlimitedDims := -1 // H5S_UNLIMITED is -1L
	maxDims := []uint{uint(unlimitedDims)}
	return createDataset(group, name, dtype, dims, maxDims, []uint{uint(max(chunk, 1))}, compression)
}

// createFixedArray creates a 1-D dataset holding exactly length values.
func createFixedArray(group *hdf5.Group, name string, dtype *hdf5.Datatype, length int, compression int) (*hdf5.Dataset, error) {
	dims := []uint{uint(length)}
	chunk := min(max(length, 1), 32768)
	return createDataset(group, name, dtype, dims, dims, []uint{uint(chunk)}, compression)
}

func createTable(group *hdf5.Group, name string, datatype interface{}, compression int) (*hdf5.Dataset, error) {
	dtype, err := hdf5.NewDatatypeFromValue(datatype)
	if err != nil {
		return nil, fmt.Errorf("error creating datatype of %s: %w", name, err)
	}
	return createArray(group, name, dtype, 32768, compression)
}

func createDataset(group *hdf5.Group, name string, dtype *hdf5.Datatype,
	dims []uint, maxDims []uint, chunks []uint, compression int) (*hdf5.Dataset, error) {
	fileSpace, err := hdf5.CreateSimpleDataspace(dims, maxDims)
	if err != nil {
		return nil, fmt.Errorf("error creating dataspace of %s: %w", name, err)
	}
	defer fileSpace.Close()

	plist, err := hdf5.NewPropList(hdf5.P_DATASET_CREATE)
	if err != nil {
		return nil, fmt.Errorf("error creating property list of %s: %w", name, err)
	}
	defer plist.Close()

	if err := plist.SetChunk(chunks); err != nil {
		return nil, fmt.Errorf("error setting chunks of %s: %w", name, err)
	}
	if compression > 0 {
		if err := plist.SetDeflate(compression); err != nil {
			return nil, fmt.Errorf("error setting compression of %s: %w", name, err)
		}
	}

	dset, err := group.CreateDatasetWith(name, dtype, fileSpace, plist)
	if err != nil {
		return nil, fmt.Errorf("error creating dataset %s: %w", name, err)
	}
	return dset, nil
}

func writeEntryToTable[T any](dataset *hdf5.Dataset, data T, offset int) error {
	array := []T{data}
	return writeArrayToTable(dataset, &array, offset)
}

// writeArrayToTable appends data to an extendable 1-D dataset that already
// holds offset entries.
func writeArrayToTable[T any](dataset *hdf5.Dataset, data *[]T, offset int) error {
	length := uint(len(*data))
	if length == 0 {
		return nil
	}
	dims := []uint{length}
	dataspace, err := hdf5.CreateSimpleDataspace(dims, nil)
	if err != nil {
		return fmt.Errorf("error creating memory dataspace: %w", err)
	}
	defer dataspace.Close()

	// extend
	entriesInFile := uint(offset)
	newsize := []uint{entriesInFile + length}
	if err := dataset.Resize(newsize); err != nil {
		return fmt.Errorf("error extending dataset: %w", err)
	}
	filespace := dataset.Space()
	defer filespace.Close()

	start := []uint{entriesInFile}
	count := []uint{length}
	if err := filespace.SelectHyperslab(start, nil, count, nil); err != nil {
		return fmt.Errorf("error selecting hyperslab: %w", err)
	}

	if err := dataset.WriteSubset(data, dataspace, filespace); err != nil {
		return fmt.Errorf("error writing %d entries at %d: %w", length, offset, err)
	}
	return nil
}

// readTable reads a whole 1-D dataset.
func readTable[T any](group *hdf5.Group, name string) ([]T, error) {
	dataset, err := group.OpenDataset(name)
	if err != nil {
		return nil, fmt.Errorf("error opening dataset %s: %w", name, err)
	}
	defer dataset.Close()

	space := dataset.Space()
	dims, _, err := space.SimpleExtentDims()
	space.Close()
	if err != nil {
		return nil, fmt.Errorf("error reading dimensions of %s: %w", name, err)
	}
	if len(dims) != 1 {
		return nil, fmt.Errorf("dataset %s has %d dimensions, expected 1", name, len(dims))
	}

	data := make([]T, dims[0])
	if dims[0] == 0 {
		return data, nil
	}
	if err := dataset.Read(&data); err != nil {
		return nil, fmt.Errorf("error reading dataset %s: %w", name, err)
	}
	return data, nil
}
