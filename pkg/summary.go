package decoder

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/constraints"
	"gopkg.in/yaml.v3"
)

// RunSummary collects the bookkeeping of one processed run.
type RunSummary struct {
	RunNumber    int       `yaml:"run_number"`
	ProcessingID string    `yaml:"processing_id"`
	Input        string    `yaml:"input"`
	StartedAt    time.Time `yaml:"started_at"`
	FinishedAt   time.Time `yaml:"finished_at"`

	Records      uint64 `yaml:"records"`
	Compressed   uint64 `yaml:"compressed"`
	Waveforms    uint64 `yaml:"waveforms"`
	Correlated   uint64 `yaml:"correlated"`
	Singles      uint64 `yaml:"singles"`
	Unreferenced uint64 `yaml:"unreferenced"`
	Monitor      uint64 `yaml:"monitor"`
	Macropulses  uint64 `yaml:"macropulses"`

	Rollovers   []uint64           `yaml:"rollovers"`
	MaxDeadtime map[string]float64 `yaml:"max_deadtime,omitempty"`
}

func NewRunSummary(runNumber int, input string) RunSummary {
	return RunSummary{
		RunNumber:    runNumber,
		ProcessingID: uuid.NewString(),
		Input:        input,
		StartedAt:    time.Now().UTC(),
		Rollovers:    make([]uint64, NumChannels),
		MaxDeadtime:  make(map[string]float64),
	}
}

// Save writes the summary as YAML.
func (s RunSummary) Save(filename string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("error encoding run summary: %w", err)
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("error writing run summary %s: %w", filename, err)
	}
	return nil
}

func LoadRunSummary(filename string) (RunSummary, error) {
	var s RunSummary
	data, err := os.ReadFile(filename)
	if err != nil {
		return s, &ErrOpenFile{Filename: filename, Err: err}
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("error decoding run summary %s: %w", filename, err)
	}
	return s, nil
}

// SortedKeys returns the keys of m in ascending order, so maps are always
// written and logged in the same order.
func SortedKeys[K constraints.Ordered, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
