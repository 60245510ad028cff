package decoder

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const EnvPrefix = "TOFDECODER_"

type Configuration struct {
	FileIn                 string        `json:"file_in"`
	FileOut                string        `json:"file_out"`
	RunNumber              int           `json:"run_number"`
	MaxRecords             int           `json:"max_records"`
	Verbosity              int           `json:"verbosity"`
	SamplePeriodNs         uint64        `json:"sample_period_ns"`
	CoincidenceWindowTicks uint64        `json:"coincidence_window_ticks"`
	Pairs                  []ChannelPair `json:"pairs"`
	TargetChangerCh        int           `json:"target_changer_ch"`
	MonitorCh              int           `json:"monitor_ch"`
	SinglesChannels        []int         `json:"singles_channels"`
	TofBins                int           `json:"tof_bins"`
	TofMinNs               float64       `json:"tof_min_ns"`
	TofMaxNs               float64       `json:"tof_max_ns"`
	TofOffsetNs            float64       `json:"tof_offset_ns"`
	DeadTimeNs             float64       `json:"dead_time_ns"`
	TransitionTimeNs       float64       `json:"transition_time_ns"`
	CorrectDeadtime        bool          `json:"correct_deadtime"`
	NoDB                   bool          `json:"no_db"`
	DBDriver               string        `json:"db_driver"`
	Host                   string        `json:"host"`
	User                   string        `json:"user"`
	Passwd                 string        `json:"pass"`
	DBName                 string        `json:"dbname"`
	NumWorkers             int           `json:"num_workers"`
	WriteData              bool          `json:"write_data"`
	CompressionLevel       int           `json:"compression_level"`
	MetricsAddr            string        `json:"metrics_addr"`
	SummaryOut             string        `json:"summary_out"`
	PlotOut                string        `json:"plot_out"`
}

// ChannelPair names the two digitizer channels looking at the same physical event.
type ChannelPair struct {
	Left  int `json:"left"`
	Right int `json:"right"`
}

// DefaultConfiguration returns the settings used for the standard
// left/right detector layout of the experiment.
func DefaultConfiguration() Configuration {
	return Configuration{
		MaxRecords:             1000000000,
		Verbosity:              0,
		SamplePeriodNs:         2,
		CoincidenceWindowTicks: 0,
		Pairs:                  []ChannelPair{{Left: 6, Right: 7}},
		TargetChangerCh:        3,
		MonitorCh:              2,
		SinglesChannels:        []int{6, 7},
		TofBins:                10000,
		TofMinNs:               0,
		TofMaxNs:               100000,
		TofOffsetNs:            0,
		DeadTimeNs:             200,
		TransitionTimeNs:       100,
		CorrectDeadtime:        true,
		NoDB:                   true,
		DBDriver:               "mysql",
		Host:                   "localhost",
		User:                   "tofreader",
		Passwd:                 "readonly",
		DBName:                 "TOF",
		NumWorkers:             1,
		WriteData:              true,
		CompressionLevel:       4,
	}
}

var configuration = DefaultConfiguration()

func GetConfiguration() Configuration {
	return configuration
}

// SetConfiguration sets the package wide settings, used for verbosity
// gated logging.
func SetConfiguration(config Configuration) {
	configuration = config
}

// LoadConfiguration layers defaults, the optional configuration file
// (YAML, which also reads the JSON files of older runs) and TOFDECODER_*
// environment variables, in increasing precedence.
func LoadConfiguration(filename string) (Configuration, error) {
	config := DefaultConfiguration()
	k := koanf.New(".")

	if filename != "" {
		if err := k.Load(file.Provider(filename), yaml.Parser()); err != nil {
			return config, &ErrOpenFile{Filename: filename, Err: err}
		}
	}

	// TOFDECODER_RUN_NUMBER -> run_number
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return config, fmt.Errorf("error reading environment: %w", err)
	}

	if err := k.UnmarshalWithConf("", &config, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return config, fmt.Errorf("error decoding configuration: %w", err)
	}
	if err := config.Validate(); err != nil {
		return config, err
	}
	return config, nil
}

func (c Configuration) Validate() error {
	if c.SamplePeriodNs == 0 {
		return fmt.Errorf("sample_period_ns must be positive")
	}
	if c.TofBins <= 0 {
		return fmt.Errorf("tof_bins must be positive, got %d", c.TofBins)
	}
	if !(c.TofMaxNs > c.TofMinNs) {
		return fmt.Errorf("tof_max_ns (%g) must be above tof_min_ns (%g)", c.TofMaxNs, c.TofMinNs)
	}
	if c.DeadTimeNs < 0 || c.TransitionTimeNs < 0 {
		return fmt.Errorf("dead and transition times must not be negative")
	}
	if c.NumWorkers < 1 {
		return fmt.Errorf("num_workers must be at least 1, got %d", c.NumWorkers)
	}
	return nil
}

func PrintConfiguration(config Configuration, logger Logger) {
	logger.Info(fmt.Sprintf("File in: %s", config.FileIn), "config")
	logger.Info(fmt.Sprintf("File out: %s", config.FileOut), "config")
	logger.Info(fmt.Sprintf("Run number: %d", config.RunNumber), "config")
	logger.Info(fmt.Sprintf("Max records: %d", config.MaxRecords), "config")
	logger.Info(fmt.Sprintf("Verbosity: %d", config.Verbosity), "config")
	logger.Info(fmt.Sprintf("Sample period: %d ns", config.SamplePeriodNs), "config")
	logger.Info(fmt.Sprintf("Coincidence window: %d ticks", config.CoincidenceWindowTicks), "config")
	logger.Info(fmt.Sprintf("Pairs: %v", config.Pairs), "config")
	logger.Info(fmt.Sprintf("Target changer channel: %d", config.TargetChangerCh), "config")
	logger.Info(fmt.Sprintf("Monitor channel: %d", config.MonitorCh), "config")
	logger.Info(fmt.Sprintf("Singles channels: %v", config.SinglesChannels), "config")
	logger.Info(fmt.Sprintf("TOF bins: %d [%g, %g) ns", config.TofBins, config.TofMinNs, config.TofMaxNs), "config")
	logger.Info(fmt.Sprintf("TOF offset: %g ns", config.TofOffsetNs), "config")
	logger.Info(fmt.Sprintf("Dead time: %g ns", config.DeadTimeNs), "config")
	logger.Info(fmt.Sprintf("Transition time: %g ns", config.TransitionTimeNs), "config")
	logger.Info(fmt.Sprintf("Correct dead time: %t", config.CorrectDeadtime), "config")
	logger.Info(fmt.Sprintf("No DB: %t", config.NoDB), "config")
	logger.Info(fmt.Sprintf("DB driver: %s", config.DBDriver), "config")
	logger.Info(fmt.Sprintf("Host: %s", config.Host), "config")
	logger.Info(fmt.Sprintf("DB name: %s", config.DBName), "config")
	logger.Info(fmt.Sprintf("Number of workers: %d", config.NumWorkers), "config")
	logger.Info(fmt.Sprintf("Write data: %t", config.WriteData), "config")
	logger.Info(fmt.Sprintf("Compression level: %d", config.CompressionLevel), "config")
	logger.Info(fmt.Sprintf("Metrics address: %s", config.MetricsAddr), "config")
	logger.Info(fmt.Sprintf("Summary out: %s", config.SummaryOut), "config")
	logger.Info(fmt.Sprintf("Plot out: %s", config.PlotOut), "config")
}
