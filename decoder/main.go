package main

import (
	"fmt"
	"os"

	sqlx "github.com/jmoiron/sqlx"
	decoder "github.com/next-exp/tof_decoder/pkg"
	"github.com/next-exp/tof_decoder/pkg/logging"
	"github.com/next-exp/tof_decoder/pkg/metrics"
	"github.com/spf13/cobra"
)

var dbConn *sqlx.DB
var configuration decoder.Configuration

var (
	logger         logging.Logger
	VerbosityLevel int
)

var (
	configFilename string
	fileOut        string
	runNumber      int
	numWorkers     int
	verbosity      int
	noDB           bool
)

func init() {
	logger = logging.NewStd()

	rootCmd.Flags().StringVarP(&configFilename, "config", "c", "", "Configuration file path")
	rootCmd.Flags().StringVarP(&fileOut, "out", "o", "", "Output file, or directory when decoding several files")
	rootCmd.Flags().IntVarP(&runNumber, "run", "r", 0, "Run number (default: taken from the configuration or file name)")
	rootCmd.Flags().IntVarP(&numWorkers, "workers", "j", 0, "Files decoded in parallel")
	rootCmd.Flags().IntVarP(&verbosity, "verbosity", "v", -1, "Verbosity level")
	rootCmd.Flags().BoolVar(&noDB, "no-db", false, "Use the channel mapping of the configuration instead of the database")
}

var rootCmd = &cobra.Command{
	Use:   "decoder [flags] [raw files...]",
	Short: "Decode digitizer streams into time of flight histograms",
	Long: "Reads raw digitizer dumps (optionally .zst compressed), pairs left/right detector events,\n" +
		"fills time of flight histograms and corrects them for dead time. Results go to HDF5.",
	SilenceUsage: true,
	RunE:         run,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	var err error
	configuration, err = decoder.LoadConfiguration(configFilename)
	if err != nil {
		message := fmt.Errorf("Error reading configuration file: %w", err)
		logger.Error(message.Error())
		return message
	}
	applyFlags(cmd)
	if err := configuration.Validate(); err != nil {
		logger.Error(err.Error())
		return err
	}
	decoder.SetConfiguration(configuration)
	decoder.SetLogger(logger)

	VerbosityLevel = configuration.Verbosity
	if VerbosityLevel > 0 {
		message := fmt.Sprintf("Reading configuration file: %s", configFilename)
		logger.Info(message, "main")
		decoder.PrintConfiguration(configuration, logger)
	}

	inputs := args
	if len(inputs) == 0 && configuration.FileIn != "" {
		inputs = []string{configuration.FileIn}
	}
	if len(inputs) == 0 {
		return fmt.Errorf("no input files given")
	}

	if !configuration.NoDB {
		dbConn, err = decoder.ConnectToDatabase(configuration.DBDriver, configuration.User,
			configuration.Passwd, configuration.Host, configuration.DBName)
		if err != nil {
			message := fmt.Errorf("Error connection to database: %w", err)
			logger.Error(message.Error())
			return message
		}
		defer dbConn.Close()
	}

	registry := metrics.NewRegistry()
	manager := metrics.NewManager(metrics.WithPrometheusRegistry(registry))
	if configuration.MetricsAddr != "" {
		server := startMetricsServer(configuration.MetricsAddr, registry)
		defer server.Close()
	}

	jobs, err := buildJobs(inputs, configuration)
	if err != nil {
		logger.Error(err.Error())
		return err
	}

	failed := runWorkers(jobs, configuration.NumWorkers, manager)
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(jobs))
	}
	return nil
}

// applyFlags lets explicitly set flags override the configuration.
func applyFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("out") {
		configuration.FileOut = fileOut
	}
	if flags.Changed("run") {
		configuration.RunNumber = runNumber
	}
	if flags.Changed("workers") {
		configuration.NumWorkers = numWorkers
	}
	if flags.Changed("verbosity") {
		configuration.Verbosity = verbosity
	}
	if flags.Changed("no-db") {
		configuration.NoDB = noDB
	}
}
