package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	decoder "github.com/next-exp/tof_decoder/pkg"
	"github.com/next-exp/tof_decoder/pkg/h5"
	"github.com/next-exp/tof_decoder/pkg/logging"
	"github.com/next-exp/tof_decoder/pkg/tof"
	"github.com/spf13/cobra"
)

var configuration decoder.Configuration

var (
	logger         logging.Logger
	VerbosityLevel int
)

var (
	configFilename string
	fileOut        string
	histograms     []string
	deadTimeNs     float64
	transitionNs   float64
	plotOut        string
	summaryOut     string
)

func init() {
	logger = logging.NewStd()

	rootCmd.Flags().StringVarP(&configFilename, "config", "c", "", "Configuration file path")
	rootCmd.Flags().StringVarP(&fileOut, "out", "o", "", "Output HDF5 file with the merged and corrected histograms")
	rootCmd.Flags().StringSliceVarP(&histograms, "histogram", "H", nil, "Histograms to correct (default: all)")
	rootCmd.Flags().Float64Var(&deadTimeNs, "dead-time", 0, "Fully dead time after an event in ns")
	rootCmd.Flags().Float64Var(&transitionNs, "transition-time", 0, "Recovery time after the dead time in ns")
	rootCmd.Flags().StringVar(&plotOut, "plots", "", "Directory for raw vs corrected plots")
	rootCmd.Flags().StringVar(&summaryOut, "summary", "", "YAML file for the merged run summary")
	_ = rootCmd.MarkFlagRequired("out")
}

var rootCmd = &cobra.Command{
	Use:   "deadtime [flags] <decoded.h5>...",
	Short: "Merge decoded runs and correct their histograms for dead time",
	Long: "Adds up the time of flight histograms of several decoded runs, estimates the\n" +
		"dead time fraction of every bin from the summed rate per macropulse and writes\n" +
		"the corrected histograms.",
	Args:         cobra.MinimumNArgs(1),
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
	if cmd.Flags().Changed("dead-time") {
		configuration.DeadTimeNs = deadTimeNs
	}
	if cmd.Flags().Changed("transition-time") {
		configuration.TransitionTimeNs = transitionNs
	}
	if cmd.Flags().Changed("plots") {
		configuration.PlotOut = plotOut
	}
	if cmd.Flags().Changed("summary") {
		configuration.SummaryOut = summaryOut
	}
	if err := configuration.Validate(); err != nil {
		logger.Error(err.Error())
		return err
	}
	decoder.SetConfiguration(configuration)
	decoder.SetLogger(logger)
	VerbosityLevel = configuration.Verbosity

	merged, summary, err := mergeRuns(args, histograms)
	if err != nil {
		logger.Error(err.Error())
		return err
	}
	if VerbosityLevel > 0 {
		message := fmt.Sprintf("Merged %d files: %d histograms, %d macropulses", len(args), len(merged), summary.Macropulses)
		logger.Info(message, "main")
	}

	if err := correctAndWrite(fileOut, merged, &summary); err != nil {
		logger.Error(err.Error())
		return err
	}

	if configuration.SummaryOut != "" {
		if err := summary.Save(configuration.SummaryOut); err != nil {
			logger.Error(err.Error())
			return err
		}
	}
	return nil
}

// mergeRuns adds up the histograms and run counters of every input.
func mergeRuns(inputs []string, names []string) (map[string]*tof.Histogram, decoder.RunSummary, error) {
	merged := make(map[string]*tof.Histogram)
	summary := decoder.NewRunSummary(0, fileOut)

	for _, input := range inputs {
		reader, err := h5.OpenReader(input)
		if err != nil {
			return nil, summary, err
		}
		err = mergeFile(reader, names, merged, &summary)
		err = errors.Join(err, reader.Close())
		if err != nil {
			return nil, summary, fmt.Errorf("error merging %s: %w", input, err)
		}
	}
	return merged, summary, nil
}

func mergeFile(reader *h5.Reader, names []string, merged map[string]*tof.Histogram, summary *decoder.RunSummary) error {
	info, err := reader.ReadRunInfo()
	if err != nil {
		return err
	}
	if summary.RunNumber == 0 {
		summary.RunNumber = info.RunNumber
	}
	summary.Records += info.Records
	summary.Compressed += info.Compressed
	summary.Waveforms += info.Waveforms
	summary.Correlated += info.Correlated
	summary.Singles += info.Singles
	summary.Unreferenced += info.Unreferenced
	summary.Monitor += info.Monitor
	summary.Macropulses += info.Macropulses
	for ch, n := range info.Rollovers {
		summary.Rollovers[ch] += n
	}

	for _, name := range reader.HistogramNames() {
		if len(names) > 0 && !slices.Contains(names, name) {
			continue
		}
		h, err := reader.ReadHistogram(name)
		if err != nil {
			return err
		}
		if existing, ok := merged[name]; ok {
			if err := existing.Merge(h); err != nil {
				return err
			}
			continue
		}
		merged[name] = h
	}
	if VerbosityLevel > 1 {
		message := fmt.Sprintf("%s: run %d, %d macropulses", reader.Filename, info.RunNumber, info.Macropulses)
		logger.Info(message, "merge")
	}
	return nil
}

func correctAndWrite(filename string, merged map[string]*tof.Histogram, summary *decoder.RunSummary) error {
	writer, err := h5.NewWriter(filename, configuration.CompressionLevel, false)
	if err != nil {
		return err
	}
	if err := writeCorrected(writer, merged, summary); err != nil {
		return errors.Join(err, writer.Abort())
	}
	return writer.Commit()
}

func writeCorrected(writer *h5.Writer, merged map[string]*tof.Histogram, summary *decoder.RunSummary) error {
	for _, name := range decoder.SortedKeys(merged) {
		h := merged[name]
		if err := writer.WriteHistogram(name, h); err != nil {
			return err
		}

		profile, err := tof.Estimate(h, summary.Macropulses, configuration.DeadTimeNs, configuration.TransitionTimeNs)
		if err != nil {
			return err
		}
		corrected, err := tof.CorrectDeadtime(h, profile.Fractions)
		if err != nil {
			return fmt.Errorf("error correcting %s: %w", name, err)
		}
		summary.MaxDeadtime[name] = profile.MaxFraction()

		if err := writer.WriteDeadtime(profile); err != nil {
			return err
		}
		if err := writer.WriteCorrected(name, corrected); err != nil {
			return err
		}
		if VerbosityLevel > 0 {
			message := fmt.Sprintf("%s: %.0f counts, %.0f corrected, max dead time %.2f%%",
				name, h.Total(), corrected.Total(), 100*profile.MaxFraction())
			logger.Info(message, "deadtime")
		}
		if configuration.PlotOut != "" {
			plotFile := filepath.Join(configuration.PlotOut, name+".png")
			if err := tof.SavePlot(plotFile, h, corrected); err != nil {
				return err
			}
		}
	}
	return writer.WriteRunInfo(*summary)
}
