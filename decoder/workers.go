package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	decoder "github.com/next-exp/tof_decoder/pkg"
	"github.com/next-exp/tof_decoder/pkg/h5"
	"github.com/next-exp/tof_decoder/pkg/metrics"
	"github.com/next-exp/tof_decoder/pkg/tof"
)

type WorkerResult struct {
	Job      Job
	Summary  decoder.RunSummary
	Err      error
	Duration time.Duration
}

func worker(id int, jobs <-chan Job, results chan<- WorkerResult, manager *metrics.Manager) {
	for job := range jobs {
		manager.WorkerStarted()
		if VerbosityLevel > 0 {
			message := fmt.Sprintf("Worker %d processing %s", id, job.Input)
			logger.Info(message, "worker")
		}
		start := time.Now()
		summary, err := processFile(job, manager)
		duration := time.Since(start)
		manager.RecordFile(err == nil, duration.Seconds())
		manager.WorkerDone()
		results <- WorkerResult{Job: job, Summary: summary, Err: err, Duration: duration}
	}
}

// runWorkers decodes every job with a pool of workers and returns the
// number of failed files.
func runWorkers(jobs []Job, nWorkers int, manager *metrics.Manager) int {
	jobsChan := make(chan Job, len(jobs))
	results := make(chan WorkerResult, len(jobs))

	for w := 0; w < min(nWorkers, len(jobs)); w++ {
		go worker(w, jobsChan, results, manager)
	}
	for _, job := range jobs {
		jobsChan <- job
	}
	close(jobsChan)

	failed := 0
	for range jobs {
		result := <-results
		if result.Err != nil {
			failed++
			message := fmt.Errorf("error decoding %s: %w", result.Job.Input, result.Err)
			logger.Error(message.Error())
			continue
		}
		message := fmt.Sprintf("%s -> %s: run %d, %d records, %d coincidences in %d ms",
			result.Job.Input, result.Job.Output, result.Summary.RunNumber, result.Summary.Records,
			result.Summary.Correlated, result.Duration.Milliseconds())
		logger.Info(message, "main")
	}
	return failed
}

// processFile runs one independent pipeline. On any error the HDF5 output
// is removed.
func processFile(job Job, monitor decoder.Monitor) (summary decoder.RunSummary, err error) {
	var writer *h5.Writer
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("decoder recovered from panic on %s: %v", job.Input, r)
			if writer != nil {
				err = errors.Join(err, writer.Abort())
			}
		}
	}()

	config := configuration
	config.FileIn = job.Input
	config.FileOut = job.Output
	config.RunNumber = job.RunNumber
	if dbConn != nil {
		if err := decoder.LoadDatabase(dbConn, &config); err != nil {
			return summary, err
		}
	}

	if VerbosityLevel > 0 {
		if count, err := countRecords(job.Input); err == nil {
			message := fmt.Sprintf("Number of records in %s: %d", job.Input, count)
			logger.Info(message, "main")
		}
	}

	file, err := decoder.OpenRawFile(job.Input)
	if err != nil {
		return summary, err
	}
	defer file.Close()

	writer, err = h5.NewWriter(job.Output, config.CompressionLevel, config.WriteData)
	if err != nil {
		return summary, err
	}
	memory := decoder.NewMemorySink()
	memory.KeepEvents = false

	pipeline, err := decoder.NewPipeline(config, decoder.MultiSink{writer, memory})
	if err != nil {
		return summary, errors.Join(err, writer.Abort())
	}
	pipeline.SetMonitor(monitor)

	summary, err = pipeline.Run(file)
	if err != nil {
		return summary, errors.Join(err, writer.Abort())
	}
	if err := writer.Commit(); err != nil {
		return summary, err
	}

	if config.SummaryOut != "" {
		if err := summary.Save(summaryPath(config.SummaryOut, job)); err != nil {
			return summary, err
		}
	}
	if config.PlotOut != "" {
		if err := savePlots(config.PlotOut, job, memory); err != nil {
			return summary, err
		}
	}
	return summary, nil
}

func summaryPath(summaryOut string, job Job) string {
	if isDir(summaryOut) {
		return filepath.Join(summaryOut, baseName(job.Input)+".yaml")
	}
	return summaryOut
}

func savePlots(dir string, job Job, memory *decoder.MemorySink) error {
	for _, name := range decoder.SortedKeys(memory.Histograms) {
		filename := filepath.Join(dir, fmt.Sprintf("%s_%s.png", baseName(job.Input), name))
		if err := tof.SavePlot(filename, memory.Histograms[name], memory.Corrected[name]); err != nil {
			return err
		}
	}
	return nil
}
