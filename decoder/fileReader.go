package main

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	decoder "github.com/next-exp/tof_decoder/pkg"
)

type Job struct {
	ID        int
	Input     string
	Output    string
	RunNumber int
}

var runPattern = regexp.MustCompile(`(?i)run_?(\d+)`)

// runNumberFromFilename extracts the run number of names like
// run_01234.dat or RUN1234_part2.zst.
func runNumberFromFilename(filename string) (int, bool) {
	match := runPattern.FindStringSubmatch(filepath.Base(filename))
	if match == nil {
		return 0, false
	}
	n, err := strconv.Atoi(match[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

func baseName(filename string) string {
	base := filepath.Base(filename)
	base = strings.TrimSuffix(base, ".zst")
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// outputFor returns the HDF5 file for input. A single input writes to
// file_out itself, several inputs write next to each other in the file_out
// directory (or next to their input when file_out is empty).
func outputFor(input string, fileOut string, nInputs int) string {
	name := baseName(input) + ".h5"
	switch {
	case fileOut == "":
		return filepath.Join(filepath.Dir(input), name)
	case nInputs == 1 && !isDir(fileOut):
		return fileOut
	default:
		return filepath.Join(fileOut, name)
	}
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func buildJobs(inputs []string, config decoder.Configuration) ([]Job, error) {
	jobs := make([]Job, 0, len(inputs))
	for i, input := range inputs {
		run := config.RunNumber
		// several files are several runs, the configured number only names one
		if n, ok := runNumberFromFilename(input); ok && (run == 0 || len(inputs) > 1) {
			run = n
		}
		jobs = append(jobs, Job{
			ID:        i,
			Input:     input,
			Output:    outputFor(input, config.FileOut, len(inputs)),
			RunNumber: run,
		})
	}

	seen := make(map[string]string)
	for _, job := range jobs {
		if previous, ok := seen[job.Output]; ok {
			return nil, fmt.Errorf("inputs %s and %s would both write %s", previous, job.Input, job.Output)
		}
		seen[job.Output] = job.Input
	}
	return jobs, nil
}

// countRecords walks the record headers of a file for progress reporting.
func countRecords(filename string) (int, error) {
	file, err := decoder.OpenRawFile(filename)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	count, err := decoder.CountRecords(file)
	if err != nil {
		return count, fmt.Errorf("error counting records of %s: %w", filename, err)
	}
	if VerbosityLevel > 1 {
		message := fmt.Sprintf("%s: %d records", filename, count)
		logger.Info(message, "recordCounter")
	}
	return count, nil
}
