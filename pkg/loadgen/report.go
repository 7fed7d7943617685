package loadgen

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
)

// DefaultResultsPath is where stress results are appended.
const DefaultResultsPath = "final_results.csv"

var reportHeader = []string{
	"no", "operation", "volume", "client_pool_size", "server_pool_size",
	"avg_client_time", "avg_throughput",
	"client_success", "client_fail", "server_success", "server_fail",
}

// AppendResults appends results to the CSV report at path, writing the header
// when the file is new or empty. Row numbers continue from the last row
// already in the file. It returns the first and last row numbers written.
func AppendResults(path string, results []Result) (first, last int, err error) {
	if len(results) == 0 {
		return 0, 0, nil
	}

	next, exists, err := nextRowNumber(path)
	if err != nil {
		return 0, 0, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to open report: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if !exists {
		if err := w.Write(reportHeader); err != nil {
			return 0, 0, fmt.Errorf("failed to write report header: %w", err)
		}
	}

	for i, r := range results {
		if err := w.Write(r.record(next + i)); err != nil {
			return 0, 0, fmt.Errorf("failed to write report row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return 0, 0, fmt.Errorf("failed to flush report: %w", err)
	}

	return next, next + len(results) - 1, nil
}

// nextRowNumber reads the report at path and returns the number following its
// last row. A row number that does not parse restarts numbering at 1.
func nextRowNumber(path string) (next int, exists bool, err error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return 1, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to open report: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var lastRecord []string
	rows := 0
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, false, fmt.Errorf("failed to read report: %w", err)
		}
		lastRecord = record
		rows++
	}

	if rows == 0 {
		return 1, false, nil
	}
	if rows == 1 {
		return 1, true, nil
	}

	n, err := strconv.Atoi(lastRecord[0])
	if err != nil {
		return 1, true, nil
	}
	return n + 1, true, nil
}

func (r Result) record(no int) []string {
	return []string{
		strconv.Itoa(no),
		r.Operation,
		r.Volume,
		strconv.Itoa(r.Clients),
		strconv.Itoa(r.ServerPoolSize),
		strconv.FormatFloat(r.AvgClientTime.Seconds(), 'f', 2, 64),
		strconv.FormatFloat(r.AvgThroughput, 'f', 2, 64),
		strconv.Itoa(r.ClientSuccess),
		strconv.Itoa(r.ClientFail),
		strconv.Itoa(r.ServerSuccess),
		strconv.Itoa(r.ServerFail),
	}
}
