// Command batchrun runs the batch predictor over sequences read from a CSV
// file (one sequence per line) on the CPU and on the accelerator and
// reports whether the two agree.
package main

import (
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"OFISignal/internal/domain/models"
	"OFISignal/internal/services/accel"
	"OFISignal/internal/services/predictor"
	"OFISignal/pkg/logger"
)

func main() {
	path := flag.String("input", "", "CSV file, one sequence per line (- for stdin)")
	alpha := flag.Float64("alpha", 0.15, "smoothing factor")
	threshold := flag.Float64("threshold", 40, "decision threshold")
	backend := flag.String("backend", "pool", "accelerator backend (pool, none)")
	workers := flag.Int("workers", 0, "accelerator workers (0 = one per CPU)")
	flag.Parse()

	lgr := logger.NewWithWriter(os.Stderr, "info").With("batchrun")
	if err := run(*path, *alpha, *threshold, *backend, *workers, lgr, os.Stdout); err != nil {
		lgr.Error("batch run failed", logger.Error(err))
		os.Exit(1)
	}
}

func run(path string, alpha, threshold float64, backend string, workers int, lgr *logger.Logger, out io.Writer) error {
	in, closeIn, err := openInput(path)
	if err != nil {
		return err
	}
	defer closeIn()

	data, numSequences, seqLen, err := readSequences(in)
	if err != nil {
		return err
	}

	prov, err := accel.NewProvider(backend, workers, 0)
	if err != nil {
		return err
	}
	pred, err := predictor.New(alpha, threshold, predictor.WithLogger(lgr), predictor.WithProvider(prov))
	if err != nil {
		return err
	}
	defer pred.Close()

	cpu, _, err := pred.RunBatch(data, numSequences, seqLen)
	if err != nil {
		return fmt.Errorf("cpu batch: %w", err)
	}

	pred.SetMode(models.ModeAccelerated)
	acc, accPath, err := pred.RunBatch(data, numSequences, seqLen)
	if err != nil {
		return fmt.Errorf("accelerated batch: %w", err)
	}

	mismatch := firstMismatch(cpu, acc)
	fmt.Fprintf(out, "sequences=%d seq_len=%d accelerated_path=%s\n", numSequences, seqLen, accPath)
	fmt.Fprintf(out, "cpu %s\n", countActions(cpu))
	fmt.Fprintf(out, "acc %s\n", countActions(acc))
	if mismatch >= 0 {
		fmt.Fprintf(out, "MISMATCH at index %d (sequence %d): cpu=%s acc=%s\n",
			mismatch, mismatch/seqLen, cpu[mismatch], acc[mismatch])
		return errors.New("cpu and accelerated outputs differ")
	}
	fmt.Fprintln(out, "MATCH")
	return nil
}

func openInput(path string) (io.Reader, func(), error) {
	if path == "" || path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

// readSequences flattens CSV rows into row-major data. Every row must have
// the same number of values.
func readSequences(r io.Reader) ([]float64, int, int, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.TrimLeadingSpace = true

	var (
		data   []float64
		rows   int
		seqLen int
	)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, 0, fmt.Errorf("read csv: %w", err)
		}
		if rows == 0 {
			seqLen = len(rec)
		}
		for i, field := range rec {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, 0, 0, fmt.Errorf("line %d value %d: %w", rows+1, i+1, err)
			}
			data = append(data, v)
		}
		rows++
	}
	if rows == 0 {
		return nil, 0, 0, errors.New("no sequences in input")
	}
	return data, rows, seqLen, nil
}

func firstMismatch(a, b []models.Action) int {
	if len(a) != len(b) {
		return min(len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			return i
		}
	}
	return -1
}

func countActions(actions []models.Action) string {
	var buy, sell, hold int
	for _, a := range actions {
		switch a {
		case models.ActionBuy:
			buy++
		case models.ActionSell:
			sell++
		default:
			hold++
		}
	}
	return fmt.Sprintf("buy=%d sell=%d hold=%d", buy, sell, hold)
}
