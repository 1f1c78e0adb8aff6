// Package ndjson implements the `--sink ndjson:<path>` output: one JSON
// object per line, buffered in 64 KiB chunks, discriminated by a `kind`
// field into "block", "conflict", and "contention" rows.
//
// Files go through the afero abstraction rather than the bare os package,
// so tests can swap in afero.NewMemMapFs() instead of touching a real
// filesystem.
package ndjson

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/afero"

	"github.com/argus-xyz/argus/core/report"
	"github.com/argus-xyz/argus/internal/errs"
)

const bufferSize = 64 * 1024

// row kinds written to the `kind` discriminator field.
const (
	kindSummary    = "block"
	kindConflict   = "conflict"
	kindContention = "contention"
)

// Sink writes a Report as newline-delimited JSON to one file on fs.
type Sink struct {
	fs   afero.Fs
	path string
}

func New(fs afero.Fs, path string) *Sink {
	return &Sink{fs: fs, path: path}
}

// Write serializes the full report in Summary, Conflicts, Contentions
// order, each row tagged with its kind, and syncs the file before
// returning so a crash immediately after Write leaves a complete file.
func (s *Sink) Write(r report.Report) error {
	f, err := s.fs.OpenFile(s.path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return sinkErr(r.Summary.Block, fmt.Errorf("ndjson: open %s: %w", s.path, err))
	}
	defer f.Close()

	w := bufio.NewWriterSize(f, bufferSize)
	enc := json.NewEncoder(w)

	if err := enc.Encode(summaryRow{Kind: kindSummary, BlockSummary: r.Summary}); err != nil {
		return sinkErr(r.Summary.Block, err)
	}
	for _, c := range r.Conflicts {
		if err := enc.Encode(conflictRow{Kind: kindConflict, ConflictRow: c}); err != nil {
			return sinkErr(r.Summary.Block, err)
		}
	}
	for _, c := range r.Contentions {
		if err := enc.Encode(contentionRow{Kind: kindContention, ContentionRow: c}); err != nil {
			return sinkErr(r.Summary.Block, err)
		}
	}

	if err := w.Flush(); err != nil {
		return sinkErr(r.Summary.Block, fmt.Errorf("ndjson: flush %s: %w", s.path, err))
	}
	if syncer, ok := f.(interface{ Sync() error }); ok {
		if err := syncer.Sync(); err != nil {
			return sinkErr(r.Summary.Block, fmt.Errorf("ndjson: sync %s: %w", s.path, err))
		}
	}
	return nil
}

type summaryRow struct {
	Kind string `json:"kind"`
	report.BlockSummary
}

type conflictRow struct {
	Kind string `json:"kind"`
	report.ConflictRow
}

type contentionRow struct {
	Kind string `json:"kind"`
	report.ContentionRow
}

func sinkErr(block uint64, err error) error {
	return errs.New(errs.KindSink, block, err)
}
