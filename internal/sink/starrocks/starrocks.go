// Package starrocks implements the `--sink starrocks:<config>` OLAP
// bulk-load path: one HTTP PUT per row set, using StarRocks' Stream Load
// protocol, retried on 5xx responses.
//
// The Stream Load "label" header is derived from (block, table), so
// retrying (or re-running `analyze` for a block already loaded) is a
// safe no-op rather than a duplicate row.
package starrocks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/argus-xyz/argus/core/report"
	"github.com/argus-xyz/argus/internal/errs"
)

// defaultSummaryTable, defaultConflictTable, and defaultContentionTable
// name the three Stream Load targets a bare `--sink starrocks:url=...`
// writes to when the config string doesn't override them.
const (
	defaultSummaryTable    = "argus_block_summary"
	defaultConflictTable   = "argus_conflicts"
	defaultContentionTable = "argus_contentions"
)

// Config addresses one StarRocks FE/BE Stream Load endpoint and the
// three tables a Report's rows land in.
type Config struct {
	LoadURL         string // e.g. http://load01.example.internal:8040
	Database        string
	SummaryTable    string
	ConflictTable   string
	ContentionTable string
	Username        string
	Password        string
	MaxRetries      int
	RetryWaitMin    time.Duration
	RetryWaitMax    time.Duration
}

// Sink bulk-loads a Report's three row sets into their StarRocks tables.
type Sink struct {
	cfg    Config
	client *retryablehttp.Client
}

func New(cfg Config) *Sink {
	client := retryablehttp.NewClient()
	client.RetryMax = cfg.MaxRetries
	if client.RetryMax <= 0 {
		client.RetryMax = 5
	}
	if cfg.RetryWaitMin > 0 {
		client.RetryWaitMin = cfg.RetryWaitMin
	}
	if cfg.RetryWaitMax > 0 {
		client.RetryWaitMax = cfg.RetryWaitMax
	}
	// StarRocks' own Stream Load protocol logs failures at a level the
	// default retryablehttp logger would repeat for every attempt;
	// silence it, the sink reports its own error with context.
	client.Logger = nil
	return &Sink{cfg: cfg, client: client}
}

// Write loads the summary, conflict, and contention rows as three
// separate Stream Load requests, each idempotent under its own label.
func (s *Sink) Write(ctx context.Context, r report.Report) error {
	block := r.Summary.Block

	if err := s.loadRows(ctx, block, s.cfg.SummaryTable, []report.BlockSummary{r.Summary}); err != nil {
		return err
	}
	if len(r.Conflicts) > 0 {
		if err := s.loadRows(ctx, block, s.cfg.ConflictTable, r.Conflicts); err != nil {
			return err
		}
	}
	if len(r.Contentions) > 0 {
		if err := s.loadRows(ctx, block, s.cfg.ContentionTable, r.Contentions); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sink) loadRows(ctx context.Context, block uint64, table string, rows any) error {
	body, err := encodeNDJSON(rows)
	if err != nil {
		return sinkErr(block, fmt.Errorf("starrocks: encode %s rows: %w", table, err))
	}

	url := fmt.Sprintf("%s/api/%s/%s/_stream_load", s.cfg.LoadURL, s.cfg.Database, table)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return sinkErr(block, fmt.Errorf("starrocks: build request for %s: %w", table, err))
	}

	req.SetBasicAuth(s.cfg.Username, s.cfg.Password)
	req.Header.Set("Expect", "100-continue")
	req.Header.Set("format", "json")
	req.Header.Set("strip_outer_array", "false")
	req.Header.Set("label", idempotencyLabel(block, table))

	resp, err := s.client.Do(req)
	if err != nil {
		return sinkErr(block, fmt.Errorf("starrocks: stream load %s: %w", table, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return sinkErr(block, fmt.Errorf("starrocks: stream load %s returned %s", table, resp.Status))
	}
	return nil
}

// idempotencyLabel derives a Stream Load label from (block, table):
// re-running `analyze` for a block already loaded retries the exact same
// label, which StarRocks treats as a no-op rather than a duplicate.
func idempotencyLabel(block uint64, table string) string {
	return fmt.Sprintf("argus_%s_block_%d", table, block)
}

func encodeNDJSON(rows any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	switch v := rows.(type) {
	case []report.BlockSummary:
		for _, row := range v {
			if err := enc.Encode(row); err != nil {
				return nil, err
			}
		}
	case []report.ConflictRow:
		for _, row := range v {
			if err := enc.Encode(row); err != nil {
				return nil, err
			}
		}
	case []report.ContentionRow:
		for _, row := range v {
			if err := enc.Encode(row); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("starrocks: unsupported row type %T", rows)
	}
	return buf.Bytes(), nil
}

func sinkErr(block uint64, err error) error {
	return errs.New(errs.KindSink, block, err)
}

// ParseConfig parses the `--sink starrocks:<config>` payload into a
// Config. The payload is a comma-separated key=value list; url, db, and
// either both of user/pass or neither are expected, e.g.:
//
//	url=http://load01.example.internal:8040,db=argus,user=root,pass=secret
//
// Table names default to argus_block_summary/argus_conflicts/
// argus_contentions and can be overridden with summary_table=,
// conflict_table=, contention_table=.
func ParseConfig(raw string) (Config, error) {
	cfg := Config{
		SummaryTable:    defaultSummaryTable,
		ConflictTable:   defaultConflictTable,
		ContentionTable: defaultContentionTable,
	}

	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			return Config{}, sinkErr(0, fmt.Errorf("starrocks: malformed config entry %q, want key=value", part))
		}
		switch key {
		case "url":
			cfg.LoadURL = value
		case "db":
			cfg.Database = value
		case "user":
			cfg.Username = value
		case "pass":
			cfg.Password = value
		case "summary_table":
			cfg.SummaryTable = value
		case "conflict_table":
			cfg.ConflictTable = value
		case "contention_table":
			cfg.ContentionTable = value
		default:
			return Config{}, sinkErr(0, fmt.Errorf("starrocks: unrecognized config key %q", key))
		}
	}

	if cfg.LoadURL == "" {
		return Config{}, sinkErr(0, fmt.Errorf("starrocks: config requires url=<load-endpoint>"))
	}
	if cfg.Database == "" {
		return Config{}, sinkErr(0, fmt.Errorf("starrocks: config requires db=<database>"))
	}

	return cfg, nil
}
