// Package jtl turns JMeter result logs (JTL, CSV flavour) into per API call
// aggregate statistics.
package jtl

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/nicolastakashi/jtl-analytics/internal/stats"
)

// Columns holds the zero-based positions of the fields the parser reads.
type Columns struct {
	Elapsed int `yaml:"elapsed,omitempty"`
	Label   int `yaml:"label,omitempty"`
	Success int `yaml:"success,omitempty"`
}

// DefaultColumns matches the JMeter CSV layout:
// timeStamp,elapsed,label,responseCode,responseMessage,threadName,dataType,success,...
var DefaultColumns = Columns{Elapsed: 1, Label: 2, Success: 7}

func (c Columns) width() int {
	return max(c.Elapsed, c.Label, c.Success) + 1
}

func (c Columns) Validate() error {
	if c.Elapsed < 0 || c.Label < 0 || c.Success < 0 {
		return fmt.Errorf("column indexes must not be negative (got: %+v)", c)
	}
	if c.Elapsed == c.Label || c.Elapsed == c.Success || c.Label == c.Success {
		return fmt.Errorf("column indexes must be distinct (got: %+v)", c)
	}
	return nil
}

var ErrMalformedRow = errors.New("malformed row")

// MalformedRowError reports the first row that could not be parsed. A
// malformed row fails the whole parse: statistics over partial data are
// meaningless.
type MalformedRowError struct {
	Line   int
	Reason string
	Err    error
}

func (e *MalformedRowError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed row at line %d: %s: %v", e.Line, e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed row at line %d: %s", e.Line, e.Reason)
}

func (e *MalformedRowError) Unwrap() error {
	return e.Err
}

func (e *MalformedRowError) Is(target error) bool {
	return target == ErrMalformedRow
}

type Option func(*parser)

func WithColumns(c Columns) Option {
	return func(p *parser) {
		p.columns = c
	}
}

// WithSampleFunc registers a callback invoked for every parsed sample, in file order.
func WithSampleFunc(fn func(stats.Sample)) Option {
	return func(p *parser) {
		p.onSample = fn
	}
}

type parser struct {
	columns  Columns
	onSample func(stats.Sample)
}

type accumulator struct {
	count   int
	success int
	elapsed int64
}

// Parse reads every row of r after the header and groups them by label.
func Parse(r io.Reader, opts ...Option) (stats.RunStatistics, error) {
	p := &parser{columns: DefaultColumns}
	for _, opt := range opts {
		opt(p)
	}
	if err := p.columns.Validate(); err != nil {
		return nil, fmt.Errorf("invalid columns: %w", err)
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	if _, err := reader.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return stats.RunStatistics{}, nil
		}
		return nil, &MalformedRowError{Line: 1, Reason: "unreadable header", Err: err}
	}

	acc := make(map[string]*accumulator)
	width := p.columns.width()

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &MalformedRowError{Line: lineOf(err), Reason: "invalid csv", Err: err}
		}
		line, _ := reader.FieldPos(0)

		if len(record) < width {
			return nil, &MalformedRowError{
				Line:   line,
				Reason: fmt.Sprintf("expected at least %d fields, got %d", width, len(record)),
			}
		}

		elapsed, err := strconv.ParseInt(record[p.columns.Elapsed], 10, 64)
		if err != nil {
			return nil, &MalformedRowError{Line: line, Reason: "elapsed time is not an integer", Err: err}
		}
		if elapsed < 0 {
			return nil, &MalformedRowError{Line: line, Reason: fmt.Sprintf("negative elapsed time %d", elapsed)}
		}

		sample := stats.Sample{
			APICall: record[p.columns.Label],
			Elapsed: elapsed,
			Success: record[p.columns.Success] == "true",
		}

		a, ok := acc[sample.APICall]
		if !ok {
			a = &accumulator{}
			acc[sample.APICall] = a
		}
		a.count++
		a.elapsed += sample.Elapsed
		if sample.Success {
			a.success++
		}

		if p.onSample != nil {
			p.onSample(sample)
		}
	}

	out := make(stats.RunStatistics, len(acc))
	for label, a := range acc {
		out[label] = stats.NewAggregateStat(a.count, a.success, a.elapsed)
	}
	return out, nil
}

// ParseFile opens path and parses it.
func ParseFile(path string, opts ...Option) (stats.RunStatistics, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open results file: %w", err)
	}
	defer f.Close()

	res, err := Parse(f, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return res, nil
}

func lineOf(err error) int {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return pe.Line
	}
	return 0
}
