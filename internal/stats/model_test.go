package stats

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAggregateStat(t *testing.T) {
	tests := []struct {
		name        string
		count       int
		success     int
		elapsed     int64
		wantAverage float64
		wantPct     float64
	}{
		{
			name:        "all successful",
			count:       2,
			success:     2,
			elapsed:     300,
			wantAverage: 150,
			wantPct:     100,
		},
		{
			name:        "fractional average is kept",
			count:       3,
			success:     1,
			elapsed:     100,
			wantAverage: 100.0 / 3.0,
			wantPct:     100.0 / 3.0,
		},
		{
			name:        "no calls",
			count:       0,
			success:     0,
			elapsed:     0,
			wantAverage: 0,
			wantPct:     0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAggregateStat(tt.count, tt.success, tt.elapsed)
			assert.InDelta(t, tt.wantAverage, a.Average, 1e-9)
			assert.InDelta(t, tt.wantPct, a.SuccessPct, 1e-9)
			assert.Equal(t, tt.count, a.NumCalls)
		})
	}
}

func TestAggregateStat_SuccessRate(t *testing.T) {
	assert.Equal(t, 0.5, AggregateStat{Count: 4, Success: 2}.SuccessRate())
	assert.Equal(t, 0.0, AggregateStat{}.SuccessRate())
}

func TestAggregateStat_Valid(t *testing.T) {
	assert.NoError(t, NewAggregateStat(1, 1, 10).Valid())
	assert.Error(t, AggregateStat{Count: 0}.Valid())
	assert.Error(t, AggregateStat{Count: 1, Success: 2}.Valid())
	assert.Error(t, AggregateStat{Count: 1, Success: -1}.Valid())
	assert.Error(t, AggregateStat{Count: 1, Elapsed: -5}.Valid())
}

func TestRunStatistics_APICalls(t *testing.T) {
	r := RunStatistics{
		"POST /consumers": {},
		"GET /status":     {},
		"DELETE /pools":   {},
	}
	assert.Equal(t, []string{"DELETE /pools", "GET /status", "POST /consumers"}, r.APICalls())
}

func TestRunStatistics_Validate(t *testing.T) {
	tests := []struct {
		name    string
		run     RunStatistics
		wantErr string
	}{
		{
			name: "valid",
			run:  RunStatistics{"GET /status": NewAggregateStat(10, 9, 1000)},
		},
		{
			name: "entry without samples",
			run:  RunStatistics{"GET /status": {}},
		},
		{
			name:    "more successes than calls",
			run:     RunStatistics{"GET /x": {Count: 1, Success: 5, Average: 100}},
			wantErr: `api call "GET /x": success must be within [0, 1] (got: 5)`,
		},
		{
			name:    "successes without calls",
			run:     RunStatistics{"GET /x": {Success: 3}},
			wantErr: `api call "GET /x": count must be at least 1 (got: 0)`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.EqualError(t, err, tt.wantErr)
		})
	}
}

func TestRunStatistics_Normalized(t *testing.T) {
	r := RunStatistics{
		"counters only":   {Count: 10, Success: 9, Elapsed: 2000},
		"no elapsed":      {Count: 10, Success: 10, Average: 100},
		"percentage only": {Average: 50, SuccessPct: 80},
	}

	got := r.Normalized()
	assert.Equal(t, AggregateStat{Average: 200, Count: 10, Elapsed: 2000, NumCalls: 10, Success: 9, SuccessPct: 90}, got["counters only"])
	assert.Equal(t, AggregateStat{Average: 100, Count: 10, NumCalls: 10, Success: 10, SuccessPct: 100}, got["no elapsed"])
	assert.Equal(t, AggregateStat{Average: 50, SuccessPct: 80}, got["percentage only"])
	assert.Equal(t, 0.0, r["counters only"].SuccessPct)
}

func TestBaselinesFrom(t *testing.T) {
	r := RunStatistics{"GET /status": NewAggregateStat(2, 1, 300)}
	b := BaselinesFrom(r)
	assert.Equal(t, BaselineSpec{Average: 150, SuccessPct: 50}, b["GET /status"])
}

func TestEncode_SortedKeys(t *testing.T) {
	var buf bytes.Buffer
	err := Encode(&buf, Tolerances{
		"b": {RequiredSuccess: 95, AllowedDeviance: 15},
		"a": {RequiredSuccess: 90, AllowedDeviance: 10},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Less(t, strings.Index(out, `"a"`), strings.Index(out, `"b"`))
	assert.Contains(t, out, `"required_success": 90`)
	assert.Contains(t, out, `"allowed_deviance": 15`)
}

func TestDecode_ParserOutputAsBaseline(t *testing.T) {
	in := `{"GET /status": {"count": 2, "success": 2, "elapsed": 300, "average": 150, "success_%": 100, "num_calls": 2}}`

	var baselines Baselines
	require.NoError(t, Decode(strings.NewReader(in), &baselines))
	assert.Equal(t, BaselineSpec{Average: 150, SuccessPct: 100}, baselines["GET /status"])

	var run RunStatistics
	require.NoError(t, Decode(strings.NewReader(in), &run))
	assert.Equal(t, NewAggregateStat(2, 2, 300), run["GET /status"])
}

func TestDecode_Invalid(t *testing.T) {
	var run RunStatistics
	err := Decode(strings.NewReader("{not json"), &run)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "decode statistics")
}

func TestWriteFile_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.json")

	want := RunStatistics{
		"GET /status":     NewAggregateStat(2, 2, 300),
		"POST /consumers": NewAggregateStat(3, 2, 1000),
	}
	require.NoError(t, WriteFile(path, want))

	var got RunStatistics
	require.NoError(t, ReadFile(path, &got))
	assert.Equal(t, want, got)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file must not be left behind")
}

func TestWriteFile_OverwritesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, os.WriteFile(path, []byte("old content that is longer than the new one"), 0o644))

	require.NoError(t, WriteFile(path, Baselines{"x": {Average: 1}}))

	var got Baselines
	require.NoError(t, ReadFile(path, &got))
	assert.Equal(t, Baselines{"x": {Average: 1}}, got)
}

func TestWriteFile_MissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "out.json")
	err := WriteFile(path, Baselines{})
	assert.Error(t, err)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestWriteOutput_Stdout(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteOutput("", &buf, []byte("hello\n")))
	assert.Equal(t, "hello\n", buf.String())
}
