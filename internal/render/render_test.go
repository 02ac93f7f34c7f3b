package render

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nicolastakashi/jtl-analytics/internal/compare"
	"github.com/nicolastakashi/jtl-analytics/internal/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRun() stats.RunStatistics {
	return stats.RunStatistics{
		"POST /consumers": stats.NewAggregateStat(1, 1, 50),
		"GET /status":     stats.NewAggregateStat(3, 2, 400),
	}
}

func TestTable(t *testing.T) {
	tests := []struct {
		name     string
		baseline stats.Baselines
		want     string
	}{
		{
			name: "without baseline",
			want: "success %, average time elapsed, API\n" +
				"66.66666666666667%, 133.33333333333334ms, GET /status\n" +
				"100%, 50ms, POST /consumers\n",
		},
		{
			name:     "with baseline",
			baseline: stats.Baselines{"GET /status": {Average: 120, SuccessPct: 95.5}},
			want: "success % (baseline %), average time elapsed (baseline), API\n" +
				"66.66666666666667% (95.5%), 133.33333333333334ms (120ms), GET /status\n" +
				"100% (??%), 50ms (??ms), POST /consumers\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Table(&buf, sampleRun(), tt.baseline, Options{}))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestTable_ColoredHeader(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Table(&buf, stats.RunStatistics{}, nil, Options{Color: true}))
	assert.Equal(t, "\033[1msuccess %, average time elapsed, API\033[0m\n", buf.String())
}

func testReport(t *testing.T) compare.Report {
	t.Helper()
	report, err := compare.Compare(
		stats.RunStatistics{
			"a": {Count: 1, Success: 1, Average: 100, SuccessPct: 100},
			"b": {Count: 2, Success: 1, Average: 200, SuccessPct: 50},
		},
		stats.Baselines{"a": {Average: 100}, "b": {Average: 100}},
		stats.Tolerances{
			"a": {RequiredSuccess: 90, AllowedDeviance: 10},
			"b": {RequiredSuccess: 90, AllowedDeviance: 10},
		},
	)
	require.NoError(t, err)
	return report
}

func TestReport_Plain(t *testing.T) {
	report := testReport(t)

	var buf bytes.Buffer
	require.NoError(t, Report(&buf, report, Options{}))

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, report.Verdicts[0].OKMessage(), lines[0])
	assert.Equal(t, report.Verdicts[1].SuccessMessage(), lines[1])
	assert.Equal(t, report.Verdicts[1].TimingMessage(), lines[2])
	assert.Equal(t, "failures: 2", lines[3])
	assert.NotContains(t, buf.String(), "\033[")
}

func TestReport_Colored(t *testing.T) {
	report := testReport(t)

	var buf bytes.Buffer
	require.NoError(t, Report(&buf, report, Options{Color: true}))

	out := buf.String()
	assert.Contains(t, out, green+bold+report.Verdicts[0].OKMessage()+reset)
	assert.Contains(t, out, magenta+report.Verdicts[1].SuccessMessage()+reset)
	assert.Contains(t, out, red+report.Verdicts[1].TimingMessage()+reset)
	assert.True(t, strings.HasSuffix(out, "failures: 2\n"))
}

func TestDetectColor(t *testing.T) {
	assert.False(t, DetectColor(&bytes.Buffer{}, false))
	assert.False(t, DetectColor(os.Stdout, true))

	f, err := os.Create(filepath.Join(t.TempDir(), "out"))
	require.NoError(t, err)
	defer f.Close()
	assert.False(t, DetectColor(f, false))
}

func TestJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, JSON(&buf, stats.Tolerances{
		"b": {RequiredSuccess: 95, AllowedDeviance: 15},
		"a": {RequiredSuccess: 90.5, AllowedDeviance: 5},
	}))
	want := `{
  "a": {
    "allowed_deviance": 5,
    "required_success": 90.5
  },
  "b": {
    "allowed_deviance": 15,
    "required_success": 95
  }
}
`
	assert.Equal(t, want, buf.String())
}
