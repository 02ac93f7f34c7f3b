package report

import (
	"bytes"
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/nicolastakashi/jtl-analytics/internal/compare"
	"github.com/nicolastakashi/jtl-analytics/internal/config"
	"github.com/nicolastakashi/jtl-analytics/internal/jtl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const results = `timeStamp,elapsed,label,responseCode,responseMessage,threadName,dataType,success
1,100,GET /a,200,OK,t1,text,true
2,300,GET /a,500,Err,t1,text,false
3,40,POST /b,200,OK,t1,text,true
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRunParse(t *testing.T) {
	config.Reset()
	t.Cleanup(config.Reset)
	dir := t.TempDir()
	in := writeFile(t, dir, "results.jtl", results)

	var stdout bytes.Buffer
	require.NoError(t, RunParse(in, Flags{}, &stdout))

	want := `{
  "GET /a": {
    "average": 200,
    "count": 2,
    "elapsed": 400,
    "num_calls": 2,
    "success": 1,
    "success_%": 50
  },
  "POST /b": {
    "average": 40,
    "count": 1,
    "elapsed": 40,
    "num_calls": 1,
    "success": 1,
    "success_%": 100
  }
}
`
	assert.Equal(t, want, stdout.String())

	out := filepath.Join(dir, "out.json")
	stdout.Reset()
	require.NoError(t, RunParse(in, Flags{Output: out}, &stdout))
	assert.Empty(t, stdout.String())
	written, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, want, string(written))
}

func TestRunParse_Malformed(t *testing.T) {
	config.Reset()
	t.Cleanup(config.Reset)
	in := writeFile(t, t.TempDir(), "results.jtl", "h\n1,abc,GET /a,200,OK,t1,text,true\n")

	err := RunParse(in, Flags{}, &bytes.Buffer{})
	assert.ErrorIs(t, err, jtl.ErrMalformedRow)
}

func TestRunPrettyPrint(t *testing.T) {
	config.Reset()
	t.Cleanup(config.Reset)
	dir := t.TempDir()
	in := writeFile(t, dir, "results.jtl", results)
	baseline := writeFile(t, dir, "baseline.json", `{"GET /a": {"average": 150, "success_%": 100}}`)

	var stdout bytes.Buffer
	require.NoError(t, RunPrettyPrint(in, Flags{}, &stdout))
	assert.Equal(t, "success %, average time elapsed, API\n50%, 200ms, GET /a\n100%, 40ms, POST /b\n", stdout.String())

	stdout.Reset()
	require.NoError(t, RunPrettyPrint(in, Flags{Baseline: baseline}, &stdout))
	assert.Equal(t,
		"success % (baseline %), average time elapsed (baseline), API\n"+
			"50% (100%), 200ms (150ms), GET /a\n"+
			"100% (??%), 40ms (??ms), POST /b\n",
		stdout.String())
}

func TestRunCompare(t *testing.T) {
	tests := []struct {
		name        string
		tolerance   string
		wantErr     error
		wantContain []string
	}{
		{
			name:      "within limits",
			tolerance: `{"GET /a": {"required_success": 50, "allowed_deviance": 40}, "POST /b": {"required_success": 100, "allowed_deviance": 10}}`,
			wantContain: []string{
				"[OK]",
				"failures: 0",
				"All results in file:",
			},
		},
		{
			name:      "success rate too low",
			tolerance: `{"GET /a": {"required_success": 90, "allowed_deviance": 40}, "POST /b": {"required_success": 100, "allowed_deviance": 10}}`,
			wantErr:   compare.ErrThresholdsExceeded,
			wantContain: []string{
				"[FAILED] success rate: 50%, expected: 90.0%",
				"failures: 1",
			},
		},
		{
			name:      "missing tolerance",
			tolerance: `{"GET /a": {"required_success": 50, "allowed_deviance": 40}}`,
			wantErr:   compare.ErrMissingKey,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config.Reset()
			t.Cleanup(config.Reset)
			dir := t.TempDir()
			f := Flags{
				Baseline: writeFile(t, dir, "baseline.json", `{"GET /a": {"average": 150, "success_%": 100}, "POST /b": {"average": 40, "success_%": 100}}`),
				Expected: writeFile(t, dir, "expected.json", tt.tolerance),
			}

			var stdout bytes.Buffer
			err := RunCompare(writeFile(t, dir, "results.jtl", results), f, &stdout)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			for _, s := range tt.wantContain {
				assert.Contains(t, stdout.String(), s)
			}
		})
	}
}

func TestRunCompare_RequiresFiles(t *testing.T) {
	err := RunCompare("results.jtl", Flags{Baseline: "baseline.json"}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "-e")
}

func TestRegisterCompareFlags(t *testing.T) {
	config.Reset()
	t.Cleanup(config.Reset)

	var (
		configFile string
		f          Flags
	)
	fs := flag.NewFlagSet("compare", flag.ContinueOnError)
	RegisterCompareFlags(fs, &configFile, &f)

	require.NoError(t, fs.Parse([]string{"-b", "base.json", "--expected", "exp.json", "-o", "out.txt", "-n", "--label-column=3"}))
	assert.Equal(t, Flags{Output: "out.txt", Baseline: "base.json", Expected: "exp.json"}, f)
	assert.True(t, config.DefaultConfig.Output.NoColor)
	assert.Equal(t, 3, config.DefaultConfig.Parser.Columns.Label)
}
