// Package compare checks the statistics of a run against a baseline and a
// tolerance envelope.
package compare

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nicolastakashi/jtl-analytics/internal/stats"
)

var (
	// ErrMissingKey is matched by MissingKeyError.
	ErrMissingKey = errors.New("missing key")

	// ErrThresholdsExceeded is returned by callers when a report has failures.
	ErrThresholdsExceeded = errors.New("results exceed allowed deviations")
)

// MissingKeyError reports an API call of the current run that has no entry in
// the baseline or tolerance mapping. A missing entry is never treated as a pass.
type MissingKeyError struct {
	APICall string
	Source  string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("API call %q has no %s entry", e.APICall, e.Source)
}

func (e *MissingKeyError) Is(target error) bool {
	return target == ErrMissingKey
}

const labelWidth = 50

type Verdict struct {
	APICall   string `json:"api_call"`
	SuccessOK bool   `json:"success_ok"`
	TimingOK  bool   `json:"timing_ok"`

	SuccessPct      float64 `json:"success_%"`
	RequiredSuccess float64 `json:"required_success"`
	Average         float64 `json:"average"`
	BaselineAverage float64 `json:"baseline_average"`
	DeviancePct     float64 `json:"deviance"`
	AllowedDeviance float64 `json:"allowed_deviance"`

	Message string `json:"message"`
}

func (v Verdict) OK() bool {
	return v.SuccessOK && v.TimingOK
}

func (v Verdict) OKMessage() string {
	return fmt.Sprintf("API call: %s [OK]", padLabel(v.APICall))
}

func (v Verdict) SuccessMessage() string {
	return fmt.Sprintf("API call: %s [FAILED] success rate: %s%%, expected: %4.1f%%",
		padLabel(v.APICall), formatNumber(v.SuccessPct), v.RequiredSuccess)
}

func (v Verdict) TimingMessage() string {
	return fmt.Sprintf("API call: %s [FAILED] current avg: %sms, base line avg: %sms, dev: %s%%, allowed dev: %4.1f%%",
		padLabel(v.APICall), formatNumber(v.Average), formatNumber(v.BaselineAverage), formatNumber(v.DeviancePct), v.AllowedDeviance)
}

func (v Verdict) message() string {
	if v.OK() {
		return v.OKMessage()
	}
	var lines []string
	if !v.SuccessOK {
		lines = append(lines, v.SuccessMessage())
	}
	if !v.TimingOK {
		lines = append(lines, v.TimingMessage())
	}
	return strings.Join(lines, "\n")
}

type Report struct {
	Verdicts []Verdict `json:"verdicts"`
	Failures int       `json:"failures"`
}

func (r Report) Passed() bool {
	return r.Failures == 0
}

// Err returns ErrThresholdsExceeded when at least one check failed.
func (r Report) Err() error {
	if r.Passed() {
		return nil
	}
	return fmt.Errorf("%w: %d failed checks", ErrThresholdsExceeded, r.Failures)
}

// Compare runs the success and timing checks for every API call of current.
// It performs no I/O and returns verdicts in API call order.
func Compare(current stats.RunStatistics, baseline stats.Baselines, tolerance stats.Tolerances) (Report, error) {
	report := Report{Verdicts: make([]Verdict, 0, len(current))}

	for _, apiCall := range current.APICalls() {
		cur := current[apiCall]
		tol, ok := tolerance[apiCall]
		if !ok {
			return Report{}, &MissingKeyError{APICall: apiCall, Source: "tolerance"}
		}
		base, ok := baseline[apiCall]
		if !ok {
			return Report{}, &MissingKeyError{APICall: apiCall, Source: "baseline"}
		}

		v := Verdict{
			APICall:         apiCall,
			SuccessPct:      cur.SuccessPct,
			RequiredSuccess: tol.RequiredSuccess,
			Average:         cur.Average,
			AllowedDeviance: tol.AllowedDeviance,
		}

		v.SuccessOK = CheckSuccess(cur.SuccessPct, tol.RequiredSuccess)
		if !v.SuccessOK {
			report.Failures++
		}

		v.BaselineAverage, v.DeviancePct = Deviance(cur.Average, base.Average)
		v.TimingOK = v.DeviancePct <= tol.AllowedDeviance
		if !v.TimingOK {
			report.Failures++
		}

		v.Message = v.message()
		report.Verdicts = append(report.Verdicts, v)
	}

	return report, nil
}

// CheckSuccess passes when current is at least required.
func CheckSuccess(current, required float64) bool {
	return current >= required
}

// Deviance returns the relative difference of current to baseline, in
// percent. A zero baseline is replaced by 1; the value actually used is
// returned alongside.
func Deviance(current, baseline float64) (usedBaseline, deviancePct float64) {
	if baseline == 0 {
		baseline = 1
	}
	return baseline, (current - baseline) * 100 / baseline
}

func padLabel(s string) string {
	if n := labelWidth - len(s); n > 0 {
		return s + strings.Repeat(".", n)
	}
	return s
}

func formatNumber(v float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.2f", v), "0"), ".")
}
