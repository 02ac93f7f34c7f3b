package stats

import (
	"fmt"
	"sort"
)

// Sample is one observed invocation of an API call.
type Sample struct {
	APICall string
	Elapsed int64
	Success bool
}

// AggregateStat summarises every Sample of one API call in one run.
// Fields are declared in JSON key order so encoded files have sorted keys.
type AggregateStat struct {
	Average    float64 `json:"average"`
	Count      int     `json:"count"`
	Elapsed    int64   `json:"elapsed"`
	NumCalls   int     `json:"num_calls,omitempty"`
	Success    int     `json:"success"`
	SuccessPct float64 `json:"success_%"`
}

// NewAggregateStat derives the averages from the raw counters. Division is
// always float64: Average = elapsed/count, SuccessPct = success*100/count.
func NewAggregateStat(count, success int, elapsed int64) AggregateStat {
	a := AggregateStat{
		Count:    count,
		Success:  success,
		Elapsed:  elapsed,
		NumCalls: count,
	}
	if count > 0 {
		a.Average = float64(elapsed) / float64(count)
		a.SuccessPct = float64(success) * 100 / float64(count)
	}
	return a
}

// SuccessRate returns success/count as a fraction in [0,1]. It is recomputed
// from the counters because persisted percentages may have been rounded.
func (a AggregateStat) SuccessRate() float64 {
	if a.Count == 0 {
		return 0
	}
	return float64(a.Success) / float64(a.Count)
}

func (a AggregateStat) Valid() error {
	if a.Count < 1 {
		return fmt.Errorf("count must be at least 1 (got: %d)", a.Count)
	}
	if a.Success < 0 || a.Success > a.Count {
		return fmt.Errorf("success must be within [0, %d] (got: %d)", a.Count, a.Success)
	}
	if a.Elapsed < 0 {
		return fmt.Errorf("elapsed must not be negative (got: %d)", a.Elapsed)
	}
	return nil
}

// RunStatistics maps an API call name to its aggregate for one test run.
type RunStatistics map[string]AggregateStat

// APICalls returns the API call names in lexical order.
func (r RunStatistics) APICalls() []string {
	return sortedKeys(r)
}

// Validate checks the counters of every entry. Entries without any samples
// are accepted since consumers skip them.
func (r RunStatistics) Validate() error {
	for _, apiCall := range r.APICalls() {
		a := r[apiCall]
		if a.Count == 0 && a.Success == 0 && a.Elapsed == 0 {
			continue
		}
		if err := a.Valid(); err != nil {
			return fmt.Errorf("api call %q: %w", apiCall, err)
		}
	}
	return nil
}

// Normalized returns a copy where the derived fields of every entry carrying
// counters are recomputed from them. Entries with a count but no elapsed total
// keep their reported average.
func (r RunStatistics) Normalized() RunStatistics {
	out := make(RunStatistics, len(r))
	for apiCall, a := range r {
		if a.Count > 0 {
			n := NewAggregateStat(a.Count, a.Success, a.Elapsed)
			if a.Elapsed == 0 {
				n.Average = a.Average
			}
			a = n
		}
		out[apiCall] = a
	}
	return out
}

// ToleranceSpec is the acceptable envelope of one API call, in percent.
type ToleranceSpec struct {
	AllowedDeviance float64 `json:"allowed_deviance"`
	RequiredSuccess float64 `json:"required_success"`
}

// BaselineSpec is the expected behaviour of one API call.
type BaselineSpec struct {
	Average    float64 `json:"average"`
	SuccessPct float64 `json:"success_%"`
}

type Tolerances map[string]ToleranceSpec

func (t Tolerances) APICalls() []string {
	return sortedKeys(t)
}

type Baselines map[string]BaselineSpec

func (b Baselines) APICalls() []string {
	return sortedKeys(b)
}

// BaselinesFrom projects a run onto the baseline shape, so a previous parser
// output can be used directly as the comparison baseline.
func BaselinesFrom(r RunStatistics) Baselines {
	out := make(Baselines, len(r))
	for k, v := range r {
		out[k] = BaselineSpec{Average: v.Average, SuccessPct: v.SuccessPct}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
