package render

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"github.com/nicolastakashi/jtl-analytics/internal/stats"
)

const unknown = "??"

// Table prints one line per API call in name order. When baseline is not nil
// the expected values are shown next to the current ones; API calls missing
// from the baseline show "??".
func Table(w io.Writer, current stats.RunStatistics, baseline stats.Baselines, opts Options) error {
	bw := bufio.NewWriter(w)

	if baseline != nil {
		fmt.Fprintln(bw, opts.paint("success % (baseline %), average time elapsed (baseline), API", bold))
	} else {
		fmt.Fprintln(bw, opts.paint("success %, average time elapsed, API", bold))
	}

	for _, apiCall := range current.APICalls() {
		cur := current[apiCall]
		if baseline == nil {
			fmt.Fprintf(bw, "%s%%, %sms, %s\n", number(cur.SuccessPct), number(cur.Average), apiCall)
			continue
		}

		baseSuccess, baseAverage := unknown, unknown
		if base, ok := baseline[apiCall]; ok {
			baseSuccess, baseAverage = number(base.SuccessPct), number(base.Average)
		}
		fmt.Fprintf(bw, "%s%% (%s%%), %sms (%sms), %s\n",
			number(cur.SuccessPct), baseSuccess, number(cur.Average), baseAverage, apiCall)
	}

	return bw.Flush()
}

func number(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
