package render

import (
	"bufio"
	"fmt"
	"io"

	"github.com/nicolastakashi/jtl-analytics/internal/compare"
)

// Report prints the verdicts of a comparison followed by the failure count.
// Success failures are magenta, timing failures red and passing calls green.
func Report(w io.Writer, report compare.Report, opts Options) error {
	bw := bufio.NewWriter(w)

	for _, v := range report.Verdicts {
		if v.OK() {
			fmt.Fprintln(bw, opts.paint(v.OKMessage(), green, bold))
			continue
		}
		if !v.SuccessOK {
			fmt.Fprintln(bw, opts.paint(v.SuccessMessage(), magenta))
		}
		if !v.TimingOK {
			fmt.Fprintln(bw, opts.paint(v.TimingMessage(), red))
		}
	}
	fmt.Fprintf(bw, "failures: %d\n", report.Failures)

	return bw.Flush()
}
