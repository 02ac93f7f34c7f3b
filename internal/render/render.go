// Package render formats statistics and comparison reports for humans and
// machines.
package render

import (
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/nicolastakashi/jtl-analytics/internal/stats"
)

// Options controls presentation. It is passed explicitly to every renderer.
type Options struct {
	Color bool
}

// DetectColor reports whether w is a terminal that should receive ANSI
// colors. noColor always wins.
func DetectColor(w io.Writer, noColor bool) bool {
	if noColor {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

const (
	reset   = "\033[0m"
	bold    = "\033[1m"
	red     = "\033[31m"
	green   = "\033[32m"
	magenta = "\033[35m"
)

func (o Options) paint(s string, codes ...string) string {
	if !o.Color || len(codes) == 0 {
		return s
	}
	return strings.Join(codes, "") + s + reset
}

// JSON writes v as indented JSON with sorted keys.
func JSON(w io.Writer, v any) error {
	return stats.Encode(w, v)
}
