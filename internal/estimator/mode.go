package estimator

import (
	"fmt"
	"strings"
)

// Mode selects what an estimation produces.
type Mode int

const (
	// ModeDeviance produces tolerances: minimum success rate and maximum timing deviation.
	ModeDeviance Mode = iota
	// ModeBaseline produces baselines: expected average timing and success rate.
	ModeBaseline
)

func (m Mode) String() string {
	switch m {
	case ModeDeviance:
		return "deviances"
	case ModeBaseline:
		return "baseline"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode accepts the names used on the command line and in the API.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "deviances", "deviance":
		return ModeDeviance, nil
	case "baseline", "baselines":
		return ModeBaseline, nil
	default:
		return 0, fmt.Errorf("unknown estimation type %q, supported values: deviances, baseline", s)
	}
}
