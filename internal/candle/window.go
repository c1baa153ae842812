package candle

import "fmt"

// Window identifies one of the three rolling lookback windows.
type Window int

const (
	Short Window = iota
	Medium
	Long
)

// Windows lists every window in evaluation order.
var Windows = [...]Window{Short, Medium, Long}

// NumWindows is the number of rolling windows.
const NumWindows = len(Windows)

// String returns the key used in logs, reasons and config files.
func (w Window) String() string {
	switch w {
	case Short:
		return "period_one"
	case Medium:
		return "period_two"
	case Long:
		return "period_three"
	default:
		return fmt.Sprintf("window(%d)", int(w))
	}
}

// ParseWindow maps a config key back to its Window.
func ParseWindow(s string) (Window, error) {
	for _, w := range Windows {
		if w.String() == s {
			return w, nil
		}
	}
	return 0, fmt.Errorf("unknown window %q", s)
}
