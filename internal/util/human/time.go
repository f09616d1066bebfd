package human

import (
	"fmt"
	"math"
	"time"
)

func unit(n float64, name string) string {
	if n == 1 {
		return fmt.Sprintf("1 %v", name)
	}
	return fmt.Sprintf("%v %vs", n, name)
}

// TimeFromBase describes t relative to base. Times further than two weeks away are shown as dates.
func TimeFromBase(base, t time.Time) string {
	diff := t.Sub(base)
	neg := diff < 0
	if neg {
		diff = -diff
	}

	if diff < time.Second {
		return "now"
	}

	agoIn := func(s string) string {
		if neg {
			return s + " ago"
		}
		return "in " + s
	}

	switch {
	case diff <= 90*time.Second:
		return agoIn(unit(math.Round(diff.Seconds()), "sec"))
	case diff <= 90*time.Minute:
		return agoIn(unit(math.Round(diff.Minutes()), "min"))
	case diff <= 36*time.Hour:
		return agoIn(unit(math.Round(diff.Hours()), "hr"))
	case diff <= 14*24*time.Hour:
		return agoIn(unit(math.Round(diff.Hours()/24), "day"))
	}
	return t.Format(time.DateOnly)
}

// Since is TimeFromBase relative to now, with nil meaning the event never happened.
func Since(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return TimeFromBase(time.Now(), *t)
}
