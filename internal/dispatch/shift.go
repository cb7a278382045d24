package dispatch

import "time"

// ShiftWindows are the two fixed daily serving windows, as wall-clock
// hours: shift 1 runs [Shift1Start, Shift1End), shift 2 runs
// [Shift1End, Shift2End). Outside both windows no courier is on shift.
type ShiftWindows struct {
	Shift1Start int
	Shift1End   int
	Shift2End   int
}

// Current returns the shift code active at t, or 0 when the time falls
// outside both windows.
func (w ShiftWindows) Current(t time.Time) int {
	h := t.Hour()
	switch {
	case h >= w.Shift1Start && h < w.Shift1End:
		return 1
	case h >= w.Shift1End && h < w.Shift2End:
		return 2
	default:
		return 0
	}
}
