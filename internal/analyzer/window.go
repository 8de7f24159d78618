package analyzer

import (
	"fmt"
	"time"
)

type WindowKind string

const (
	WindowAll       WindowKind = "summary"
	WindowWeek      WindowKind = "week"
	WindowWeekPrev  WindowKind = "weekprev"
	WindowMonth     WindowKind = "month"
	WindowMonthPrev WindowKind = "monthprev"
)

var windowKinds = []WindowKind{WindowAll, WindowWeek, WindowWeekPrev, WindowMonth, WindowMonthPrev}

func ParseWindowKind(s string) (WindowKind, error) {
	if s == "" || s == "all" {
		return WindowAll, nil
	}
	for _, k := range windowKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown window %q", s)
}

// Window is an inclusive range of calendar dates. The zero Start/Finish of
// WindowAll means unbounded.
type Window struct {
	Kind   WindowKind `json:"kind"`
	Start  time.Time  `json:"start,omitempty"`
	Finish time.Time  `json:"finish,omitempty"`
}

func (w Window) Bounded() bool {
	return w.Kind != WindowAll
}

func (w Window) Contains(t time.Time) bool {
	if !w.Bounded() {
		return true
	}
	d := dateOf(t)
	return !d.Before(w.Start) && !d.After(w.Finish)
}

// ResolveWindow returns the calendar window of kind relative to anchor, the
// date of the latest order. Weeks start on Monday.
func ResolveWindow(kind WindowKind, anchor time.Time) Window {
	day := dateOf(anchor)
	w := Window{Kind: kind}

	switch kind {
	case WindowWeek:
		w.Start = startOfWeek(day)
	case WindowWeekPrev:
		w.Start = startOfWeek(startOfWeek(day).AddDate(0, 0, -1))
	case WindowMonth:
		w.Start = startOfMonth(day)
	case WindowMonthPrev:
		w.Start = startOfMonth(startOfMonth(day).AddDate(0, 0, -1))
	default:
		w.Kind = WindowAll
		return w
	}

	if kind == WindowWeek || kind == WindowWeekPrev {
		w.Finish = w.Start.AddDate(0, 0, 6)
	} else {
		w.Finish = w.Start.AddDate(0, 1, -1)
	}
	return w
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func startOfWeek(day time.Time) time.Time {
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

func startOfMonth(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
}
