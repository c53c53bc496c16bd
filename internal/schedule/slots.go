// Package schedule generates the canonical slot layout for one working day.
// It is pure: no clock, no I/O.
package schedule

import (
	"fmt"
	"regexp"
)

// Working hours in minutes from midnight. Labels run 08:00 through 17:30
// inclusive, one every 30 minutes, which yields exactly 20 slots per day.
const (
	DayStartMinute = 8 * 60
	DayEndMinute   = 17*60 + 30
	SlotMinutes    = 30
)

// Slot is one generated time slot. Blocked slots were declared unavailable
// by the doctor's schedule configuration and can never be booked.
type Slot struct {
	Label   string
	Blocked bool
}

var labelRe = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// ValidLabel reports whether s is a zero-padded HH:MM time label.
func ValidLabel(s string) bool {
	return labelRe.MatchString(s)
}

// LabelFor formats minutes from midnight as a zero-padded HH:MM label.
func LabelFor(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// DaySlots enumerates the slot layout for a single day. Every label in
// blocked that matches a generated label is marked Blocked; labels that
// match nothing are ignored, and duplicates are harmless.
func DaySlots(blocked []string) []Slot {
	blockedSet := make(map[string]struct{}, len(blocked))
	for _, label := range blocked {
		blockedSet[label] = struct{}{}
	}

	var slots []Slot
	for m := DayStartMinute; m <= DayEndMinute; m += SlotMinutes {
		label := LabelFor(m)
		_, isBlocked := blockedSet[label]
		slots = append(slots, Slot{
			Label:   label,
			Blocked: isBlocked,
		})
	}

	return slots
}
