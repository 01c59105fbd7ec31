package rofat

import (
	"time"
)

// ParseDate reads a FAT date stamp:
//  Bits 0–4: Day of month, valid value range 1-31 inclusive.
//  Bits 5–8: Month of year, 1 = January, valid value range 1–12 inclusive.
//  Bits 9–15: Count of years from 1980, valid value range 0–127 inclusive (1980–2107).
// The result always has a time of 00:00:00 UTC.
//
// Day and month 0 are invalid, in which case time.Time{} is returned so that
// time.Time.IsZero() can be used to detect it.
//
// A month bigger than 12 is unspecified and rolls over into the next year.
func ParseDate(input uint16) time.Time {
	dayOfMonth := input & 0x1F
	monthOfYear := input & 0x1E0 >> 5
	yearSince1980 := input & 0xFE00 >> 9

	if dayOfMonth == 0 || monthOfYear == 0 {
		return time.Time{}
	}

	return time.Date(1980+int(yearSince1980), time.Month(monthOfYear), int(dayOfMonth), 0, 0, 0, 0, time.UTC)
}

// ParseTime reads a FAT time stamp with a granularity of 2 seconds:
//  Bits 0–4: 2-second count, valid value range 0–29 inclusive (0 – 58 seconds).
//  Bits 5–10: Minutes, valid value range 0–59 inclusive.
//  Bits 11–15: Hours, valid value range 0–23 inclusive.
// The result has the date January 1, year 1, so midnight is time.Time{}.
//
// Values out of range are added up but the result is capped at 23:59:59.
func ParseTime(input uint16) time.Time {
	seconds := int(input&0x1F) * 2
	minutes := input & 0x7E0 >> 5
	hours := input & 0xF800 >> 11

	result := time.Date(1, 1, 1, int(hours), int(minutes), seconds, 0, time.UTC)

	if result.Day() > 1 {
		return time.Date(1, 1, 1, 23, 59, 59, 0, time.UTC)
	}

	return result
}

// ParseDateTime combines a date and a time stamp into a point in time in loc.
// tenths is the 10 ms counter (0-199) only present for the creation time.
// It returns time.Time{} if the date is invalid.
func ParseDateTime(date, clock uint16, tenths uint8, loc *time.Location) time.Time {
	d := ParseDate(date)
	if d.IsZero() {
		return time.Time{}
	}
	if loc == nil {
		loc = time.UTC
	}

	c := ParseTime(clock)
	extra := time.Duration(tenths%200) * 10 * time.Millisecond

	return time.Date(d.Year(), d.Month(), d.Day(), c.Hour(), c.Minute(), c.Second(), 0, loc).Add(extra)
}
