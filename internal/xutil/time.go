package xutil

import (
	"math"
	"time"
)

// AbsoluteTime refers to a unique point in time, stored as microseconds
// since the Unix epoch. Adapted from gnunet-go's util.AbsoluteTime.
type AbsoluteTime struct {
	Val uint64 `order:"big"`
}

// NewAbsoluteTime converts a time.Time into an AbsoluteTime.
func NewAbsoluteTime(t time.Time) AbsoluteTime {
	secs := t.Unix()
	usecs := t.Nanosecond() / 1000
	return AbsoluteTime{
		Val: uint64(secs*1000000) + uint64(usecs),
	}
}

// AbsoluteTimeNow returns the current point in time.
func AbsoluteTimeNow() AbsoluteTime {
	return NewAbsoluteTime(time.Now())
}

// AbsoluteTimeNever returns the point in time meaning "no expiration".
func AbsoluteTimeNever() AbsoluteTime {
	return AbsoluteTime{Val: math.MaxUint64}
}

// Time converts back to a standard time.Time.
func (t AbsoluteTime) Time() time.Time {
	return time.Unix(int64(t.Val/1000000), int64(t.Val%1000000)*1000)
}

// String returns a human-readable notation of an absolute time.
func (t AbsoluteTime) String() string {
	if t.Val == math.MaxUint64 {
		return "Never"
	}
	return t.Time().Format(time.RFC3339Nano)
}

// Expired returns true if the timestamp lies in the past.
func (t AbsoluteTime) Expired() bool {
	if t.Val == math.MaxUint64 {
		return false
	}
	return t.Time().Before(time.Now())
}
