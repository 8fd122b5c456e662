package event

import "time"

// TimeLayout is the wall-clock layout used for every rendered timestamp.
const TimeLayout = "2006-01-02 15:04:05.000"

// KST is the fixed UTC+9 zone timestamps are rendered in.
var KST = time.FixedZone("KST", 9*60*60)

// now is replaced in tests.
var now = time.Now

// Now returns the current time in KST.
func Now() time.Time {
	return now().In(KST)
}

// FormatTime renders t in KST using TimeLayout.
func FormatTime(t time.Time) string {
	return t.In(KST).Format(TimeLayout)
}

// ParseTime parses a timestamp produced by FormatTime.
func ParseTime(s string) (time.Time, error) {
	return time.ParseInLocation(TimeLayout, s, KST)
}
