package poster

import (
	"fmt"
	"strconv"
	"strings"
)

// EncodeDate normalizes "YYYY-MM-DD" to "M/D/YYYY" without zero padding.
// Input already in "M/D/YYYY" form is validated and returned unchanged.
func EncodeDate(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("%w: empty date", ErrScheduleEncoding)
	}
	if strings.Contains(s, "-") {
		parts := strings.Split(s, "-")
		if len(parts) != 3 {
			return "", fmt.Errorf("%w: date %q: want YYYY-MM-DD", ErrScheduleEncoding, raw)
		}
		if _, err := strconv.Atoi(parts[0]); err != nil {
			return "", fmt.Errorf("%w: date %q: bad year", ErrScheduleEncoding, raw)
		}
		m, err := dateField(parts[1], 12)
		if err != nil {
			return "", fmt.Errorf("%w: date %q: month: %v", ErrScheduleEncoding, raw, err)
		}
		d, err := dateField(parts[2], 31)
		if err != nil {
			return "", fmt.Errorf("%w: date %q: day: %v", ErrScheduleEncoding, raw, err)
		}
		return fmt.Sprintf("%d/%d/%s", m, d, parts[0]), nil
	}

	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return "", fmt.Errorf("%w: date %q: want YYYY-MM-DD or M/D/YYYY", ErrScheduleEncoding, raw)
	}
	if _, err := dateField(parts[0], 12); err != nil {
		return "", fmt.Errorf("%w: date %q: month: %v", ErrScheduleEncoding, raw, err)
	}
	if _, err := dateField(parts[1], 31); err != nil {
		return "", fmt.Errorf("%w: date %q: day: %v", ErrScheduleEncoding, raw, err)
	}
	if _, err := strconv.Atoi(parts[2]); err != nil {
		return "", fmt.Errorf("%w: date %q: bad year", ErrScheduleEncoding, raw)
	}
	return s, nil
}

func dateField(s string, hi int) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 1 || n > hi {
		return 0, fmt.Errorf("%d out of range 1..%d", n, hi)
	}
	return n, nil
}

// EncodeTime splits "H:MM AM" style input into zero-padded hour and minute
// plus a lower-case meridiem flag. The marker is optional; when it does not
// start with A or P the flag is empty and the caller picks a fallback.
func EncodeTime(raw string) (hour, minute, meridiem string, err error) {
	parts := strings.Fields(strings.ToUpper(raw))
	if len(parts) == 0 {
		return "", "", "", fmt.Errorf("%w: empty time", ErrScheduleEncoding)
	}
	hs, ms, ok := strings.Cut(parts[0], ":")
	if !ok {
		return "", "", "", fmt.Errorf("%w: time %q: want H:MM", ErrScheduleEncoding, raw)
	}
	h, err := strconv.Atoi(hs)
	if err != nil || h < 0 || h > 23 {
		return "", "", "", fmt.Errorf("%w: time %q: bad hour", ErrScheduleEncoding, raw)
	}
	m, err := strconv.Atoi(ms)
	if err != nil || m < 0 || m > 59 {
		return "", "", "", fmt.Errorf("%w: time %q: bad minute", ErrScheduleEncoding, raw)
	}
	if len(parts) > 1 {
		switch {
		case strings.HasPrefix(parts[1], "P"):
			meridiem = "p"
		case strings.HasPrefix(parts[1], "A"):
			meridiem = "a"
		}
	}
	return fmt.Sprintf("%02d", h), fmt.Sprintf("%02d", m), meridiem, nil
}

// EncodeSchedule encodes both halves of a deferred entry.
func EncodeSchedule(e ScheduleEntry) (ScheduleTarget, error) {
	date, err := EncodeDate(e.Date)
	if err != nil {
		return ScheduleTarget{}, err
	}
	h, m, mer, err := EncodeTime(e.Time)
	if err != nil {
		return ScheduleTarget{}, err
	}
	return ScheduleTarget{Date: date, Hour: h, Minute: m, Meridiem: mer}, nil
}

func (t ScheduleTarget) String() string {
	s := t.Date + " " + t.Hour + ":" + t.Minute
	if t.Meridiem != "" {
		s += " " + strings.ToUpper(t.Meridiem) + "M"
	}
	return s
}
