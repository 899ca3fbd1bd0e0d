package chatops

import (
	"fmt"
	"strconv"
	"strings"

	"adsposter/internal/poster"
)

// ParsePost builds a run request from a /post message.
//
// Options come from the command line or from body lines of the form key=value:
//
//	identity=<profile>  model=<name>  images=<min>-<max>  delay=<min>-<max>
//
// Body lines starting with "@" add schedule entries ("@ 3/7/2025 9:30 PM",
// "@ now" for an immediate publish). Every other body line is context.
func ParsePost(args []string, body string) (poster.Request, error) {
	var req poster.Request
	for _, a := range args {
		if err := applyOption(&req, a); err != nil {
			return req, err
		}
	}

	var ctxLines []string
	for _, raw := range strings.Split(body, "\n") {
		line := strings.TrimSpace(raw)
		switch {
		case line == "" && len(ctxLines) == 0:
		case strings.HasPrefix(line, "@"):
			e, err := parseScheduleLine(strings.TrimSpace(line[1:]))
			if err != nil {
				return req, err
			}
			req.Schedule = append(req.Schedule, e)
		case isOption(line):
			if err := applyOption(&req, line); err != nil {
				return req, err
			}
		default:
			ctxLines = append(ctxLines, strings.TrimRight(raw, " \t\r"))
		}
	}
	req.Context = strings.TrimSpace(strings.Join(ctxLines, "\n"))
	return req, nil
}

var optionKeys = map[string]bool{
	"identity": true, "profile": true, "model": true,
	"images": true, "delay": true,
	"images_min": true, "images_max": true, "delay_min": true, "delay_max": true,
}

func isOption(line string) bool {
	k, _, ok := strings.Cut(line, "=")
	return ok && optionKeys[strings.ToLower(strings.TrimSpace(k))]
}

func applyOption(req *poster.Request, kv string) error {
	k, v, ok := strings.Cut(kv, "=")
	if !ok {
		return fmt.Errorf("expected key=value, got %q", kv)
	}
	k = strings.ToLower(strings.TrimSpace(k))
	v = strings.TrimSpace(v)
	s := &req.Settings
	var err error
	switch k {
	case "identity", "profile":
		req.Identity = v
	case "model":
		req.Model = v
	case "images":
		s.ImagesMin, s.ImagesMax, err = parseRange(v)
	case "delay":
		s.DelayMin, s.DelayMax, err = parseRange(v)
	case "images_min":
		s.ImagesMin, err = strconv.Atoi(v)
	case "images_max":
		s.ImagesMax, err = strconv.Atoi(v)
	case "delay_min":
		s.DelayMin, err = strconv.Atoi(v)
	case "delay_max":
		s.DelayMax, err = strconv.Atoi(v)
	default:
		return fmt.Errorf("unknown option %q", k)
	}
	if err != nil {
		return fmt.Errorf("option %s: %w", k, err)
	}
	return nil
}

// parseRange accepts "n" or "lo-hi".
func parseRange(v string) (int, int, error) {
	lo, hi, ok := strings.Cut(v, "-")
	a, err := strconv.Atoi(strings.TrimSpace(lo))
	if err != nil {
		return 0, 0, err
	}
	if !ok {
		return a, a, nil
	}
	b, err := strconv.Atoi(strings.TrimSpace(hi))
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

// parseScheduleLine splits "<date> <time...>". The time keeps any meridiem suffix.
func parseScheduleLine(s string) (poster.ScheduleEntry, error) {
	if s == "" || strings.EqualFold(s, "now") {
		return poster.ScheduleEntry{}, nil
	}
	date, tm, ok := strings.Cut(s, " ")
	if !ok || strings.TrimSpace(tm) == "" {
		return poster.ScheduleEntry{}, fmt.Errorf("schedule line %q: want \"@ <date> <time>\"", s)
	}
	e := poster.ScheduleEntry{Date: date, Time: strings.TrimSpace(tm)}
	if _, err := poster.EncodeSchedule(e); err != nil {
		return e, fmt.Errorf("schedule line %q: %w", s, err)
	}
	return e, nil
}
