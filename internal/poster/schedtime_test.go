package poster

import (
	"errors"
	"testing"
)

func TestEncodeDate(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"2025-03-07", "3/7/2025", false},
		{" 2025-12-31 ", "12/31/2025", false},
		{"3/7/2025", "3/7/2025", false},
		{"12/01/2026", "12/01/2026", false},
		{"", "", true},
		{"2025-13-01", "", true},
		{"2025-00-10", "", true},
		{"2025-03", "", true},
		{"2025/03/07/1", "", true},
		{"tomorrow", "", true},
		{"x-03-07", "", true},
	}
	for _, tt := range tests {
		got, err := EncodeDate(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrScheduleEncoding) {
				t.Fatalf("EncodeDate(%q) err = %v, want ErrScheduleEncoding", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("EncodeDate(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("EncodeDate(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEncodeTime(t *testing.T) {
	tests := []struct {
		in        string
		h, m, mer string
		wantErr   bool
	}{
		{"9:05 AM", "09", "05", "a", false},
		{"  2:5 pm ", "02", "05", "p", false},
		{"14:30", "14", "30", "", false},
		{"7:00 p.m.", "07", "00", "p", false},
		{"7:00 noon", "07", "00", "", false},
		{"0:00", "00", "00", "", false},
		{"", "", "", "", true},
		{"9", "", "", "", true},
		{"24:00", "", "", "", true},
		{"10:60", "", "", "", true},
		{"ab:cd", "", "", "", true},
		{"10:", "", "", "", true},
	}
	for _, tt := range tests {
		h, m, mer, err := EncodeTime(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrScheduleEncoding) {
				t.Fatalf("EncodeTime(%q) err = %v, want ErrScheduleEncoding", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("EncodeTime(%q): %v", tt.in, err)
		}
		if h != tt.h || m != tt.m || mer != tt.mer {
			t.Fatalf("EncodeTime(%q) = %q %q %q, want %q %q %q", tt.in, h, m, mer, tt.h, tt.m, tt.mer)
		}
	}
}

func TestEncodeScheduleString(t *testing.T) {
	got, err := EncodeSchedule(ScheduleEntry{Date: "2025-03-07", Time: "9:05 PM"})
	if err != nil {
		t.Fatalf("EncodeSchedule: %v", err)
	}
	if s := got.String(); s != "3/7/2025 09:05 PM" {
		t.Fatalf("String() = %q", s)
	}
	if _, err := EncodeSchedule(ScheduleEntry{Date: "2025-03-07"}); !errors.Is(err, ErrScheduleEncoding) {
		t.Fatalf("missing time err = %v", err)
	}
}
