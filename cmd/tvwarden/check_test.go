package main

import (
	"testing"
	"time"
)

func TestParseCheckTime(t *testing.T) {
	// Wednesday
	now := time.Date(2024, 6, 5, 15, 4, 0, 0, time.UTC)

	tests := []struct {
		name    string
		day     string
		time    string
		want    time.Time
		wantErr bool
	}{
		{name: "time only", time: "20:30", want: time.Date(2024, 6, 5, 20, 30, 0, 0, time.UTC)},
		{name: "later day", day: "saturday", want: time.Date(2024, 6, 8, 15, 4, 0, 0, time.UTC)},
		{name: "earlier day wraps", day: "mon", time: "07:00", want: time.Date(2024, 6, 10, 7, 0, 0, 0, time.UTC)},
		{name: "same day", day: "Wed", want: now},
		{name: "bad day", day: "funday", wantErr: true},
		{name: "bad time", time: "25:00", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseCheckTime(now, tt.day, tt.time)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseWeekdays(t *testing.T) {
	days, err := parseWeekdays("sat, sun,mon")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []time.Weekday{time.Saturday, time.Sunday, time.Monday}
	if len(days) != len(want) {
		t.Fatalf("got %v, want %v", days, want)
	}
	for i := range want {
		if days[i] != want[i] {
			t.Errorf("days[%d] = %v, want %v", i, days[i], want[i])
		}
	}

	if days, err := parseWeekdays(""); err != nil || days != nil {
		t.Errorf("empty input: got %v, %v", days, err)
	}
	if _, err := parseWeekdays("mon,xyz"); err == nil {
		t.Error("expected error for unknown day")
	}
}
