package temporal

import (
	"errors"
	"testing"
	"time"

	"github.com/kursadbilgin/relance-engine/internal/domain"
)

func parisClock(t *testing.T) *Clock {
	t.Helper()
	c, err := LoadClock("")
	if err != nil {
		t.Fatalf("LoadClock() unexpected error = %v", err)
	}
	return c
}

func TestInBusinessHours(t *testing.T) {
	t.Parallel()

	c := parisClock(t)
	paris := c.Location()

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{name: "monday opening", at: time.Date(2026, 3, 2, 9, 0, 0, 0, paris), want: true},
		{name: "monday before opening", at: time.Date(2026, 3, 2, 8, 59, 59, 0, paris), want: false},
		{name: "monday last minute", at: time.Date(2026, 3, 2, 18, 59, 0, 0, paris), want: true},
		{name: "monday closing hour excluded", at: time.Date(2026, 3, 2, 19, 0, 0, 0, paris), want: false},
		{name: "saturday afternoon", at: time.Date(2026, 3, 7, 17, 59, 0, 0, paris), want: true},
		{name: "saturday closing hour excluded", at: time.Date(2026, 3, 7, 18, 0, 0, 0, paris), want: false},
		{name: "saturday evening", at: time.Date(2026, 3, 7, 19, 30, 0, 0, paris), want: false},
		{name: "sunday morning", at: time.Date(2026, 3, 8, 9, 30, 0, 0, paris), want: true},
		{name: "utc instant read in paris", at: time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC), want: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := c.InBusinessHours(tt.at); got != tt.want {
				t.Fatalf("InBusinessHours(%s) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}
}

func TestReactivityMinutes(t *testing.T) {
	t.Parallel()

	created := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		first time.Time
		want  int64
	}{
		{name: "truncates seconds", first: created.Add(44*time.Minute + 30*time.Second), want: 44},
		{name: "exact minutes", first: created.Add(45 * time.Minute), want: 45},
		{name: "same instant", first: created, want: 0},
		{name: "negative floors toward minus infinity", first: created.Add(-30 * time.Second), want: -1},
		{name: "negative whole minutes", first: created.Add(-2 * time.Minute), want: -2},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := ReactivityMinutes(created, tt.first); got != tt.want {
				t.Fatalf("ReactivityMinutes() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestParseCivil(t *testing.T) {
	t.Parallel()

	c := parisClock(t)
	want := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	for _, input := range []string{
		"02/03/2026 10:00",
		"2026-03-02T10:00",
		"2026-03-02T10:00:00",
		"2026-03-02 10:00",
		" 2026-03-02 10:00:00 ",
		"2026-03-02T10:00:00+01:00",
		"2026-03-02T09:00:00Z",
	} {
		got, err := c.ParseCivil(input)
		if err != nil {
			t.Fatalf("ParseCivil(%q) unexpected error = %v", input, err)
		}
		if !got.Equal(want) {
			t.Fatalf("ParseCivil(%q) = %s, want %s", input, got, want)
		}
		if got.Location() != time.UTC {
			t.Fatalf("ParseCivil(%q) location = %s, want UTC", input, got.Location())
		}
	}
}

func TestParseCivilRejects(t *testing.T) {
	t.Parallel()

	c := parisClock(t)

	tests := []struct {
		name  string
		input string
	}{
		{name: "empty", input: " "},
		{name: "garbage", input: "yesterday"},
		{name: "impossible day", input: "31/02/2026 10:00"},
		{name: "dst gap", input: "29/03/2026 02:30"},
		{name: "dst overlap", input: "25/10/2026 02:30"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if _, err := c.ParseCivil(tt.input); !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("ParseCivil(%q) error = %v, want ErrValidation", tt.input, err)
			}
		})
	}
}

func TestClockNowIsUTC(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2026, 3, 2, 10, 0, 0, 0, time.FixedZone("CET", 3600))
	c := parisClock(t).WithNow(func() time.Time { return fixed })

	got := c.Now()
	if !got.Equal(fixed) || got.Location() != time.UTC {
		t.Fatalf("Now() = %s, want %s in UTC", got, fixed)
	}
	if s := c.FormatCivil(got); s != "02/03/2026 10:00" {
		t.Fatalf("FormatCivil() = %q, want 02/03/2026 10:00", s)
	}
}

func TestLoadClockUnknownZone(t *testing.T) {
	t.Parallel()

	if _, err := LoadClock("Mars/Olympus"); err == nil {
		t.Fatal("LoadClock() expected error for unknown zone")
	}
}
