package scheduler

import (
	"errors"
	"testing"
	"time"

	"github.com/perrymanuk/radbot-sub001/internal/models"
)

func TestValidate(t *testing.T) {
	cases := []struct {
		expr    string
		wantErr bool
	}{
		{"* * * * *", false},
		{"*/5 * * * *", false},
		{"0 9 * * 1-5", false},
		{"30 14 1 * *", false},
		{"", true},
		{"not a cron", true},
		{"* * * *", true},          // too few fields
		{"0 0 * * * *", true},      // 6 fields, seconds not supported
		{"61 * * * *", true},       // minute out of range
		{"* 25 * * *", true},       // hour out of range
	}

	for _, tc := range cases {
		err := Validate(tc.expr)
		if tc.wantErr && err == nil {
			t.Errorf("Validate(%q): expected error, got nil", tc.expr)
		}
		if !tc.wantErr && err != nil {
			t.Errorf("Validate(%q): unexpected error: %v", tc.expr, err)
		}
		if tc.wantErr && err != nil && !errors.Is(err, models.ErrInvalidCron) {
			t.Errorf("Validate(%q): error not ErrInvalidCron: %v", tc.expr, err)
		}
	}
}

func TestNextEveryMinute(t *testing.T) {
	after := time.Date(2025, 6, 1, 12, 30, 15, 0, time.UTC)
	next, err := Next("* * * * *", after)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	want := time.Date(2025, 6, 1, 12, 31, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("Expected %v, got %v", want, next)
	}
}

func TestNextStrictlyAfter(t *testing.T) {
	// An occurrence boundary must not re-fire on the same instant.
	boundary := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)
	next, err := Next("30 12 * * *", boundary)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if !next.After(boundary) {
		t.Errorf("Next %v not strictly after %v", next, boundary)
	}
	want := boundary.Add(24 * time.Hour)
	if !next.Equal(want) {
		t.Errorf("Expected %v, got %v", want, next)
	}
}

func TestNextInvalidExpression(t *testing.T) {
	_, err := Next("bogus", time.Now())
	if err == nil {
		t.Fatal("Expected error for invalid expression")
	}
	if !errors.Is(err, models.ErrInvalidCron) {
		t.Errorf("Error not ErrInvalidCron: %v", err)
	}
}
