package reliability

import (
	"testing"
	"time"
)

func TestRetryableStatus(t *testing.T) {
	cases := []struct {
		code int
		want bool
	}{
		{200, false},
		{404, false},
		{429, true},
		{500, true},
		{501, false},
		{502, true},
		{504, true},
	}
	for _, tc := range cases {
		if got := RetryableStatus(tc.code); got != tc.want {
			t.Fatalf("RetryableStatus(%d) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestBackoffDoublesAndClamps(t *testing.T) {
	base := 250 * time.Millisecond
	max := 5 * time.Second
	if got := Backoff(0, base, max); got != base {
		t.Fatalf("attempt 0 = %v, want %v", got, base)
	}
	if got := Backoff(1, base, max); got != 500*time.Millisecond {
		t.Fatalf("attempt 1 = %v, want 500ms", got)
	}
	if got := Backoff(3, base, max); got != 2*time.Second {
		t.Fatalf("attempt 3 = %v, want 2s", got)
	}
	if got := Backoff(12, base, max); got != max {
		t.Fatalf("attempt 12 = %v, want clamp at %v", got, max)
	}
	if got := Backoff(-1, base, max); got != base {
		t.Fatalf("negative attempt = %v, want %v", got, base)
	}
}
