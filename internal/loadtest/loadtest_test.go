package loadtest

import (
	"log"
	"strings"
	"testing"
	"time"

	"rowsync/internal/relay"
)

func TestRun_ConfigValidation(t *testing.T) {
	if _, err := Run(Config{Sessions: 1, Mutations: 1}); err == nil {
		t.Errorf("Run() without url expected error")
	}
	if _, err := Run(Config{URL: "ws://x", Sessions: 0, Mutations: 1}); err == nil {
		t.Errorf("Run() with zero sessions expected error")
	}
}

func TestRun_AgainstLiveRelay(t *testing.T) {
	logger := log.New(testWriter{t}, "[relay] ", 0)
	srv := relay.NewServer(&relay.Config{Port: 0, Logger: logger})
	if err := srv.Start(); err != nil {
		t.Fatalf("relay start: %v", err)
	}
	defer func() {
		if err := srv.Stop(); err != nil {
			t.Errorf("relay stop: %v", err)
		}
	}()

	stats, err := Run(Config{
		URL:       "ws://" + srv.Addr(),
		Sessions:  3,
		Mutations: 5,
		Timeout:   5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if stats.RoundTrips != 15 {
		t.Errorf("RoundTrips = %d, want 15", stats.RoundTrips)
	}
	if stats.Errors != 0 {
		t.Errorf("Errors = %d, want 0", stats.Errors)
	}
	if stats.Min <= 0 || stats.Max < stats.Min || stats.P50 > stats.P99 {
		t.Errorf("implausible stats: %+v", stats)
	}

	// Every session used a distinct client id, so all 15 adds landed.
	if got := srv.Table().Len(); got != 15 {
		t.Errorf("relay table has %d rows, want 15", got)
	}

	var sb strings.Builder
	stats.Print(&sb)
	if !strings.Contains(sb.String(), "Round-trips: 15") {
		t.Errorf("Print() output missing round-trip count:\n%s", sb.String())
	}
}

func TestRun_ReportsUnreachableRelay(t *testing.T) {
	_, err := Run(Config{
		URL:       "ws://127.0.0.1:1",
		Sessions:  1,
		Mutations: 1,
		Timeout:   500 * time.Millisecond,
	})
	if err == nil {
		t.Fatalf("Run() against dead endpoint expected error")
	}
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Logf("%s", strings.TrimRight(string(p), "\n"))
	return len(p), nil
}
