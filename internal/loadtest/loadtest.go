// Package loadtest measures relay echo latency under concurrent
// sessions.
//
// Each simulated session opens its own connection, issues add mutations
// one at a time and waits for its own broadcast echo, recording the
// round-trip time. This exercises the whole client stack — session,
// connection manager, wire schema — against a live relay.
package loadtest

import (
	"fmt"
	"io"
	"log"
	"sort"
	"sync"
	"time"

	"rowsync/internal/conn"
	"rowsync/internal/schema"
	"rowsync/internal/session"
)

// Config controls one load run.
type Config struct {
	// URL is the relay base address, e.g. "ws://127.0.0.1:8787".
	URL string

	// Sessions is the number of concurrent client sessions.
	Sessions int

	// Mutations is the number of round-trips each session performs.
	Mutations int

	// Timeout bounds a single round-trip (default 5s).
	Timeout time.Duration

	// Logger for per-session connection noise. Defaults to a discard
	// logger so runs stay readable.
	Logger *log.Logger
}

// Stats captures latency metrics aggregated over every round-trip.
type Stats struct {
	Min        time.Duration
	Max        time.Duration
	Mean       time.Duration
	P50        time.Duration
	P95        time.Duration
	P99        time.Duration
	RoundTrips int
	Errors     int
}

// Run performs the configured load run and returns aggregate stats.
func Run(config Config) (*Stats, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("url is required")
	}
	if config.Sessions <= 0 || config.Mutations <= 0 {
		return nil, fmt.Errorf("sessions and mutations must be positive")
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	if config.Logger == nil {
		config.Logger = log.New(io.Discard, "", 0)
	}

	var wg sync.WaitGroup
	results := make(chan []time.Duration, config.Sessions)
	errs := make(chan error, config.Sessions)

	for i := 0; i < config.Sessions; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			durations, err := runSession(config, id)
			if err != nil {
				errs <- fmt.Errorf("session %d: %w", id, err)
				return
			}
			results <- durations
		}(i)
	}

	wg.Wait()
	close(results)
	close(errs)

	var all []time.Duration
	for durations := range results {
		all = append(all, durations...)
	}

	errorCount := 0
	var firstErr error
	for err := range errs {
		errorCount++
		if firstErr == nil {
			firstErr = err
		}
	}

	if len(all) == 0 {
		return nil, fmt.Errorf("no round-trips completed: %w", firstErr)
	}

	stats := computeStats(all)
	stats.Errors = errorCount
	return stats, nil
}

// runSession drives one connection through its round-trips. Echoes are
// matched by client id and key, so broadcasts from other sessions pass
// through without being counted.
func runSession(config Config, id int) ([]time.Duration, error) {
	sess := session.New()
	states := make(chan conn.State, 16)
	echoes := make(chan string, config.Mutations)

	mgr, err := conn.New(conn.Config{
		URL:         config.URL,
		Session:     sess,
		BaseDelay:   100 * time.Millisecond,
		MaxAttempts: 3,
		Logger:      config.Logger,
		OnStateChange: func(s conn.State) {
			select {
			case states <- s:
			default:
			}
		},
	})
	if err != nil {
		return nil, err
	}
	defer mgr.Disconnect()

	err = mgr.Connect(func(mut *schema.Mutation) {
		if mut.ClientID == sess.ClientID() && mut.Type == schema.TypeAdd {
			select {
			case echoes <- mut.Key:
			default:
			}
		}
	})
	if err != nil {
		return nil, err
	}

	if err := waitConnected(states, config.Timeout); err != nil {
		return nil, err
	}

	durations := make([]time.Duration, 0, config.Mutations)
	for j := 0; j < config.Mutations; j++ {
		key := fmt.Sprintf("bench-%s-%d", sess.ClientID()[:8], j)
		e := schema.Entity{Name: key, Age: j, Email: key + "@bench.invalid"}

		start := time.Now()
		if err := mgr.Send(schema.NewAdd(e)); err != nil {
			return durations, fmt.Errorf("send %d: %w", j, err)
		}
		if err := waitEcho(echoes, key, config.Timeout); err != nil {
			return durations, fmt.Errorf("round-trip %d: %w", j, err)
		}
		durations = append(durations, time.Since(start))
	}
	return durations, nil
}

func waitConnected(states <-chan conn.State, timeout time.Duration) error {
	deadline := time.After(timeout)
	for {
		select {
		case s := <-states:
			switch s {
			case conn.StateConnected:
				return nil
			case conn.StateTerminated:
				return fmt.Errorf("connection terminated before becoming ready")
			}
		case <-deadline:
			return fmt.Errorf("timed out waiting for connection")
		}
	}
}

func waitEcho(echoes <-chan string, key string, timeout time.Duration) error {
	deadline := time.After(timeout)
	for {
		select {
		case got := <-echoes:
			if got == key {
				return nil
			}
		case <-deadline:
			return fmt.Errorf("timed out waiting for echo of %s", key)
		}
	}
}

// computeStats calculates latency statistics from raw durations.
func computeStats(durations []time.Duration) *Stats {
	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}

	return &Stats{
		Min:        sorted[0],
		Max:        sorted[len(sorted)-1],
		Mean:       sum / time.Duration(len(sorted)),
		P50:        sorted[len(sorted)*50/100],
		P95:        sorted[len(sorted)*95/100],
		P99:        sorted[len(sorted)*99/100],
		RoundTrips: len(sorted),
	}
}

// Print writes a human-readable report.
func (s *Stats) Print(w io.Writer) {
	fmt.Fprintf(w, "Echo latency:\n")
	fmt.Fprintf(w, "  Round-trips: %d\n", s.RoundTrips)
	fmt.Fprintf(w, "  Errors:      %d\n", s.Errors)
	fmt.Fprintf(w, "  Min:         %v\n", s.Min)
	fmt.Fprintf(w, "  P50:         %v\n", s.P50)
	fmt.Fprintf(w, "  Mean:        %v\n", s.Mean)
	fmt.Fprintf(w, "  P95:         %v\n", s.P95)
	fmt.Fprintf(w, "  P99:         %v\n", s.P99)
	fmt.Fprintf(w, "  Max:         %v\n", s.Max)
}
