package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewRejectsInvalidSpec(t *testing.T) {
	_, err := New("every tuesday", Job{Name: "noop", Run: func(context.Context) error { return nil }})
	if err == nil {
		t.Fatalf("expected invalid spec to be rejected")
	}
}

func TestScheduledJobRuns(t *testing.T) {
	var runs atomic.Int32
	s, err := New("@every 1s", Job{Name: "count", Run: func(context.Context) error {
		runs.Add(1)
		return nil
	}})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	s.Start()

	deadline := time.Now().Add(3 * time.Second)
	for runs.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)

	if runs.Load() == 0 {
		t.Fatalf("expected job to run at least once")
	}
}

func TestRunNowContinuesAfterFailure(t *testing.T) {
	ran := false
	RunNow(
		Job{Name: "fails", Run: func(context.Context) error { return errors.New("boom") }},
		Job{Name: "after", Run: func(context.Context) error { ran = true; return nil }},
	)
	if !ran {
		t.Fatalf("expected second job to run after the first failed")
	}
}
