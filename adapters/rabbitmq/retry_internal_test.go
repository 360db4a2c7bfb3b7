package rabbitmq

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	failures := 0

	v, err := retry(t.Context(), 3, time.Millisecond, func(int, error) { failures++ }, func() (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("refused")
		}

		return 7, nil
	})
	if err != nil || v != 7 {
		t.Fatalf("got %d, %v", v, err)
	}

	if calls != 3 || failures != 2 {
		t.Fatalf("calls=%d failures=%d", calls, failures)
	}
}

func TestRetry_GivesUpAfterRetryCount(t *testing.T) {
	calls := 0
	boom := errors.New("refused")

	_, err := retry(t.Context(), 2, time.Millisecond, nil, func() (struct{}, error) {
		calls++
		return struct{}{}, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("want last error, got %v", err)
	}

	// one initial attempt plus two retries
	if calls != 3 {
		t.Fatalf("calls=%d", calls)
	}
}

func TestRetry_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	calls := 0

	_, err := retry(ctx, 10, time.Hour, nil, func() (int, error) {
		calls++
		return 0, errors.New("refused")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}

	if calls != 1 {
		t.Fatalf("calls=%d", calls)
	}
}
