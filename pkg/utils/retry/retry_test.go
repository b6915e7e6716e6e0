package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/opst/mlcommons/pkg/utils/retry"
)

func TestAttempts(t *testing.T) {
	failure := errors.New("connection refused")

	for name, testcase := range map[string]struct {
		when struct {
			attempts  int
			succeedAt int
			fatal     bool
		}
		then struct {
			calls int
			err   error
		}
	}{
		"succeeds at first": {
			when: struct {
				attempts  int
				succeedAt int
				fatal     bool
			}{attempts: 3, succeedAt: 1},
			then: struct {
				calls int
				err   error
			}{calls: 1},
		},
		"succeeds after retries": {
			when: struct {
				attempts  int
				succeedAt int
				fatal     bool
			}{attempts: 3, succeedAt: 3},
			then: struct {
				calls int
				err   error
			}{calls: 3},
		},
		"gives up": {
			when: struct {
				attempts  int
				succeedAt int
				fatal     bool
			}{attempts: 2, succeedAt: 5},
			then: struct {
				calls int
				err   error
			}{calls: 2, err: failure},
		},
		"not retryable error stops": {
			when: struct {
				attempts  int
				succeedAt int
				fatal     bool
			}{attempts: 3, succeedAt: 5, fatal: true},
			then: struct {
				calls int
				err   error
			}{calls: 1, err: failure},
		},
	} {
		t.Run(name, func(t *testing.T) {
			calls := 0
			got, err := retry.Attempts(
				context.Background(), testcase.when.attempts, retry.StaticBackoff(time.Millisecond),
				func(context.Context) (int, error) {
					calls += 1
					if calls == testcase.when.succeedAt {
						return calls, nil
					}
					if testcase.when.fatal {
						return 0, failure
					}
					return 0, errors.Join(retry.ErrRetry, failure)
				},
			)
			if calls != testcase.then.calls {
				t.Errorf("calls: expected %d, but %d", testcase.then.calls, calls)
			}
			if testcase.then.err == nil {
				if err != nil || got != calls {
					t.Errorf("unexpected result: %d, %v", got, err)
				}
				return
			}
			if !errors.Is(err, testcase.then.err) || errors.Is(err, retry.ErrRetry) {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestBlocking_canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := retry.Blocking(ctx, retry.StaticBackoff(time.Hour), func() (int, error) {
		t.Fatal("should not be called")
		return 0, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestExponentialBackoff(t *testing.T) {
	b := retry.ExponentialBackoff(time.Millisecond, 2)
	began := time.Now()
	for range 3 {
		if err := b(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if elapsed := time.Since(began); elapsed < 7*time.Millisecond {
		t.Errorf("backoff is too short: %s", elapsed)
	}
}
