package token

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestBroker(issuer Issuer) (*Broker, *fakeClock, *[]time.Duration) {
	clock := &fakeClock{t: time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)}
	var slept []time.Duration
	var mu sync.Mutex
	b := NewBroker("test", issuer)
	b.now = clock.Now
	b.sleep = func(_ context.Context, d time.Duration) error {
		mu.Lock()
		slept = append(slept, d)
		mu.Unlock()
		return nil
	}
	return b, clock, &slept
}

func TestBroker_CachesUntilSafetyMargin(t *testing.T) {
	var calls atomic.Int32
	b, clock, _ := newTestBroker(IssuerFunc(func(context.Context) (Token, error) {
		n := calls.Add(1)
		return Token{Value: "tok" + string(rune('0'+n)), TTL: 10 * time.Minute}, nil
	}))
	b.SafetyMargin = 5 * time.Minute
	ctx := context.Background()

	v, err := b.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok1", v)

	clock.Advance(4*time.Minute + 59*time.Second)
	v, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok1", v)
	assert.Equal(t, int32(1), calls.Load())

	clock.Advance(time.Second) // now == expiresAt - margin
	v, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok2", v)
	assert.Equal(t, int32(2), calls.Load())
}

func TestBroker_ConcurrentCallersCoalesce(t *testing.T) {
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	b, _, _ := newTestBroker(IssuerFunc(func(context.Context) (Token, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return Token{Value: "shared", TTL: time.Hour}, nil
	}))

	const n = 50
	var wg sync.WaitGroup
	results := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = b.Acquire(context.Background())
		}(i)
	}

	<-started
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "shared", results[i])
	}
}

func TestBroker_RateLimitThenSuccess(t *testing.T) {
	var calls atomic.Int32
	b, _, slept := newTestBroker(IssuerFunc(func(context.Context) (Token, error) {
		if calls.Add(1) == 1 {
			return Token{}, ErrRateLimited
		}
		return Token{Value: "after-wait", TTL: time.Hour}, nil
	}))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := b.Acquire(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, "after-wait", v)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(2), calls.Load())
	require.Len(t, *slept, 1)
	assert.Equal(t, DefaultRateLimitBackoff, (*slept)[0])
	assert.Greater(t, DefaultRateLimitBackoff, time.Minute)
}

func TestBroker_ValueStoredDuringBackoffSkipsReissue(t *testing.T) {
	var calls atomic.Int32
	b, clock, _ := newTestBroker(IssuerFunc(func(context.Context) (Token, error) {
		calls.Add(1)
		return Token{}, ErrRateLimited
	}))
	b.sleep = func(_ context.Context, d time.Duration) error {
		// another holder of the credential refreshed it meanwhile
		b.mu.Lock()
		b.value = "shared"
		b.expiresAt = clock.Now().Add(time.Hour)
		b.mu.Unlock()
		return nil
	}

	v, err := b.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "shared", v)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, clock.Now().Add(time.Hour), b.ExpiresAt())
}

func TestBroker_SecondRateLimitIsFatal(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	b, _, slept := newTestBroker(IssuerFunc(func(context.Context) (Token, error) {
		calls.Add(1)
		<-release
		return Token{}, ErrRateLimited
	}))

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = b.Acquire(context.Background())
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(2), calls.Load(), "exactly one retry")
	assert.Len(t, *slept, 1)
	for _, err := range errs {
		assert.ErrorIs(t, err, ErrRateLimited)
	}
}

func TestBroker_FailureResetsToEmpty(t *testing.T) {
	var calls atomic.Int32
	b, _, slept := newTestBroker(IssuerFunc(func(context.Context) (Token, error) {
		if calls.Add(1) == 1 {
			return Token{}, errors.New("connection refused")
		}
		return Token{Value: "ok", TTL: time.Hour}, nil
	}))

	_, err := b.Acquire(context.Background())
	require.Error(t, err)
	assert.Empty(t, *slept, "non rate-limit errors are not retried")

	v, err := b.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestBroker_DefaultTTLWhenOmitted(t *testing.T) {
	b, clock, _ := newTestBroker(IssuerFunc(func(context.Context) (Token, error) {
		return Token{Value: "approval"}, nil
	}))
	_, err := b.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(DefaultTTL), b.ExpiresAt())
}

func TestBroker_InvalidateForcesReissue(t *testing.T) {
	var calls atomic.Int32
	b, _, _ := newTestBroker(IssuerFunc(func(context.Context) (Token, error) {
		calls.Add(1)
		return Token{Value: "v", TTL: time.Hour}, nil
	}))
	_, err := b.Acquire(context.Background())
	require.NoError(t, err)
	b.Invalidate()
	_, err = b.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestBroker_CallerCancelDoesNotAbortShared(t *testing.T) {
	release := make(chan struct{})
	var issuerCtxErr error
	b, _, _ := newTestBroker(IssuerFunc(func(ctx context.Context) (Token, error) {
		<-release
		issuerCtxErr = ctx.Err()
		return Token{Value: "v", TTL: time.Hour}, nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := b.Acquire(ctx)
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	close(release)
	v, err := b.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "v", v)
	assert.NoError(t, issuerCtxErr)
}
