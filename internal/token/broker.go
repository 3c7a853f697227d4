// Package token caches bearer credentials issued by the market-data provider.
//
// The provider allows one issuance per minute per app key, so a Broker
// coalesces concurrent refreshes into a single network call and retries a
// rate-limited issuance exactly once after waiting out the limit window.
package token

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrRateLimited marks an issuance rejected by the provider's one-per-minute limit.
var ErrRateLimited = errors.New("token issuance rate limited")

const (
	DefaultSafetyMargin     = 5 * time.Minute
	DefaultRateLimitBackoff = 61 * time.Second
	DefaultTTL              = 24 * time.Hour
)

// Token is what an Issuer returns. TTL is zero when the provider omits it.
type Token struct {
	Value string
	TTL   time.Duration
}

// Issuer performs the network call that issues a credential.
type Issuer interface {
	Issue(ctx context.Context) (Token, error)
}

// IssuerFunc adapts a function to Issuer.
type IssuerFunc func(ctx context.Context) (Token, error)

func (f IssuerFunc) Issue(ctx context.Context) (Token, error) { return f(ctx) }

// Broker owns one credential type: its cached value, expiry and the single
// in-flight acquisition slot.
type Broker struct {
	Name             string
	SafetyMargin     time.Duration
	RateLimitBackoff time.Duration
	DefaultTTL       time.Duration

	issuer Issuer
	group  singleflight.Group

	mu        sync.RWMutex
	value     string
	expiresAt time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewBroker creates a Broker with default margins.
func NewBroker(name string, issuer Issuer) *Broker {
	return &Broker{
		Name:             name,
		SafetyMargin:     DefaultSafetyMargin,
		RateLimitBackoff: DefaultRateLimitBackoff,
		DefaultTTL:       DefaultTTL,
		issuer:           issuer,
		now:              time.Now,
		sleep:            sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Acquire returns a valid credential, issuing one if needed. Callers that
// arrive while an issuance is in flight wait for that same result.
func (b *Broker) Acquire(ctx context.Context) (string, error) {
	if v, ok := b.cached(); ok {
		return v, nil
	}

	// The shared acquisition must outlive any single caller's cancellation.
	ch := b.group.DoChan("acquire", func() (any, error) {
		return b.acquire(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// Invalidate drops the cached value, e.g. after the provider answers 401.
func (b *Broker) Invalidate() {
	b.mu.Lock()
	b.value = ""
	b.expiresAt = time.Time{}
	b.mu.Unlock()
}

// ExpiresAt reports the expiry of the cached value (zero when empty).
func (b *Broker) ExpiresAt() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.expiresAt
}

func (b *Broker) cached() (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.value == "" {
		return "", false
	}
	if !b.now().Before(b.expiresAt.Add(-b.SafetyMargin)) {
		return "", false
	}
	return b.value, true
}

func (b *Broker) acquire(ctx context.Context) (string, error) {
	// A caller may have raced past the cache check just as the previous
	// acquisition finished.
	if v, ok := b.cached(); ok {
		return v, nil
	}

	tok, err := b.issuer.Issue(ctx)
	if errors.Is(err, ErrRateLimited) {
		log.Printf("[WARN] %s token rate limited, retrying in %v", b.Name, b.RateLimitBackoff)
		if serr := b.sleep(ctx, b.RateLimitBackoff); serr != nil {
			return "", fmt.Errorf("%s token backoff: %w", b.Name, serr)
		}
		if v, ok := b.cached(); ok {
			return v, nil
		}
		tok, err = b.issuer.Issue(ctx)
	}
	if err != nil {
		return "", fmt.Errorf("issue %s token: %w", b.Name, err)
	}
	if tok.Value == "" {
		return "", fmt.Errorf("issue %s token: empty credential", b.Name)
	}

	ttl := tok.TTL
	if ttl <= 0 {
		ttl = b.DefaultTTL
	}
	expiresAt := b.now().Add(ttl)
	b.mu.Lock()
	b.value = tok.Value
	b.expiresAt = expiresAt
	b.mu.Unlock()

	log.Printf("[INFO] %s token issued, expires at %s", b.Name, expiresAt.Format(time.RFC3339))
	return tok.Value, nil
}
