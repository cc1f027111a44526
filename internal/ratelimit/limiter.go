package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	gerrors "github.com/floodgatehq/floodgate/internal/errors"
)

// Class names how the caller authenticated; throttling keys are derived per
// class.
type Class string

const (
	ClassCookie Class = "cookie"
	ClassBearer Class = "bearer"
	ClassBasic  Class = "basic"
	ClassNone   Class = "none"
)

// Classify inspects the request's auth surface and derives the credential
// class and value. Cookies win: interactive users are never throttled.
func Classify(authorization, cookie string) (Class, string) {
	if cookie != "" {
		return ClassCookie, ""
	}
	if v, ok := strings.CutPrefix(authorization, "Bearer "); ok && v != "" {
		return ClassBearer, v
	}
	if v, ok := strings.CutPrefix(authorization, "Basic "); ok && v != "" {
		return ClassBasic, v
	}
	return ClassNone, ""
}

// Key derives the store key for a classified credential. Credential values
// are hashed so the store never holds raw tokens; anonymous callers key on
// their client IP.
func Key(class Class, value, clientIP string) string {
	switch class {
	case ClassBearer, ClassBasic:
		sum := sha256.Sum256([]byte(value))
		return string(class) + ":" + hex.EncodeToString(sum[:])
	default:
		return "none:" + clientIP
	}
}

// Decision is the outcome of one limiter consultation, with the header
// material for denials.
type Decision struct {
	Allowed   bool
	Bypassed  bool
	Class     Class
	Limit     int64
	Remaining int64
	ResetAt   time.Time
}

// RetryAfter returns the whole seconds until the window ends, at least 1.
func (d *Decision) RetryAfter() int64 {
	secs := int64(time.Until(d.ResetAt).Seconds()) + 1
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Limiter applies the fixed-window policy. A disabled limiter allows
// everything.
type Limiter struct {
	store   Store
	limit   int64
	window  time.Duration
	enabled bool
}

// NewLimiter builds a limiter over store. When enabled is false the limiter
// is a no-op and store may be nil.
func NewLimiter(store Store, limit int64, window time.Duration, enabled bool) *Limiter {
	return &Limiter{store: store, limit: limit, window: window, enabled: enabled}
}

// Enabled reports whether the limiter consults its store.
func (l *Limiter) Enabled() bool { return l.enabled }

// Allow consults the store for one request. Cookie-authenticated requests
// bypass the limiter. An unreachable store fails with ServiceUnavailable:
// with limiting enabled the gateway refuses to run unthrottled.
func (l *Limiter) Allow(ctx context.Context, authorization, cookie, clientIP string) (*Decision, error) {
	if !l.enabled {
		return &Decision{Allowed: true, Bypassed: true}, nil
	}
	class, value := Classify(authorization, cookie)
	if class == ClassCookie {
		return &Decision{Allowed: true, Bypassed: true, Class: class}, nil
	}

	result, err := Check(ctx, l.store, Key(class, value, clientIP), l.limit, l.window)
	if err != nil {
		return nil, gerrors.Wrap(gerrors.KindServiceUnavailable, "rate limit store unreachable", err)
	}
	return &Decision{
		Allowed:   result.Allowed,
		Class:     class,
		Limit:     result.Limit,
		Remaining: result.Remaining,
		ResetAt:   result.ResetAt,
	}, nil
}
