package cart

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-metal/internal/kv"
	"github.com/noah-isme/backend-metal/internal/lock"
)

// ErrInvalidSession is returned for session identifiers that cannot be used as key segments.
var ErrInvalidSession = errors.New("invalid cart session")

var sessionPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Service opens per-session carts and serialises their mutations.
type Service struct {
	Store      kv.Store
	Locker     lock.Locker
	Delivery   DeliveryPricer
	KeyPrefix  string
	StorageKey string
	LockTTL    time.Duration
	Logger     zerolog.Logger
	Now        func() time.Time
}

// NewSession returns a fresh session identifier.
func (s *Service) NewSession() string {
	return uuid.NewString()
}

// Key returns the storage key for a session cart.
func (s *Service) Key(session string) string {
	storageKey := s.StorageKey
	if storageKey == "" {
		storageKey = DefaultStorageKey
	}
	prefix := strings.TrimSuffix(s.KeyPrefix, ":")
	if prefix == "" {
		prefix = "cart"
	}
	return fmt.Sprintf("%s:%s:%s", prefix, session, storageKey)
}

// ValidSession reports whether session can be used as a cart identifier.
func ValidSession(session string) bool {
	return sessionPattern.MatchString(session)
}

// Open loads a read-only view of the session cart.
func (s *Service) Open(ctx context.Context, session string) (*Aggregator, error) {
	if s == nil || s.Store == nil {
		return nil, errors.New("cart service not configured")
	}
	if !ValidSession(session) {
		return nil, ErrInvalidSession
	}
	return Open(ctx, Options{
		Store:    s.Store,
		Key:      s.Key(session),
		Delivery: s.Delivery,
		Logger:   s.Logger.With().Str("session_id", session).Logger(),
		Now:      s.Now,
	})
}

// Mutate runs fn against the freshly loaded session cart while holding the session lock.
func (s *Service) Mutate(ctx context.Context, session string, fn func(context.Context, *Aggregator) error) (*Aggregator, error) {
	if s == nil || s.Store == nil {
		return nil, errors.New("cart service not configured")
	}
	if !ValidSession(session) {
		return nil, ErrInvalidSession
	}
	var agg *Aggregator
	run := func(ctx context.Context) error {
		a, err := s.Open(ctx, session)
		if err != nil {
			return err
		}
		agg = a
		return fn(ctx, a)
	}
	if s.Locker == nil {
		if err := run(ctx); err != nil {
			return nil, err
		}
		return agg, nil
	}
	if err := s.Locker.WithLock(ctx, s.Key(session)+":lock", s.LockTTL, run); err != nil {
		return nil, err
	}
	return agg, nil
}
