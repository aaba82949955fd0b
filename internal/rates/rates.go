// internal/rates/rates.go
// USD→CNY exchange-rate cache with TTL refresh and persisted fallback.
// Constructed explicitly with its storage and fetcher injected; there is no
// package-level singleton.
package rates

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"avatar/internal/logger"
)

const (
	// Storage keys, shared with the web client's local store.
	KeyRate     = "usd_to_cny_rate"
	KeyRateTime = "usd_to_cny_rate_time"

	// DefaultRate is used until a fetch succeeds.
	DefaultRate = 7.2

	// DefaultTTL bounds how often the backend is asked for a fresh rate.
	DefaultTTL = time.Hour
)

// Storage persists the cached rate between runs.
type Storage interface {
	Get(key string) (string, error)
	Set(key, value string) error
}

// Fetcher retrieves rates from the backend. FetchCachedRate is the fallback
// endpoint consulted when the live fetch fails.
type Fetcher interface {
	FetchRate(ctx context.Context) (float64, error)
	FetchCachedRate(ctx context.Context) (float64, error)
}

// Service caches the exchange rate in memory for synchronous reads and
// refreshes it from the backend at most once per TTL window. Reads and
// refreshes may come from different goroutines; the refresh itself is
// single-flight, so concurrent callers never stack fetches.
type Service struct {
	storage Storage
	fetcher Fetcher
	ttl     time.Duration
	now     func() time.Time
	log     *logrus.Entry

	mu         sync.Mutex
	rate       float64
	updatedAt  time.Time
	refreshing bool
}

// NewService builds a service seeded from persisted cache when unexpired.
func NewService(storage Storage, fetcher Fetcher, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &Service{
		storage: storage,
		fetcher: fetcher,
		ttl:     ttl,
		now:     time.Now,
		log:     logger.WithComponent("rates"),
		rate:    DefaultRate,
	}
	s.loadPersisted()
	return s
}

func (s *Service) loadPersisted() {
	if s.storage == nil {
		return
	}
	rateStr, err := s.storage.Get(KeyRate)
	if err != nil || rateStr == "" {
		return
	}
	timeStr, err := s.storage.Get(KeyRateTime)
	if err != nil || timeStr == "" {
		return
	}
	rate, err1 := strconv.ParseFloat(rateStr, 64)
	ms, err2 := strconv.ParseInt(timeStr, 10, 64)
	if err1 != nil || err2 != nil || rate <= 0 {
		return
	}
	fetched := time.UnixMilli(ms)
	if s.now().Sub(fetched) >= s.ttl {
		return
	}
	s.mu.Lock()
	s.rate = rate
	s.updatedAt = fetched
	s.mu.Unlock()
}

// Current returns the last known rate without touching the network.
func (s *Service) Current() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rate
}

// Rate returns the rate, refreshing from the backend when the TTL window has
// elapsed. While another caller's refresh is in flight, the last known value
// is returned instead of starting a second fetch.
func (s *Service) Rate(ctx context.Context) float64 {
	s.mu.Lock()
	stale := s.now().Sub(s.updatedAt) > s.ttl
	if !stale || s.refreshing {
		rate := s.rate
		s.mu.Unlock()
		return rate
	}
	s.refreshing = true
	s.mu.Unlock()

	s.refresh(ctx)

	s.mu.Lock()
	s.refreshing = false
	rate := s.rate
	s.mu.Unlock()
	return rate
}

// ForceUpdate refreshes regardless of the TTL window, unless a refresh is
// already in flight.
func (s *Service) ForceUpdate(ctx context.Context) float64 {
	s.mu.Lock()
	if s.refreshing {
		rate := s.rate
		s.mu.Unlock()
		return rate
	}
	s.refreshing = true
	s.mu.Unlock()

	s.refresh(ctx)

	s.mu.Lock()
	s.refreshing = false
	rate := s.rate
	s.mu.Unlock()
	return rate
}

// refresh tries the live endpoint, then the backend's cached endpoint, and
// finally keeps the last known value. Only live fetches are persisted.
func (s *Service) refresh(ctx context.Context) {
	if s.fetcher == nil {
		return
	}

	rate, err := s.fetcher.FetchRate(ctx)
	if err == nil && rate > 0 {
		fetchedAt := s.store(rate)
		s.persist(rate, fetchedAt)
		s.log.WithField("rate", rate).Info("exchange rate updated")
		return
	}
	s.log.WithError(err).Warn("live exchange-rate fetch failed, trying cached endpoint")

	rate, err = s.fetcher.FetchCachedRate(ctx)
	if err == nil && rate > 0 {
		s.store(rate)
		return
	}
	s.log.WithError(err).Warn("cached exchange-rate fetch failed, keeping last known rate")
}

func (s *Service) store(rate float64) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rate = rate
	s.updatedAt = s.now()
	return s.updatedAt
}

func (s *Service) persist(rate float64, fetchedAt time.Time) {
	if s.storage == nil {
		return
	}
	if err := s.storage.Set(KeyRate, strconv.FormatFloat(rate, 'f', -1, 64)); err != nil {
		s.log.WithError(err).Warn("failed to persist exchange rate")
		return
	}
	if err := s.storage.Set(KeyRateTime, strconv.FormatInt(fetchedAt.UnixMilli(), 10)); err != nil {
		s.log.WithError(err).Warn("failed to persist exchange rate timestamp")
	}
}
