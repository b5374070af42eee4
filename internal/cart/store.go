package cart

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"pdv/backend/internal/cache"
	"pdv/backend/internal/domain"
)

// Store keeps one cart per operator. Calls for the same operator are
// serialized on that operator's lock; different operators never contend.
type Store struct {
	mu        sync.Mutex
	sessions  map[string]*session
	ttl       time.Duration
	snapshots cache.CartCache
	logger    *slog.Logger
	now       func() time.Time
}

type session struct {
	mu      sync.Mutex
	cart    domain.Cart
	touched time.Time
	loaded  bool
	evicted bool
}

// NewStore builds a cart store. A ttl of zero disables expiry.
func NewStore(snapshots cache.CartCache, ttl time.Duration, logger *slog.Logger) *Store {
	if snapshots == nil {
		snapshots = cache.NoopCartCache{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		sessions:  make(map[string]*session),
		ttl:       ttl,
		snapshots: snapshots,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Update runs fn against a working copy of the operator's cart while holding
// the operator lock. The copy replaces the cart only if fn returns nil;
// otherwise the cart is left exactly as it was.
func (s *Store) Update(ctx context.Context, operator string, fn func(c *domain.Cart) error) (domain.Cart, error) {
	key := OperatorKey(operator)
	sess := s.lock(ctx, key)
	defer sess.mu.Unlock()

	working := sess.cart.Clone()
	if err := fn(&working); err != nil {
		return sess.cart.Clone(), err
	}

	Recalculate(&working)
	working.OperatorID = key
	working.UpdatedAt = s.now()
	sess.cart = working
	sess.touched = working.UpdatedAt
	s.persist(ctx, key, working)

	return working.Clone(), nil
}

// Snapshot returns a read-only copy of the operator's cart.
func (s *Store) Snapshot(ctx context.Context, operator string) domain.Cart {
	key := OperatorKey(operator)
	sess := s.lock(ctx, key)
	defer sess.mu.Unlock()
	return sess.cart.Clone()
}

// Reset empties the operator's cart.
func (s *Store) Reset(ctx context.Context, operator string) domain.Cart {
	c, _ := s.Update(ctx, operator, func(c *domain.Cart) error {
		Clear(c)
		return nil
	})
	return c
}

// Sweep evicts carts idle for longer than the ttl and returns how many were
// dropped. Carts currently locked by a request are skipped.
func (s *Store) Sweep(ctx context.Context) int {
	if s.ttl <= 0 {
		return 0
	}
	now := s.now()

	s.mu.Lock()
	expired := make([]string, 0)
	for key, sess := range s.sessions {
		if !sess.mu.TryLock() {
			continue
		}
		if s.expired(sess, now) {
			sess.evicted = true
			delete(s.sessions, key)
			expired = append(expired, key)
		}
		sess.mu.Unlock()
	}
	s.mu.Unlock()

	for _, key := range expired {
		if err := s.snapshots.Delete(ctx, key); err != nil {
			s.logger.Warn("cart snapshot delete failed", slog.String("operator", key), slog.Any("error", err))
		}
	}
	if len(expired) > 0 {
		s.logger.Info("evicted idle carts", slog.Int("count", len(expired)))
	}
	return len(expired)
}

// Len reports how many carts are held in memory.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// lock returns the operator's session with its mutex held, creating,
// restoring or expiring it as needed.
func (s *Store) lock(ctx context.Context, key string) *session {
	for {
		s.mu.Lock()
		sess, ok := s.sessions[key]
		if !ok {
			sess = &session{cart: New(key), touched: s.now()}
			s.sessions[key] = sess
		}
		s.mu.Unlock()

		sess.mu.Lock()
		if sess.evicted {
			sess.mu.Unlock()
			continue
		}
		if !sess.loaded {
			s.restore(ctx, key, sess)
		}
		if s.expired(sess, s.now()) {
			sess.cart = New(key)
			sess.touched = s.now()
			if err := s.snapshots.Delete(ctx, key); err != nil {
				s.logger.Warn("cart snapshot delete failed", slog.String("operator", key), slog.Any("error", err))
			}
		}
		return sess
	}
}

func (s *Store) restore(ctx context.Context, key string, sess *session) {
	sess.loaded = true
	snapshot, ok, err := s.snapshots.Get(ctx, key)
	if err != nil {
		s.logger.Warn("cart snapshot load failed", slog.String("operator", key), slog.Any("error", err))
		return
	}
	if !ok || snapshot == nil {
		return
	}
	restored := snapshot.Clone()
	restored.OperatorID = key
	Recalculate(&restored)
	sess.cart = restored
	if !restored.UpdatedAt.IsZero() {
		sess.touched = restored.UpdatedAt
	}
}

func (s *Store) expired(sess *session, now time.Time) bool {
	if s.ttl <= 0 || sess.touched.IsZero() {
		return false
	}
	return now.Sub(sess.touched) > s.ttl
}

func (s *Store) persist(ctx context.Context, key string, c domain.Cart) {
	var err error
	if len(c.Items) == 0 {
		err = s.snapshots.Delete(ctx, key)
	} else {
		err = s.snapshots.Set(ctx, key, &c, s.ttl)
	}
	if err != nil {
		s.logger.Warn("cart snapshot write failed", slog.String("operator", key), slog.Any("error", err))
	}
}
