package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"pdv/backend/internal/cart"
	"pdv/backend/internal/domain"
	"pdv/backend/internal/events"
	"pdv/backend/internal/store"
)

var ErrForbidden = errors.New("admin role required")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo      store.Repository
	carts     *cart.Store
	publisher events.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

func New(repo store.Repository, carts *cart.Store, publisher events.Publisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if carts == nil {
		carts = cart.NewStore(nil, 0, logger)
	}
	if publisher == nil {
		publisher = events.Noop{}
	}

	return &Service{
		repo:      repo,
		carts:     carts,
		publisher: publisher,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// operator is the cart key and movement attribution for the caller.
func (s *Service) operator(ctx context.Context) string {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return cart.AnonymousOperator
	}
	return cart.OperatorKey(strings.TrimSpace(actor.Username))
}

func requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return ErrForbidden
	}
	return nil
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, attrs ...slog.Attr) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	base := []slog.Attr{
		slog.String("action", action),
		slog.String("actor", actor.Username),
		slog.String("actor_role", actor.Role),
		slog.String("entity_type", entityType),
		slog.String("entity_id", entityID),
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, "audit", append(base, attrs...)...)
}

// publish runs fn detached from request cancellation. Events go out after
// commit, so a failure is logged and never undoes the change.
func (s *Service) publish(ctx context.Context, event string, entityID string, fn func(ctx context.Context) error) {
	if err := fn(context.WithoutCancel(ctx)); err != nil {
		s.logger.Warn("event publish failed",
			slog.String("event", event),
			slog.String("entity_id", entityID),
			slog.Any("error", err),
		)
	}
}

func defaultString(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimSpace(value)
}

func clampLimit(limit int, fallback int, max int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > max {
		return max
	}
	return limit
}
