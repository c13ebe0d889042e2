package service

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"geyim/backend/internal/alerts"
	"geyim/backend/internal/cache"
	"geyim/backend/internal/domain"
	"geyim/backend/internal/events"
	"geyim/backend/internal/store"
)

var (
	ErrForbidden          = errors.New("admin role required")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInactiveAccount    = errors.New("account is inactive")
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	DebtCache    cache.DebtCache
	DebtCacheTTL time.Duration
	Events       events.Publisher
	Alerts       *alerts.Tracker
	// Location is the store time zone used for report day boundaries.
	Location *time.Location
}

type Service struct {
	repo      store.Repository
	debtCache cache.DebtCache
	cacheTTL  time.Duration
	// debtMu orders cache writes against invalidations; debtGen counts
	// invalidations so a reload that overlapped one is not written back.
	debtMu  sync.Mutex
	debtGen uint64
	events  events.Publisher
	alerts  *alerts.Tracker
	loc     *time.Location
}

func New(repo store.Repository, opts Options) *Service {
	if opts.DebtCache == nil {
		opts.DebtCache = cache.NoopDebtCache{}
	}
	if opts.DebtCacheTTL <= 0 {
		opts.DebtCacheTTL = 5 * time.Minute
	}
	if opts.Events == nil {
		opts.Events = events.NoopPublisher{}
	}
	if opts.Alerts == nil {
		opts.Alerts = alerts.NewTracker()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}

	return &Service{
		repo:      repo,
		debtCache: opts.DebtCache,
		cacheTTL:  opts.DebtCacheTTL,
		events:    opts.Events,
		alerts:    opts.Alerts,
		loc:       opts.Location,
	}
}

func requireAdmin(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.Actor{}, ErrForbidden
	}
	return actor, nil
}

func isAdmin(ctx context.Context) bool {
	actor, ok := ActorFromContext(ctx)
	return ok && actor.Role == domain.RoleAdmin
}

func actorName(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok {
		return actor.Username
	}
	return "system"
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 100
	}

	var from time.Time
	if strings.TrimSpace(date) == "" {
		from = time.Now().UTC().Add(-24 * time.Hour)
	} else {
		day, err := s.parseDay(date)
		if err != nil {
			return nil, err
		}
		from = day
	}
	return s.repo.ListAuditLogs(ctx, from, from.AddDate(0, 0, 1), limit)
}

// parseDay reads YYYY-MM-DD as midnight in the store time zone.
func (s *Service) parseDay(value string) (time.Time, error) {
	day, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(value), s.loc)
	if err != nil {
		return time.Time{}, store.ErrInvalidTransaction
	}
	return day, nil
}

func (s *Service) today() time.Time {
	now := time.Now().In(s.loc)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
}

// dayRange resolves optional inclusive start/end dates into a half-open range.
func (s *Service) dayRange(start, end string, defaultStart time.Time) (from time.Time, to time.Time, err error) {
	from, to = defaultStart, s.today()
	if strings.TrimSpace(start) != "" {
		if from, err = s.parseDay(start); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	if strings.TrimSpace(end) != "" {
		if to, err = s.parseDay(end); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, store.ErrInvalidTransaction
	}
	return from, to.AddDate(0, 0, 1), nil
}

func trimPtr(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	return &t
}
