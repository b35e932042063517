package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"fuelsync/backend/internal/domain"
	"fuelsync/backend/internal/metrics"
	"fuelsync/backend/internal/report"
	"fuelsync/backend/internal/settlement"
	"fuelsync/backend/internal/store"
	"fuelsync/backend/internal/xid"
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
	DefaultStationID string
	Policy           settlement.Policy
	// CreditHardStop rejects a transaction that would take any creditor past
	// its limit. Otherwise the overrun is only reported as a warning.
	CreditHardStop bool
	Authorizer     Authorizer
	Logger         *zap.Logger
	Metrics        *metrics.Metrics
	Now            func() time.Time
}

type Service struct {
	repo             store.Repository
	reports          *report.Engine
	policy           settlement.Policy
	creditHardStop   bool
	authorizer       Authorizer
	logger           *zap.Logger
	metrics          *metrics.Metrics
	now              func() time.Time
	defaultStationID string
}

func New(repo store.Repository, reports *report.Engine, opts Options) *Service {
	if opts.DefaultStationID == "" {
		opts.DefaultStationID = "main-station"
	}
	if opts.Policy.MonetaryTolerance.IsZero() && opts.Policy.InvestigateThresholdPct.IsZero() {
		opts.Policy = settlement.DefaultPolicy()
	}
	if opts.Authorizer == nil {
		opts.Authorizer = RoleAuthorizer{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if reports == nil {
		reports = report.NewEngine(repo, nil, 0, opts.Policy, opts.Metrics)
	}

	return &Service{
		repo:             repo,
		reports:          reports,
		policy:           opts.Policy,
		creditHardStop:   opts.CreditHardStop,
		authorizer:       opts.Authorizer,
		logger:           opts.Logger,
		metrics:          opts.Metrics,
		now:              opts.Now,
		defaultStationID: opts.DefaultStationID,
	}
}

func (s *Service) stationOrDefault(stationID string) string {
	stationID = strings.TrimSpace(stationID)
	if stationID == "" {
		return s.defaultStationID
	}
	return stationID
}

func requireActor(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Username == "" {
		return domain.Actor{}, fmt.Errorf("%w: authenticated user required", domain.ErrForbidden)
	}
	return actor, nil
}

// requireRole admits the actor when its role is one of roles.
func requireRole(ctx context.Context, roles ...string) (domain.Actor, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Actor{}, err
	}
	for _, role := range roles {
		if actor.Role == role {
			return actor, nil
		}
	}
	return domain.Actor{}, fmt.Errorf("%w: %s role required", domain.ErrForbidden, strings.Join(roles, " or "))
}

// invalidateReports drops cached summaries after a write. A failure only means
// readers may see a summary up to one cache TTL old.
func (s *Service) invalidateReports(ctx context.Context, stationID string) {
	if err := s.reports.Invalidate(ctx, stationID); err != nil {
		s.logger.Warn("report cache invalidation failed", zap.String("station_id", stationID), zap.Error(err))
	}
}

func (s *Service) logAudit(ctx context.Context, stationID string, action string, entityType string, entityID string, detail string) {
	if stationID == "" {
		stationID = s.defaultStationID
	}

	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		StationID:     stationID,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now(),
	}); err != nil {
		s.metrics.IncAuditLogFailure()
		s.logger.Warn("failed to write audit log",
			zap.String("action", action),
			zap.String("entity_type", entityType),
			zap.String("entity_id", entityID),
			zap.Error(err),
		)
	}
}

func parseDate(value string, field string) (time.Time, error) {
	parsed, err := time.Parse(domain.DateLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be YYYY-MM-DD", domain.ErrInvalidInput, field)
	}
	return parsed.UTC(), nil
}
