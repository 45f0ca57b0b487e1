package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/iklevente/crewdo-backend-sub001/internal/app/registry"
	"github.com/iklevente/crewdo-backend-sub001/internal/core/contracts"
	"github.com/iklevente/crewdo-backend-sub001/internal/core/domain"
	"github.com/iklevente/crewdo-backend-sub001/pkg/logging"
)

var presenceTracer = otel.Tracer("presence-service")

// PresenceService derives and persists per-user presence. Automatic
// transitions follow connection lifecycle; a manual status suppresses
// them until explicitly cleared. The persisted record is advisory:
// registry state and the database may transiently disagree because
// writes happen outside the registry lock.
type PresenceService struct {
	log        *slog.Logger
	repo       domain.PresenceRepository
	registry   *registry.Registry
	dispatcher *Dispatcher
	roster     contracts.ChannelRoster

	// mu serializes read-modify-write transitions per instance so two
	// concurrent events cannot interleave on the same record.
	mu sync.Mutex
}

func NewPresenceService(
	log *slog.Logger,
	repo domain.PresenceRepository,
	reg *registry.Registry,
	dispatcher *Dispatcher,
	roster contracts.ChannelRoster,
) *PresenceService {
	return &PresenceService{
		log:        log,
		repo:       repo,
		registry:   reg,
		dispatcher: dispatcher,
		roster:     roster,
	}
}

// transition loads (or lazily creates) the user's record, applies the
// mutation, persists, and broadcasts only when the observable status
// changed. Suppressing the unchanged-status broadcast is a correctness
// property: broadcasting is O(members) fan-out.
func (s *PresenceService) transition(ctx context.Context, userID string, apply func(rec *domain.PresenceRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.repo.Get(ctx, userID)
	switch {
	case errors.Is(err, domain.ErrPresenceNotFound):
		rec = &domain.PresenceRecord{
			UserID: userID,
			Status: domain.StatusOffline,
			Source: domain.SourceAutomatic,
		}
	case err != nil:
		return fmt.Errorf("load presence: %w", err)
	}

	before := rec.Observable()
	apply(rec)
	rec.UpdatedAt = time.Now()

	if err := s.repo.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("persist presence: %w", err)
	}
	after := rec.Observable()
	if after == before {
		return nil
	}
	s.dispatcher.PublishPresenceUpdate(ctx, domain.PresenceEvent{
		UserID:     userID,
		Status:     after,
		LastSeenAt: rec.LastSeenAt,
	})
	s.log.InfoContext(ctx, "presence - transition - status changed", logging.User(userID), "from", before, "to", after, "source", rec.Source)
	return nil
}

// HandleConnect runs on a user's first connection admission. A manual
// override, if set, survives the reconnect untouched.
func (s *PresenceService) HandleConnect(ctx context.Context, userID string) error {
	ctx, span := presenceTracer.Start(ctx, "PresenceService.HandleConnect", trace.WithAttributes(
		attribute.String("user_id", userID),
	))
	defer span.End()
	err := s.transition(ctx, userID, func(rec *domain.PresenceRecord) {
		if rec.Source == domain.SourceManual {
			return
		}
		rec.Status = domain.StatusOnline
		rec.Source = domain.SourceAutomatic
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "connect transition failed")
		s.log.ErrorContext(ctx, "presence - handle connect - transition failed", logging.User(userID), logging.Err(err))
	}
	return err
}

// HandleDisconnect runs when a user's last connection closes.
func (s *PresenceService) HandleDisconnect(ctx context.Context, userID string) error {
	ctx, span := presenceTracer.Start(ctx, "PresenceService.HandleDisconnect", trace.WithAttributes(
		attribute.String("user_id", userID),
	))
	defer span.End()
	err := s.transition(ctx, userID, func(rec *domain.PresenceRecord) {
		rec.LastSeenAt = time.Now()
		if rec.Source == domain.SourceManual {
			return
		}
		rec.Status = domain.StatusOffline
		rec.Source = domain.SourceAutomatic
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "disconnect transition failed")
		s.log.ErrorContext(ctx, "presence - handle disconnect - transition failed", logging.User(userID), logging.Err(err))
	}
	return err
}

// SetManual records an explicit user status choice. Automatic
// connect/disconnect events no longer change status until ClearManual.
func (s *PresenceService) SetManual(ctx context.Context, userID string, status domain.Status) error {
	if !domain.ValidStatus(status) {
		return fmt.Errorf("%w: unknown status %q", domain.ErrValidation, status)
	}
	ctx, span := presenceTracer.Start(ctx, "PresenceService.SetManual", trace.WithAttributes(
		attribute.String("user_id", userID),
		attribute.String("status", string(status)),
	))
	defer span.End()
	err := s.transition(ctx, userID, func(rec *domain.PresenceRecord) {
		rec.Status = status
		rec.Source = domain.SourceManual
		manual := status
		rec.ManualStatus = &manual
	})
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// ClearManual drops the override and recomputes status from current
// connection liveness.
func (s *PresenceService) ClearManual(ctx context.Context, userID string) error {
	ctx, span := presenceTracer.Start(ctx, "PresenceService.ClearManual", trace.WithAttributes(
		attribute.String("user_id", userID),
	))
	defer span.End()
	online := s.registry.IsOnline(userID)
	err := s.transition(ctx, userID, func(rec *domain.PresenceRecord) {
		rec.Source = domain.SourceAutomatic
		rec.ManualStatus = nil
		if online {
			rec.Status = domain.StatusOnline
		} else {
			rec.Status = domain.StatusOffline
		}
	})
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// Snapshot builds the roster pushed to a freshly admitted connection:
// every user present in any of the given channels with their
// observable status.
func (s *PresenceService) Snapshot(ctx context.Context, channelIDs []string) (domain.PresenceSnapshot, error) {
	ctx, span := presenceTracer.Start(ctx, "PresenceService.Snapshot", trace.WithAttributes(
		attribute.Int("channels", len(channelIDs)),
	))
	defer span.End()

	seen := make(map[string]struct{})
	var snap domain.PresenceSnapshot
	for _, channelID := range channelIDs {
		users, err := s.roster.PresentUsers(ctx, channelID)
		if err != nil {
			span.RecordError(err)
			s.log.WarnContext(ctx, "presence - snapshot - roster read failed", logging.Channel(channelID), logging.Err(err))
			continue
		}
		for _, userID := range users {
			if _, dup := seen[userID]; dup {
				continue
			}
			seen[userID] = struct{}{}
			ev := domain.PresenceEvent{UserID: userID, Status: domain.StatusOnline}
			if rec, err := s.repo.Get(ctx, userID); err == nil {
				ev.Status = rec.Observable()
				ev.LastSeenAt = rec.LastSeenAt
			}
			snap.Users = append(snap.Users, ev)
		}
	}
	return snap, nil
}
