package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/healthy-mentoring/server-go/internal/config"
	apperrors "github.com/healthy-mentoring/server-go/internal/errors"
	"github.com/healthy-mentoring/server-go/internal/model"
	"github.com/healthy-mentoring/server-go/internal/redis"
	"github.com/healthy-mentoring/server-go/internal/repository"
	"github.com/healthy-mentoring/server-go/internal/schedule"
)

// MentorLocker serializes availability saves per mentor. *redis.Client
// satisfies it. A nil locker or a failed acquisition degrades to
// last-writer-wins, which is logged.
type MentorLocker interface {
	AcquireMentorLock(ctx context.Context, mentorID string, ttl time.Duration) (*redis.MentorLock, error)
}

type SessionChangeOp string

const (
	SessionOpCreate SessionChangeOp = "create"
	SessionOpUpdate SessionChangeOp = "update"
	SessionOpDelete SessionChangeOp = "delete"
)

// SessionChange is a session mutation submitted alongside an availability
// save, applied in the same transaction.
type SessionChange struct {
	Op         SessionChangeOp
	SessionID  string
	AttendeeID *string
	StartAt    time.Time
	EndAt      time.Time
	PriceCents *int64
}

// SlotConversion turns one occurrence of a recurring rule into a
// standalone one-time slot. The rule is removed and its id and creation
// time carry over to the new slot.
type SlotConversion struct {
	RuleID string
	Start  time.Time
	End    time.Time
}

type SaveAvailabilityInput struct {
	EditedDates        []string
	OneTimeSlots       []model.OneTimeSlot
	RecurringSlots     []model.RecurringSlot
	DeleteRecurringIDs []string
	Conversions        []SlotConversion
	SessionChanges     []SessionChange
	ChangedBy          string
}

type SaveAvailabilityResult struct {
	OneTimeCount    int  `json:"oneTimeCount"`
	RecurringCount  int  `json:"recurringCount"`
	SessionsCreated int  `json:"sessionsCreated"`
	SessionsUpdated int  `json:"sessionsUpdated"`
	SessionsDeleted int  `json:"sessionsDeleted"`
	SessionsSkipped int  `json:"sessionsSkipped"`
	HasCollisions   bool `json:"hasCollisions"`
}

type SessionLengthResult struct {
	LengthMinutes int  `json:"lengthMinutes"`
	HasCollisions bool `json:"hasCollisions"`
}

// AvailabilityService owns every mutation of a mentor's slot collections:
// the calendar save, session-length propagation and the expired-slot
// sweep. All mutations recompute the collision flag inside the same
// transaction so the stored flag never disagrees with the stored slots.
type AvailabilityService struct {
	db       TxRunner
	mentors  repository.MentorRepository
	sessions repository.SessionRepository
	zones    schedule.ZoneResolver
	locker   MentorLocker
	now      func() time.Time
}

func NewAvailabilityService(
	db TxRunner,
	mentors repository.MentorRepository,
	sessions repository.SessionRepository,
	zones schedule.ZoneResolver,
	locker MentorLocker,
) *AvailabilityService {
	return &AvailabilityService{
		db:       db,
		mentors:  mentors,
		sessions: sessions,
		zones:    zones,
		locker:   locker,
		now:      time.Now,
	}
}

// WithClock overrides the service clock. Tests only.
func (s *AvailabilityService) WithClock(now func() time.Time) *AvailabilityService {
	s.now = now
	return s
}

func (s *AvailabilityService) mentorRepo(tx *sqlx.Tx) repository.MentorRepository {
	if tx != nil {
		return s.mentors.WithTx(tx)
	}
	return s.mentors
}

func (s *AvailabilityService) sessionRepo(tx *sqlx.Tx) repository.SessionRepository {
	if tx != nil {
		return s.sessions.WithTx(tx)
	}
	return s.sessions
}

// lockMentor takes the per-mentor save lock. On any Redis failure the
// save proceeds unlocked with last-writer-wins semantics.
func (s *AvailabilityService) lockMentor(ctx context.Context, mentorID string) *redis.MentorLock {
	if s.locker == nil {
		return nil
	}
	lock, err := s.locker.AcquireMentorLock(ctx, mentorID, config.AvailabilityLockTTL)
	if err != nil {
		log.Warn().
			Err(err).
			Str("mentorId", mentorID).
			Msg("availability lock unavailable, saving with last-writer-wins")
		return nil
	}
	return lock
}

// Save applies an availability edit: one-time slots on the edited dates
// are replaced, recurring rules are edited or added by id, deletions and
// recurring-to-one-time conversions are applied, and any session changes
// submitted alongside the payload run in the same transaction. The save
// always succeeds even when the resulting calendar has collisions; the
// recomputed flag is returned so the caller can warn.
func (s *AvailabilityService) Save(ctx context.Context, mentorID string, in SaveAvailabilityInput) (*SaveAvailabilityResult, error) {
	lock := s.lockMentor(ctx, mentorID)
	if lock != nil {
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				log.Warn().Err(err).Str("mentorId", mentorID).Msg("failed to release availability lock")
			}
		}()
	}

	now := s.now()
	var result SaveAvailabilityResult

	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		mentor, err := s.mentorRepo(tx).FindByIDForUpdate(ctx, mentorID)
		if err != nil {
			return err
		}
		if mentor == nil {
			return apperrors.NotFound("Mentor")
		}
		loc, err := s.zones.Resolve(mentor.Timezone)
		if err != nil {
			return apperrors.InvalidInput("timezone", "unknown timezone "+mentor.Timezone)
		}

		oneTime := applyOneTimeEdits(mentor.OneTimeSlots, in, loc, mentor.SessionLengthMinutes, now)
		oneTime, recurring := applyRecurringEdits(oneTime, mentor.RecurringSlots, in, now)

		if err := s.applySessionChanges(ctx, tx, mentor, in, &result, now); err != nil {
			return err
		}

		active, err := s.sessionRepo(tx).FindActiveByMentor(ctx, mentorID)
		if err != nil {
			return err
		}
		hasCollisions := schedule.HasCollision(schedule.Input{
			OneTimeSlots:   oneTime,
			RecurringSlots: recurring,
			LengthMinutes:  mentor.SessionLengthMinutes,
			Location:       loc,
			Sessions:       sessionIntervals(active, loc),
			Now:            now,
		})

		if err := s.mentorRepo(tx).UpdateAvailability(ctx, mentorID, oneTime, recurring, hasCollisions); err != nil {
			return err
		}

		result.OneTimeCount = len(oneTime)
		result.RecurringCount = len(recurring)
		result.HasCollisions = hasCollisions
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("mentorId", mentorID).
		Int("oneTimeSlots", result.OneTimeCount).
		Int("recurringSlots", result.RecurringCount).
		Bool("hasCollisions", result.HasCollisions).
		Msg("availability saved")
	return &result, nil
}

// applyOneTimeEdits rebuilds the one-time slot collection: slots on an
// edited local date are dropped and the submitted definitions take their
// place. Slots on untouched dates are preserved as-is.
func applyOneTimeEdits(existing model.OneTimeSlots, in SaveAvailabilityInput, loc *time.Location, lengthMinutes int, now time.Time) model.OneTimeSlots {
	edited := make(map[string]bool, len(in.EditedDates))
	for _, d := range in.EditedDates {
		edited[d] = true
	}

	next := make(model.OneTimeSlots, 0, len(existing)+len(in.OneTimeSlots))
	for _, slot := range existing {
		if edited[slot.Start.In(loc).Format(model.DateLayout)] {
			continue
		}
		next = append(next, slot)
	}
	for _, slot := range in.OneTimeSlots {
		if slot.ID == "" {
			slot.ID = uuid.NewString()
		}
		if slot.Type == "" {
			slot.Type = model.SlotTypeAvailability
		}
		if slot.LengthMinutes == 0 {
			slot.LengthMinutes = lengthMinutes
		}
		if slot.End.IsZero() {
			slot.End = slot.Start.Add(time.Duration(slot.LengthMinutes) * time.Minute)
		}
		if slot.CreatedAt.IsZero() {
			slot.CreatedAt = now
		}
		next = append(next, slot)
	}
	return next
}

// applyRecurringEdits merges submitted rules into the stored collection.
// A rule edited into a different shape loses its accumulated skip and
// booked dates; a same-shape edit unions them. Conversions move a rule
// into the one-time collection keeping its identity.
func applyRecurringEdits(oneTime model.OneTimeSlots, existing model.RecurringSlots, in SaveAvailabilityInput, now time.Time) (model.OneTimeSlots, model.RecurringSlots) {
	deleted := make(map[string]bool, len(in.DeleteRecurringIDs))
	for _, id := range in.DeleteRecurringIDs {
		deleted[id] = true
	}

	byID := make(map[string]model.RecurringSlot, len(existing))
	order := make([]string, 0, len(existing))
	for _, rule := range existing {
		byID[rule.ID] = rule
		order = append(order, rule.ID)
	}

	for _, conv := range in.Conversions {
		rule, ok := byID[conv.RuleID]
		if !ok {
			log.Warn().Str("ruleId", conv.RuleID).Msg("conversion target rule not found, skipping")
			continue
		}
		oneTime = append(oneTime, model.OneTimeSlot{
			ID:            rule.ID,
			Type:          model.SlotTypeConverted,
			Start:         conv.Start,
			End:           conv.End,
			LengthMinutes: int(conv.End.Sub(conv.Start) / time.Minute),
			CreatedAt:     rule.CreatedAt,
		})
		deleted[rule.ID] = true
	}

	for _, edit := range in.RecurringSlots {
		if edit.ID == "" {
			edit.ID = uuid.NewString()
		}
		prev, ok := byID[edit.ID]
		if !ok {
			edit.CreatedAt = now
			byID[edit.ID] = edit
			order = append(order, edit.ID)
			continue
		}
		edit.CreatedAt = prev.CreatedAt
		if prev.SameShape(edit) {
			edit.SkipDates = unionDates(prev.SkipDates, edit.SkipDates)
			edit.BookedDates = unionDates(prev.BookedDates, edit.BookedDates)
		}
		byID[edit.ID] = edit
	}

	next := make(model.RecurringSlots, 0, len(order))
	for _, id := range order {
		if deleted[id] {
			continue
		}
		next = append(next, byID[id])
	}
	return oneTime, next
}

func unionDates(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, d := range a {
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	for _, d := range b {
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	return out
}

// applySessionChanges runs the session mutations submitted with the save.
// Sessions already in a terminal state are never overwritten or deleted
// here; those requests are logged and skipped.
func (s *AvailabilityService) applySessionChanges(ctx context.Context, tx *sqlx.Tx, mentor *model.MentorProfile, in SaveAvailabilityInput, result *SaveAvailabilityResult, now time.Time) error {
	repo := s.sessionRepo(tx)
	for _, change := range in.SessionChanges {
		switch change.Op {
		case SessionOpCreate:
			_, err := repo.Create(ctx, model.CreateSessionParams{
				MentorID:   mentor.ID,
				AttendeeID: change.AttendeeID,
				StartAt:    change.StartAt,
				EndAt:      change.EndAt,
				Status:     model.SessionStatusInvited,
				PriceCents: change.PriceCents,
			})
			if err != nil {
				return err
			}
			result.SessionsCreated++

		case SessionOpUpdate:
			session, err := repo.FindByIDForUpdate(ctx, change.SessionID)
			if err != nil {
				return err
			}
			if session == nil || session.MentorID != mentor.ID {
				log.Warn().Str("sessionId", change.SessionID).Msg("session update target not found, skipping")
				result.SessionsSkipped++
				continue
			}
			if session.Status.IsTerminal() {
				log.Warn().
					Str("sessionId", session.ID).
					Str("status", string(session.Status)).
					Msg("refusing to overwrite terminal session")
				result.SessionsSkipped++
				continue
			}
			snapshot := session.OriginalData
			if snapshot == nil {
				raw, err := json.Marshal(model.SessionSnapshot{
					StartAt:    session.StartAt,
					EndAt:      session.EndAt,
					PriceCents: session.PriceCents,
					Status:     string(session.Status),
				})
				if err != nil {
					return err
				}
				msg := json.RawMessage(raw)
				snapshot = &msg
			}
			price := change.PriceCents
			if price == nil {
				price = session.PriceCents
			}
			// A changed confirmed session needs the attendee's acceptance
			// again, so it goes back to invited.
			if err := repo.UpdateSchedule(ctx, session.ID, change.StartAt, change.EndAt, price, model.SessionStatusInvited, snapshot, in.ChangedBy); err != nil {
				return err
			}
			result.SessionsUpdated++

		case SessionOpDelete:
			session, err := repo.FindByIDForUpdate(ctx, change.SessionID)
			if err != nil {
				return err
			}
			if session == nil || session.MentorID != mentor.ID {
				result.SessionsSkipped++
				continue
			}
			if session.Status.IsTerminal() {
				log.Warn().
					Str("sessionId", session.ID).
					Str("status", string(session.Status)).
					Msg("refusing to delete terminal session")
				result.SessionsSkipped++
				continue
			}
			if err := repo.Delete(ctx, session.ID); err != nil {
				return err
			}
			result.SessionsDeleted++

		default:
			return apperrors.InvalidInput("sessions.op", "unknown operation "+string(change.Op))
		}
	}
	return nil
}

// ChangeSessionLength sets a new standard session duration and recomputes
// every slot's end as start+length, one-time and recurring alike. The
// recomputation is applied even when it introduces collisions; the flag
// comes back true in that case so the conflicts can be surfaced.
func (s *AvailabilityService) ChangeSessionLength(ctx context.Context, mentorID string, lengthMinutes int) (*SessionLengthResult, error) {
	if lengthMinutes <= 0 {
		return nil, apperrors.InvalidInput("sessionLengthMinutes", "must be positive")
	}

	lock := s.lockMentor(ctx, mentorID)
	if lock != nil {
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				log.Warn().Err(err).Str("mentorId", mentorID).Msg("failed to release availability lock")
			}
		}()
	}

	now := s.now()
	var result SessionLengthResult

	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		mentor, err := s.mentorRepo(tx).FindByIDForUpdate(ctx, mentorID)
		if err != nil {
			return err
		}
		if mentor == nil {
			return apperrors.NotFound("Mentor")
		}
		loc, err := s.zones.Resolve(mentor.Timezone)
		if err != nil {
			return apperrors.InvalidInput("timezone", "unknown timezone "+mentor.Timezone)
		}

		oneTime := resizeOneTimeSlots(mentor.OneTimeSlots, lengthMinutes)
		recurring := resizeRecurringSlots(mentor.RecurringSlots, lengthMinutes)

		active, err := s.sessionRepo(tx).FindActiveByMentor(ctx, mentorID)
		if err != nil {
			return err
		}
		// Lengthening can collide with fixed-length sessions; shortening
		// cannot. Either way the resize is applied and the recomputed flag
		// is stored alongside it.
		hasCollisions := schedule.HasCollision(schedule.Input{
			OneTimeSlots:   oneTime,
			RecurringSlots: recurring,
			LengthMinutes:  lengthMinutes,
			Location:       loc,
			Sessions:       sessionIntervals(active, loc),
			Now:            now,
		})

		if err := s.mentorRepo(tx).UpdateSessionLength(ctx, mentorID, lengthMinutes, oneTime, recurring, hasCollisions); err != nil {
			return err
		}
		result = SessionLengthResult{LengthMinutes: lengthMinutes, HasCollisions: hasCollisions}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("mentorId", mentorID).
		Int("lengthMinutes", lengthMinutes).
		Bool("hasCollisions", result.HasCollisions).
		Msg("session length changed")
	return &result, nil
}

func resizeOneTimeSlots(slots model.OneTimeSlots, lengthMinutes int) model.OneTimeSlots {
	next := make(model.OneTimeSlots, len(slots))
	for i, slot := range slots {
		slot.End = slot.Start.Add(time.Duration(lengthMinutes) * time.Minute)
		slot.LengthMinutes = lengthMinutes
		next[i] = slot
	}
	return next
}

func resizeRecurringSlots(rules model.RecurringSlots, lengthMinutes int) model.RecurringSlots {
	next := make(model.RecurringSlots, len(rules))
	for i, rule := range rules {
		if start, err := time.Parse(model.TimeLayout, rule.StartTime); err == nil {
			rule.EndTime = start.Add(time.Duration(lengthMinutes) * time.Minute).Format(model.TimeLayout)
		} else {
			log.Warn().
				Str("ruleId", rule.ID).
				Str("startTime", rule.StartTime).
				Msg("cannot resize rule with unparseable start time")
		}
		next[i] = rule
	}
	return next
}

// CleanupExpiredSlots removes one-time availability slots that ended in
// the past, for every mentor. Converted slots are kept: they mirror a
// session record and expire with it. Returns the number of slots removed.
func (s *AvailabilityService) CleanupExpiredSlots(ctx context.Context) (int, error) {
	ids, err := s.mentors.ListIDs(ctx)
	if err != nil {
		return 0, err
	}

	now := s.now()
	removed := 0
	for _, mentorID := range ids {
		n, err := s.cleanupMentorSlots(ctx, mentorID, now)
		if err != nil {
			log.Error().Err(err).Str("mentorId", mentorID).Msg("slot cleanup failed for mentor")
			continue
		}
		removed += n
	}
	if removed > 0 {
		log.Info().Int("removed", removed).Msg("expired availability slots removed")
	}
	return removed, nil
}

func (s *AvailabilityService) cleanupMentorSlots(ctx context.Context, mentorID string, now time.Time) (int, error) {
	var removed int
	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		mentor, err := s.mentorRepo(tx).FindByIDForUpdate(ctx, mentorID)
		if err != nil {
			return err
		}
		if mentor == nil {
			return nil
		}

		kept := make(model.OneTimeSlots, 0, len(mentor.OneTimeSlots))
		for _, slot := range mentor.OneTimeSlots {
			if slot.Type == model.SlotTypeAvailability && slot.End.Before(now) {
				removed++
				continue
			}
			kept = append(kept, slot)
		}
		if removed == 0 {
			return nil
		}

		loc, err := s.zones.Resolve(mentor.Timezone)
		if err != nil {
			return apperrors.InvalidInput("timezone", "unknown timezone "+mentor.Timezone)
		}
		active, err := s.sessionRepo(tx).FindActiveByMentor(ctx, mentorID)
		if err != nil {
			return err
		}
		hasCollisions := schedule.HasCollision(schedule.Input{
			OneTimeSlots:   kept,
			RecurringSlots: mentor.RecurringSlots,
			LengthMinutes:  mentor.SessionLengthMinutes,
			Location:       loc,
			Sessions:       sessionIntervals(active, loc),
			Now:            now,
		})
		return s.mentorRepo(tx).UpdateAvailability(ctx, mentorID, kept, mentor.RecurringSlots, hasCollisions)
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

func sessionIntervals(sessions []model.Session, loc *time.Location) []schedule.Interval {
	intervals := make([]schedule.Interval, 0, len(sessions))
	for _, session := range sessions {
		intervals = append(intervals, schedule.Interval{
			Start: session.StartAt.In(loc),
			End:   session.EndAt.In(loc),
		})
	}
	return intervals
}
