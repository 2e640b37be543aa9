// Package jobs runs the periodic sweeps behind the session lifecycle:
// phase transitions driven purely by the clock (draft expiry, invitation
// expiry, completion), removal of stale availability slots and the
// payout-availability sweep that settles mentors after the refund window.
package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/healthy-mentoring/server-go/internal/repository"
	"github.com/healthy-mentoring/server-go/internal/service"
)

const sweepTimeout = 30 * time.Second

type CleanupJob struct {
	sessionRepo  repository.SessionRepository
	availability *service.AvailabilityService
	settlement   *service.SettlementService
	interval     time.Duration
	now          func() time.Time
	done         chan struct{}
}

func NewCleanupJob(
	sessionRepo repository.SessionRepository,
	availability *service.AvailabilityService,
	settlement *service.SettlementService,
	interval time.Duration,
) *CleanupJob {
	return &CleanupJob{
		sessionRepo:  sessionRepo,
		availability: availability,
		settlement:   settlement,
		interval:     interval,
		now:          time.Now,
		done:         make(chan struct{}),
	}
}

// WithClock overrides the job clock. Tests only.
func (j *CleanupJob) WithClock(now func() time.Time) *CleanupJob {
	j.now = now
	return j
}

func (j *CleanupJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("cleanup job started")
}

func (j *CleanupJob) Stop() {
	close(j.done)
	log.Info().Msg("cleanup job stopped")
}

func (j *CleanupJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.Sweep()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.Sweep()
		}
	}
}

// Sweep runs one full pass of every cleanup rule. Exported so tests and
// operational tooling can trigger a pass directly.
func (j *CleanupJob) Sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	now := j.now()

	j.runCount(ctx, "expired drafts", func(ctx context.Context) (int64, error) {
		return j.sessionRepo.DeleteExpiredDrafts(ctx, now)
	})
	j.runCount(ctx, "expired invitations", func(ctx context.Context) (int64, error) {
		return j.sessionRepo.ExpireInvited(ctx, now)
	})
	j.runCount(ctx, "finished sessions", func(ctx context.Context) (int64, error) {
		return j.sessionRepo.CompleteConfirmed(ctx, now)
	})

	if removed, err := j.availability.CleanupExpiredSlots(ctx); err != nil {
		log.Error().Err(err).Msg("failed to cleanup expired slots")
	} else if removed > 0 {
		log.Info().Int("count", removed).Msg("cleaned up expired slots")
	}

	j.sweepPayouts(ctx, now)
}

// sweepPayouts marks eligible completed sessions payout_available. The
// candidate query uses the refund-window cutoff; the settlement service
// re-checks eligibility under the row lock, so a racing manual refund
// cannot be overtaken.
func (j *CleanupJob) sweepPayouts(ctx context.Context, now time.Time) {
	cutoff := now.Add(-j.settlement.RefundWindow())
	candidates, err := j.sessionRepo.FindPayoutCandidates(ctx, cutoff)
	if err != nil {
		log.Error().Err(err).Msg("failed to find payout candidates")
		return
	}

	var settled int
	for _, session := range candidates {
		credited, err := j.settlement.MarkPayoutAvailable(ctx, session.ID)
		if err != nil {
			log.Error().Err(err).Str("sessionId", session.ID).Msg("payout sweep failed for session")
			continue
		}
		if credited > 0 {
			settled++
		}
	}
	if settled > 0 {
		log.Info().Int("count", settled).Msg("sessions marked payout available")
	}
}

func (j *CleanupJob) runCount(ctx context.Context, name string, fn func(context.Context) (int64, error)) {
	count, err := fn(ctx)
	if err != nil {
		log.Error().Err(err).Msgf("failed to cleanup %s", name)
	} else if count > 0 {
		log.Info().Int64("count", count).Msgf("cleaned up %s", name)
	}
}
