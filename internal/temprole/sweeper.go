package temprole

import (
	"context"
	"errors"
	"time"

	"github.com/whotypes/rolekeeper/internal/data"
	"github.com/whotypes/rolekeeper/internal/gateway"
	"github.com/whotypes/rolekeeper/internal/notify"
	"go.uber.org/zap"
)

const expiryReason = "expired"

// SweepReport summarises one pass over the stored grants.
type SweepReport struct {
	Checked int
	Expired int
	Removed int
	Failed  int
}

// SweepExpired removes every grant whose expiry has passed. The role is
// taken off the member first; the record is only deleted once that worked,
// or once the guild, member or role is known to be gone, so a failed removal
// is retried on the next sweep.
func (m *Manager) SweepExpired(ctx context.Context, removedBy string) (SweepReport, error) {
	var report SweepReport

	index, err := m.store.GetAllTemporaryRoles(ctx)
	if err != nil {
		return report, err
	}

	now := m.now()
	for _, grant := range index.Flatten() {
		report.Checked++
		if !grant.Expired(now) {
			continue
		}
		report.Expired++

		if err := ctx.Err(); err != nil {
			return report, err
		}

		if m.expire(ctx, grant, removedBy) {
			report.Removed++
		} else {
			report.Failed++
		}
	}

	return report, nil
}

func (m *Manager) expire(ctx context.Context, grant data.TemporaryRole, removedBy string) bool {
	log := m.logger.With(
		zap.String("guildID", grant.GuildID),
		zap.String("userID", grant.UserID),
		zap.String("roleID", grant.RoleID))

	guild, err := m.gateway.ResolveGuild(ctx, grant.GuildID)
	if err != nil {
		return m.dropIfGone(ctx, grant, err, log)
	}
	role, err := m.gateway.ResolveRole(ctx, grant.GuildID, grant.RoleID)
	if err != nil {
		return m.dropIfGone(ctx, grant, err, log)
	}
	member, err := m.gateway.ResolveMember(ctx, grant.GuildID, grant.UserID)
	if err != nil {
		return m.dropIfGone(ctx, grant, err, log)
	}

	if gateway.HasRole(member, grant.RoleID) {
		if err := m.gateway.RevokeRole(ctx, grant.GuildID, grant.UserID, grant.RoleID, "Temporary role expired"); err != nil {
			log.Error("Failed to remove expired role, will retry", zap.Error(err))
			return false
		}
	}

	if _, err := m.store.RemoveTemporaryRole(ctx, grant.GuildID, grant.UserID, grant.RoleID); err != nil {
		log.Error("Removed expired role but failed to delete its record", zap.Error(err))
		return false
	}

	log.Info("Expired temporary role", zap.Time("expiresAt", grant.ExpiresAt))

	if grant.NotifyExpiry {
		m.notifier.RoleRemoved(ctx, notify.RemovalNotice{
			Guild:     guild,
			Member:    member,
			Role:      role,
			Reason:    expiryReason,
			RemovedBy: removedBy,
		})
	}
	return true
}

// dropIfGone deletes the record of a grant whose guild, member or role no
// longer exists. Other resolution errors keep the record for the next sweep.
func (m *Manager) dropIfGone(ctx context.Context, grant data.TemporaryRole, err error, log *zap.Logger) bool {
	if !gateway.IsNotFound(err) {
		log.Error("Failed to resolve expired grant, will retry", zap.Error(err))
		return false
	}

	if _, err := m.store.RemoveTemporaryRole(ctx, grant.GuildID, grant.UserID, grant.RoleID); err != nil {
		log.Error("Failed to delete stale temporary role record", zap.Error(err))
		return false
	}
	log.Info("Deleted temporary role record for missing target", zap.NamedError("reason", err))
	return true
}

// Sweeper runs SweepExpired on a fixed interval.
type Sweeper struct {
	manager   *Manager
	interval  time.Duration
	removedBy string
	logger    *zap.Logger
}

func NewSweeper(manager *Manager, interval time.Duration, removedBy string, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		manager:   manager,
		interval:  interval,
		removedBy: removedBy,
		logger:    logger.Named("sweeper"),
	}
}

// Run sweeps immediately and then every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	report, err := s.manager.SweepExpired(ctx, s.removedBy)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		s.logger.Error("Expiry sweep failed", zap.Error(err))
		return
	}
	if report.Expired > 0 {
		s.logger.Info("Expiry sweep finished",
			zap.Int("checked", report.Checked),
			zap.Int("expired", report.Expired),
			zap.Int("removed", report.Removed),
			zap.Int("failed", report.Failed))
	}
}
