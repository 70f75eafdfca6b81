package temprole

import (
	"context"
	"errors"
	"fmt"

	"github.com/whotypes/rolekeeper/internal/data"
	"github.com/whotypes/rolekeeper/internal/gateway"
	"github.com/whotypes/rolekeeper/internal/notify"
	"go.uber.org/zap"
)

// ErrNoTemporaryRole is returned when a removal finds no record to remove.
var ErrNoTemporaryRole = errors.New("no temporary role recorded")

// RemovalRequest asks for a recorded temporary role to be taken away now.
type RemovalRequest struct {
	GuildID   string
	UserID    string
	RoleID    string
	Reason    string
	RemovedBy string
}

// RemoveTemporaryRole ends a recorded grant early: the role comes off the
// member, then the record is deleted, then the member is told if the grant
// asked for expiry notices. Without a record nothing is revoked. A member who
// already left only loses the record; a failed revoke keeps it.
func (m *Manager) RemoveTemporaryRole(ctx context.Context, req RemovalRequest) (data.TemporaryRole, error) {
	log := m.logger.With(
		zap.String("guildID", req.GuildID),
		zap.String("userID", req.UserID),
		zap.String("roleID", req.RoleID))

	record, err := m.findRecord(ctx, req.GuildID, req.UserID, req.RoleID)
	if err != nil {
		return data.TemporaryRole{}, err
	}

	err = m.gateway.RevokeRole(ctx, req.GuildID, req.UserID, req.RoleID, "Temporary role removed by "+req.RemovedBy)
	if err != nil && !gateway.IsNotFound(err) {
		return data.TemporaryRole{}, fmt.Errorf("failed to remove role: %w", err)
	}

	if _, err := m.store.RemoveTemporaryRole(ctx, req.GuildID, req.UserID, req.RoleID); err != nil {
		log.Error("Removed role but failed to delete its record", zap.Error(err))
		return data.TemporaryRole{}, fmt.Errorf("failed to delete temporary role record: %w", err)
	}

	log.Info("Removed temporary role early", zap.String("removedBy", req.RemovedBy))

	if record.NotifyExpiry {
		m.notifyRemoval(ctx, req, log)
	}
	return record, nil
}

func (m *Manager) findRecord(ctx context.Context, guildID, userID, roleID string) (data.TemporaryRole, error) {
	roles, err := m.store.GetUserTemporaryRoles(ctx, guildID, userID)
	if err != nil {
		return data.TemporaryRole{}, fmt.Errorf("failed to look up temporary role: %w", err)
	}
	for _, r := range roles {
		if r.RoleID == roleID {
			return r, nil
		}
	}
	return data.TemporaryRole{}, ErrNoTemporaryRole
}

// notifyRemoval skips the notice when any party can no longer be resolved.
func (m *Manager) notifyRemoval(ctx context.Context, req RemovalRequest, log *zap.Logger) {
	guild, err := m.gateway.ResolveGuild(ctx, req.GuildID)
	if err != nil {
		log.Debug("Skipping removal notice", zap.Error(err))
		return
	}
	role, err := m.gateway.ResolveRole(ctx, req.GuildID, req.RoleID)
	if err != nil {
		log.Debug("Skipping removal notice", zap.Error(err))
		return
	}
	member, err := m.gateway.ResolveMember(ctx, req.GuildID, req.UserID)
	if err != nil {
		log.Debug("Skipping removal notice", zap.Error(err))
		return
	}
	m.notifier.RoleRemoved(ctx, notify.RemovalNotice{
		Guild:     guild,
		Member:    member,
		Role:      role,
		Reason:    req.Reason,
		RemovedBy: req.RemovedBy,
	})
}
