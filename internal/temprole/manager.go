// Package temprole grants roles that expire. A grant is two facts kept in
// step: the role on the Discord member and a record in the store. If the
// record cannot be written, a role this package just added is taken back.
package temprole

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/whotypes/rolekeeper/internal/data"
	"github.com/whotypes/rolekeeper/internal/gateway"
	"github.com/whotypes/rolekeeper/internal/notify"
	"go.uber.org/zap"
)

const DefaultBulkCap = 10

// GrantRequest asks for RoleID to be held by UserID until ExpiresAt.
type GrantRequest struct {
	GuildID      string
	UserID       string
	RoleID       string
	ExpiresAt    time.Time
	Notify       bool
	NotifyExpiry bool
	AssignedBy   string
}

type Manager struct {
	gateway    gateway.Gateway
	store      data.TemporaryRoleStore
	notifier   notify.Notifier
	bulkCap    int
	now        func() time.Time
	newBatchID func() string
	logger     *zap.Logger
}

func NewManager(gw gateway.Gateway, store data.TemporaryRoleStore, notifier notify.Notifier, bulkCap int, logger *zap.Logger) *Manager {
	if bulkCap < 1 {
		bulkCap = DefaultBulkCap
	}
	return &Manager{
		gateway:    gw,
		store:      store,
		notifier:   notifier,
		bulkCap:    bulkCap,
		now:        time.Now,
		newBatchID: uuid.NewString,
		logger:     logger.Named("temprole"),
	}
}

func (m *Manager) BulkCap() int {
	return m.bulkCap
}

func grantReason(expiresAt time.Time, assignedBy string) string {
	reason := "Temporary role until " + expiresAt.UTC().Format(time.RFC3339)
	if assignedBy != "" {
		reason += " (by " + assignedBy + ")"
	}
	return reason
}

// GrantTemporaryRole makes sure the member holds the role and a record of the
// grant exists. A member who already holds the role is not granted again, but
// the record is still written so the expiry is refreshed. Expected failures
// are logged and reported as false.
func (m *Manager) GrantTemporaryRole(ctx context.Context, req GrantRequest) bool {
	log := m.logger.With(
		zap.String("guildID", req.GuildID),
		zap.String("userID", req.UserID),
		zap.String("roleID", req.RoleID))

	guild, err := m.gateway.ResolveGuild(ctx, req.GuildID)
	if err != nil {
		log.Error("Failed to resolve guild", zap.Error(err))
		return false
	}
	member, err := m.gateway.ResolveMember(ctx, req.GuildID, req.UserID)
	if err != nil {
		log.Error("Failed to resolve member", zap.Error(err))
		return false
	}
	role, err := m.gateway.ResolveRole(ctx, req.GuildID, req.RoleID)
	if err != nil {
		log.Error("Failed to resolve role", zap.Error(err))
		return false
	}

	grantedNow := false
	if !gateway.HasRole(member, req.RoleID) {
		if err := m.gateway.GrantRole(ctx, req.GuildID, req.UserID, req.RoleID, grantReason(req.ExpiresAt, req.AssignedBy)); err != nil {
			log.Error("Failed to grant role", zap.Error(err))
			return false
		}
		grantedNow = true
	}

	record := data.TemporaryRole{
		GuildID:      req.GuildID,
		UserID:       req.UserID,
		RoleID:       req.RoleID,
		ExpiresAt:    req.ExpiresAt,
		NotifyExpiry: req.NotifyExpiry,
		AssignedAt:   m.now(),
		AssignedBy:   req.AssignedBy,
	}
	if err := m.store.AddTemporaryRole(ctx, record); err != nil {
		log.Error("Failed to save temporary role", zap.Error(err))
		if grantedNow {
			m.rollback(ctx, req.GuildID, req.RoleID, []string{req.UserID})
		}
		return false
	}

	log.Info("Granted temporary role",
		zap.Time("expiresAt", req.ExpiresAt),
		zap.Bool("alreadyHeld", !grantedNow))

	if req.Notify && grantedNow {
		m.notifier.RoleGranted(ctx, notify.GrantNotice{
			Guild:     guild,
			Member:    member,
			Role:      role,
			ExpiresAt: req.ExpiresAt,
		})
	}
	return true
}

// rollback takes back roles granted by a call whose record was not saved.
// A failure here leaves a role on the member with no record; it is logged and
// otherwise accepted.
func (m *Manager) rollback(ctx context.Context, guildID, roleID string, userIDs []string) {
	for _, userID := range userIDs {
		err := m.gateway.RevokeRole(ctx, guildID, userID, roleID, "Rolling back temporary role: record could not be saved")
		if err != nil {
			m.logger.Error("Rollback failed, role left without a record",
				zap.String("guildID", guildID),
				zap.String("userID", userID),
				zap.String("roleID", roleID),
				zap.Error(err))
			continue
		}
		m.logger.Warn("Rolled back role grant",
			zap.String("guildID", guildID),
			zap.String("userID", userID),
			zap.String("roleID", roleID))
	}
}

// RevokeTemporaryRole deletes the record only. The role itself stays on the
// member; callers that want it gone revoke it through the gateway first.
// Returns whether a record was removed.
func (m *Manager) RevokeTemporaryRole(ctx context.Context, guildID, userID, roleID string) bool {
	removed, err := m.store.RemoveTemporaryRole(ctx, guildID, userID, roleID)
	if err != nil {
		m.logger.Error("Failed to remove temporary role record",
			zap.String("guildID", guildID),
			zap.String("userID", userID),
			zap.String("roleID", roleID),
			zap.Error(err))
		return false
	}
	return removed
}

func (m *Manager) GetUserTemporaryRoles(ctx context.Context, guildID, userID string) ([]data.TemporaryRole, error) {
	roles, err := m.store.GetUserTemporaryRoles(ctx, guildID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get temporary roles for user %s: %w", userID, err)
	}
	return roles, nil
}

func (m *Manager) GetTemporaryRolesForGuild(ctx context.Context, guildID string) ([]data.TemporaryRole, error) {
	roles, err := m.store.GetTemporaryRolesForGuild(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to get temporary roles for guild %s: %w", guildID, err)
	}
	return roles, nil
}
