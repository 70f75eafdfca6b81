package temprole

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/whotypes/rolekeeper/internal/data"
	"github.com/whotypes/rolekeeper/internal/gateway"
	"github.com/whotypes/rolekeeper/internal/notify"
	"go.uber.org/zap"
)

const msgAlreadyHasRole = "already has role"

// BulkRequest grants one role with one expiry to several users.
type BulkRequest struct {
	GuildID      string
	UserIDs      []string
	RoleID       string
	ExpiresAt    time.Time
	Notify       bool
	NotifyExpiry bool
	AssignedBy   string
}

type UserResult struct {
	UserID  string `json:"userId"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// BulkResult reports the outcome per user, in request order. Error is set
// when the whole batch failed for one reason.
type BulkResult struct {
	Success int          `json:"success"`
	Failed  int          `json:"failed"`
	Results []UserResult `json:"results"`
	Error   string       `json:"error,omitempty"`
}

func (r *BulkResult) tally() {
	r.Success, r.Failed = 0, 0
	for _, res := range r.Results {
		if res.Success {
			r.Success++
		} else {
			r.Failed++
		}
	}
}

// failAll marks every user as failed with msg.
func failAll(userIDs []string, msg string) BulkResult {
	result := BulkResult{Error: msg, Results: make([]UserResult, len(userIDs))}
	for i, userID := range userIDs {
		result.Results[i] = UserResult{UserID: userID, Error: msg}
	}
	result.tally()
	return result
}

// GrantTemporaryRolesBulk grants a role to up to BulkCap users.
//
// Guild and role are resolved once. Users who cannot be resolved fail on
// their own; users who already hold the role succeed without a grant call.
// The rest are granted in a single BulkGrantRole call. When at least one user
// succeeded, the whole requested user list is saved as one batch; if that
// write fails every role granted here is revoked and every user is reported
// as failed.
func (m *Manager) GrantTemporaryRolesBulk(ctx context.Context, req BulkRequest) BulkResult {
	if len(req.UserIDs) > m.bulkCap {
		return failAll(req.UserIDs, fmt.Sprintf("too many users: at most %d can be assigned at once, got %d", m.bulkCap, len(req.UserIDs)))
	}

	userIDs := dedupe(req.UserIDs)
	if len(userIDs) == 0 {
		return BulkResult{Error: "no users given", Results: []UserResult{}}
	}

	log := m.logger.With(
		zap.String("guildID", req.GuildID),
		zap.String("roleID", req.RoleID),
		zap.Int("users", len(userIDs)))

	guild, err := m.gateway.ResolveGuild(ctx, req.GuildID)
	if err != nil {
		log.Error("Bulk grant: failed to resolve guild", zap.Error(err))
		return failAll(userIDs, "guild not found")
	}
	role, err := m.gateway.ResolveRole(ctx, req.GuildID, req.RoleID)
	if err != nil {
		log.Error("Bulk grant: failed to resolve role", zap.Error(err))
		return failAll(userIDs, "role not found")
	}

	result := BulkResult{Results: make([]UserResult, len(userIDs))}

	// pending holds the positions of members that still need the role.
	var pending []int
	members := make([]*discordgo.Member, len(userIDs))
	for i, userID := range userIDs {
		result.Results[i].UserID = userID

		member, err := m.gateway.ResolveMember(ctx, req.GuildID, userID)
		if err != nil {
			if gateway.IsNotFound(err) {
				result.Results[i].Error = "member not found"
			} else {
				result.Results[i].Error = err.Error()
			}
			log.Warn("Bulk grant: failed to resolve member", zap.String("userID", userID), zap.Error(err))
			continue
		}
		members[i] = member

		if gateway.HasRole(member, req.RoleID) {
			result.Results[i].Success = true
			result.Results[i].Message = msgAlreadyHasRole
			continue
		}
		pending = append(pending, i)
	}

	var granted []int
	if len(pending) > 0 {
		batch := make([]string, len(pending))
		for j, i := range pending {
			batch[j] = userIDs[i]
		}

		errs := m.gateway.BulkGrantRole(ctx, req.GuildID, req.RoleID, batch, grantReason(req.ExpiresAt, req.AssignedBy))
		for j, i := range pending {
			var grantErr error
			if j < len(errs) {
				grantErr = errs[j]
			} else {
				grantErr = fmt.Errorf("no result from bulk grant")
			}

			if grantErr != nil {
				result.Results[i].Error = grantErr.Error()
				log.Warn("Bulk grant: failed to grant role", zap.String("userID", userIDs[i]), zap.Error(grantErr))
				continue
			}
			result.Results[i].Success = true
			result.Results[i].Message = "role granted"
			granted = append(granted, i)
		}
	}

	result.tally()
	if result.Success == 0 {
		return result
	}

	// The full requested list is saved, including users whose grant failed
	// above; the per-user results stay accurate.
	batch := data.TemporaryRoleBatch{
		ID:           m.newBatchID(),
		GuildID:      req.GuildID,
		UserIDs:      userIDs,
		RoleID:       req.RoleID,
		ExpiresAt:    req.ExpiresAt,
		NotifyExpiry: req.NotifyExpiry,
		AssignedAt:   m.now(),
		AssignedBy:   req.AssignedBy,
	}
	if err := m.store.AddMultipleTemporaryRoles(ctx, batch); err != nil {
		log.Error("Bulk grant: failed to save batch, rolling back", zap.String("batchID", batch.ID), zap.Error(err))

		rollback := make([]string, len(granted))
		for j, i := range granted {
			rollback[j] = userIDs[i]
		}
		m.rollback(ctx, req.GuildID, req.RoleID, rollback)

		return failAll(userIDs, "failed to save temporary roles")
	}

	log.Info("Bulk granted temporary role",
		zap.String("batchID", batch.ID),
		zap.Int("success", result.Success),
		zap.Int("failed", result.Failed))

	if req.Notify {
		for _, i := range granted {
			m.notifier.RoleGranted(ctx, notify.GrantNotice{
				Guild:     guild,
				Member:    members[i],
				Role:      role,
				ExpiresAt: req.ExpiresAt,
			})
		}
	}

	return result
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
