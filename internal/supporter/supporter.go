// Package supporter manages permanent supporter roles.
package supporter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/whotypes/rolekeeper/internal/data"
	"github.com/whotypes/rolekeeper/internal/gateway"
	"go.uber.org/zap"
)

var (
	ErrNotSupporter = errors.New("user is not a recorded supporter")
	ErrSaveFailed   = errors.New("failed to save supporter")
)

type Service struct {
	gateway gateway.Gateway
	store   data.SupporterStore
	now     func() time.Time
	logger  *zap.Logger
}

func NewService(gw gateway.Gateway, store data.SupporterStore, logger *zap.Logger) *Service {
	return &Service{
		gateway: gw,
		store:   store,
		now:     time.Now,
		logger:  logger.Named("supporter"),
	}
}

// Add gives the role and records the grant. A role granted here is taken back
// if the record cannot be written.
func (s *Service) Add(ctx context.Context, guildID, userID, roleID, reason, assignedBy string) (data.SupporterGrant, error) {
	log := s.logger.With(
		zap.String("guildID", guildID),
		zap.String("userID", userID),
		zap.String("roleID", roleID))

	member, err := s.gateway.ResolveMember(ctx, guildID, userID)
	if err != nil {
		return data.SupporterGrant{}, fmt.Errorf("failed to resolve member: %w", err)
	}
	if _, err := s.gateway.ResolveRole(ctx, guildID, roleID); err != nil {
		return data.SupporterGrant{}, fmt.Errorf("failed to resolve role: %w", err)
	}

	grantedNow := false
	if !gateway.HasRole(member, roleID) {
		if err := s.gateway.GrantRole(ctx, guildID, userID, roleID, "Supporter role: "+reasonOrDefault(reason)); err != nil {
			return data.SupporterGrant{}, fmt.Errorf("failed to grant supporter role: %w", err)
		}
		grantedNow = true
	}

	grant := data.SupporterGrant{
		GuildID:    guildID,
		UserID:     userID,
		RoleID:     roleID,
		AssignedAt: s.now(),
		AssignedBy: assignedBy,
		Reason:     reason,
		IsActive:   true,
	}
	if err := s.store.AddSupporter(ctx, grant); err != nil {
		log.Error("Failed to save supporter", zap.Error(err))
		if grantedNow {
			if rbErr := s.gateway.RevokeRole(ctx, guildID, userID, roleID, "Rolling back supporter role: record could not be saved"); rbErr != nil {
				log.Error("Rollback failed, role left without a record", zap.Error(rbErr))
			}
		}
		return data.SupporterGrant{}, fmt.Errorf("%w: %w", ErrSaveFailed, err)
	}

	log.Info("Added supporter", zap.Bool("alreadyHeld", !grantedNow))
	return grant, nil
}

// Remove takes the role off a recorded supporter, then deletes the record.
// Without a record nothing is revoked. A member who already left only loses
// the record; a failed revoke keeps it.
func (s *Service) Remove(ctx context.Context, guildID, userID, roleID, removedBy string) error {
	if _, err := s.find(ctx, guildID, userID, roleID); err != nil {
		return err
	}

	err := s.gateway.RevokeRole(ctx, guildID, userID, roleID, "Supporter role removed by "+removedBy)
	if err != nil && !gateway.IsNotFound(err) {
		return fmt.Errorf("failed to remove supporter role: %w", err)
	}

	if _, err := s.store.RemoveSupporter(ctx, guildID, userID, roleID); err != nil {
		return fmt.Errorf("failed to delete supporter record: %w", err)
	}

	s.logger.Info("Removed supporter",
		zap.String("guildID", guildID),
		zap.String("userID", userID),
		zap.String("roleID", roleID),
		zap.String("removedBy", removedBy))
	return nil
}

func (s *Service) find(ctx context.Context, guildID, userID, roleID string) (data.SupporterGrant, error) {
	grants, err := s.store.GetSupporters(ctx, guildID)
	if err != nil {
		return data.SupporterGrant{}, fmt.Errorf("failed to look up supporter: %w", err)
	}
	for _, g := range grants {
		if g.UserID == userID && g.RoleID == roleID {
			return g, nil
		}
	}
	return data.SupporterGrant{}, ErrNotSupporter
}

func (s *Service) List(ctx context.Context, guildID string) ([]data.SupporterGrant, error) {
	grants, err := s.store.GetSupporters(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to list supporters for guild %s: %w", guildID, err)
	}
	return grants, nil
}

func reasonOrDefault(reason string) string {
	if reason == "" {
		return "no reason given"
	}
	return reason
}
