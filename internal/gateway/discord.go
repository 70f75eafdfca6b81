package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/cenkalti/backoff/v4"
	"github.com/whotypes/rolekeeper/internal/cache"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	maxRetries      = 2
	bulkRequestRate = 5
	bulkBurst       = 5
)

// restSession is the part of *discordgo.Session the gateway uses.
type restSession interface {
	Guild(guildID string, options ...discordgo.RequestOption) (*discordgo.Guild, error)
	GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error)
	GuildRoles(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Role, error)
	GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	GuildMemberRoleRemove(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Discord implements Gateway and DirectMessenger on top of discordgo.
type Discord struct {
	session    restSession
	state      *discordgo.State
	members    *cache.MemberCache
	limiter    *rate.Limiter
	newBackOff func() backoff.BackOff
	logger     *zap.Logger
}

// New creates a gateway for s. members may be nil, in which case every
// member lookup goes to the API.
func New(s *discordgo.Session, members *cache.MemberCache, logger *zap.Logger) *Discord {
	return newDiscord(s, s.State, members, logger)
}

func newDiscord(s restSession, state *discordgo.State, members *cache.MemberCache, logger *zap.Logger) *Discord {
	return &Discord{
		session: s,
		state:   state,
		members: members,
		limiter: rate.NewLimiter(rate.Limit(bulkRequestRate), bulkBurst),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 250 * time.Millisecond
			b.MaxElapsedTime = 5 * time.Second
			return backoff.WithMaxRetries(b, maxRetries)
		},
		logger: logger.Named("gateway"),
	}
}

// call runs op with retries on transient failures. Not-found and other
// client errors are returned immediately.
func (d *Discord) call(ctx context.Context, op func() error) error {
	operation := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		err := op()
		if err != nil && !isTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.Retry(operation, backoff.WithContext(d.newBackOff(), ctx))
}

func (d *Discord) ResolveGuild(ctx context.Context, guildID string) (*discordgo.Guild, error) {
	if d.state != nil {
		if guild, err := d.state.Guild(guildID); err == nil {
			return guild, nil
		}
	}

	var guild *discordgo.Guild
	err := d.call(ctx, func() error {
		var err error
		guild, err = d.session.Guild(guildID, discordgo.WithContext(ctx))
		return err
	})
	if err != nil {
		if IsNotFound(err) {
			return nil, fmt.Errorf("guild %s: %w", guildID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to fetch guild %s: %w", guildID, err)
	}
	return guild, nil
}

func (d *Discord) ResolveMember(ctx context.Context, guildID, userID string) (*discordgo.Member, error) {
	if d.members != nil {
		member, ok, err := d.members.Get(ctx, guildID, userID)
		if err != nil {
			d.logger.Warn("Member cache read failed",
				zap.String("guildID", guildID),
				zap.String("userID", userID),
				zap.Error(err))
		} else if ok {
			return member, nil
		}
	}

	var member *discordgo.Member
	err := d.call(ctx, func() error {
		var err error
		member, err = d.session.GuildMember(guildID, userID, discordgo.WithContext(ctx))
		return err
	})
	if err != nil {
		if IsNotFound(err) {
			return nil, fmt.Errorf("member %s: %w", userID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to fetch member %s: %w", userID, err)
	}

	if d.members != nil {
		if err := d.members.Set(ctx, guildID, member); err != nil {
			d.logger.Warn("Member cache write failed", zap.String("userID", userID), zap.Error(err))
		}
	}
	return member, nil
}

func (d *Discord) ResolveRole(ctx context.Context, guildID, roleID string) (*discordgo.Role, error) {
	if d.state != nil {
		if role, err := d.state.Role(guildID, roleID); err == nil {
			return role, nil
		}
	}

	var roles []*discordgo.Role
	err := d.call(ctx, func() error {
		var err error
		roles, err = d.session.GuildRoles(guildID, discordgo.WithContext(ctx))
		return err
	})
	if err != nil {
		if IsNotFound(err) {
			return nil, fmt.Errorf("guild %s: %w", guildID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to fetch roles for guild %s: %w", guildID, err)
	}

	for _, role := range roles {
		if role.ID == roleID {
			return role, nil
		}
	}
	return nil, fmt.Errorf("role %s: %w", roleID, ErrNotFound)
}

func (d *Discord) GrantRole(ctx context.Context, guildID, userID, roleID, reason string) error {
	err := d.call(ctx, func() error {
		return d.session.GuildMemberRoleAdd(guildID, userID, roleID,
			discordgo.WithContext(ctx), discordgo.WithAuditLogReason(reason))
	})
	d.invalidate(ctx, guildID, userID)
	if err != nil {
		return fmt.Errorf("failed to add role %s to %s: %w", roleID, userID, err)
	}
	return nil
}

// BulkGrantRole grants roleID to each user in turn, paced by the gateway's
// limiter so a full batch does not trip Discord's per-route limits.
func (d *Discord) BulkGrantRole(ctx context.Context, guildID, roleID string, userIDs []string, reason string) []error {
	errs := make([]error, len(userIDs))
	for i, userID := range userIDs {
		if err := d.limiter.Wait(ctx); err != nil {
			errs[i] = fmt.Errorf("failed to add role %s to %s: %w", roleID, userID, err)
			continue
		}
		errs[i] = d.GrantRole(ctx, guildID, userID, roleID, reason)
	}
	return errs
}

func (d *Discord) RevokeRole(ctx context.Context, guildID, userID, roleID, reason string) error {
	err := d.call(ctx, func() error {
		return d.session.GuildMemberRoleRemove(guildID, userID, roleID,
			discordgo.WithContext(ctx), discordgo.WithAuditLogReason(reason))
	})
	d.invalidate(ctx, guildID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove role %s from %s: %w", roleID, userID, err)
	}
	return nil
}

func (d *Discord) SendDirectMessage(ctx context.Context, userID string, embed *discordgo.MessageEmbed) error {
	channel, err := d.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to open DM channel with %s: %w", userID, err)
	}
	if _, err := d.session.ChannelMessageSendEmbed(channel.ID, embed, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to send DM to %s: %w", userID, err)
	}
	return nil
}

func (d *Discord) invalidate(ctx context.Context, guildID, userID string) {
	if d.members == nil {
		return
	}
	if err := d.members.Invalidate(ctx, guildID, userID); err != nil {
		d.logger.Warn("Member cache invalidation failed", zap.String("userID", userID), zap.Error(err))
	}
}
