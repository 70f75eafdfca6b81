// Package gateway is the only place that talks to the Discord REST API for
// role changes. Everything above it works against the Gateway interface.
package gateway

import (
	"context"
	"errors"
	"net/http"
	"slices"

	"github.com/bwmarrin/discordgo"
)

// ErrNotFound is returned when a guild, member or role does not exist or is
// not visible to the bot.
var ErrNotFound = errors.New("not found")

// Gateway resolves and mutates guild roles.
type Gateway interface {
	ResolveGuild(ctx context.Context, guildID string) (*discordgo.Guild, error)
	ResolveMember(ctx context.Context, guildID, userID string) (*discordgo.Member, error)
	ResolveRole(ctx context.Context, guildID, roleID string) (*discordgo.Role, error)
	GrantRole(ctx context.Context, guildID, userID, roleID, reason string) error
	// BulkGrantRole returns one entry per user, in input order; nil means the
	// grant succeeded.
	BulkGrantRole(ctx context.Context, guildID, roleID string, userIDs []string, reason string) []error
	RevokeRole(ctx context.Context, guildID, userID, roleID, reason string) error
}

// DirectMessenger delivers embeds to a user's DMs.
type DirectMessenger interface {
	SendDirectMessage(ctx context.Context, userID string, embed *discordgo.MessageEmbed) error
}

// HasRole reports whether member currently holds roleID.
func HasRole(member *discordgo.Member, roleID string) bool {
	if member == nil {
		return false
	}
	return slices.Contains(member.Roles, roleID)
}

// IsNotFound reports whether err means the target entity does not exist.
func IsNotFound(err error) bool {
	if errors.Is(err, ErrNotFound) || errors.Is(err, discordgo.ErrStateNotFound) {
		return true
	}

	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return false
	}
	if restErr.Message != nil {
		switch restErr.Message.Code {
		case discordgo.ErrCodeUnknownGuild,
			discordgo.ErrCodeUnknownMember,
			discordgo.ErrCodeUnknownRole,
			discordgo.ErrCodeUnknownUser:
			return true
		}
	}
	return restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound
}

// isTransient reports whether a failed REST call is worth retrying.
func isTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) {
		return restErr.Response != nil && restErr.Response.StatusCode >= http.StatusInternalServerError
	}
	return !errors.Is(err, ErrNotFound)
}
