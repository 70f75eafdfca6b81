package discord

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/whotypes/rolekeeper/internal/data"
	"github.com/whotypes/rolekeeper/internal/temprole"
	"go.uber.org/zap"
)

const manualRemovalReason = "removed by a moderator"

var manageRolesPermission int64 = discordgo.PermissionManageRoles

// mentionOrID matches user mentions and bare snowflakes. Role and channel
// mentions are captured in the first group so they can be skipped.
var mentionOrID = regexp.MustCompile(`(<@&|<#)?(\d{15,21})`)

func (h *Handler) registerTempRoleCommands(cmds map[string]*Command) {
	bulkCap := temprole.DefaultBulkCap
	if h.deps.TempRoles != nil {
		bulkCap = h.deps.TempRoles.BulkCap()
	}
	dmPermission := false

	durationOption := &discordgo.ApplicationCommandOption{
		Type:         discordgo.ApplicationCommandOptionString,
		Name:         "duration",
		Description:  "How long to keep the role (e.g. 30m, 12h, 7d, 2w, \"in 3 days\")",
		Required:     true,
		Autocomplete: true,
	}
	notifyOptions := []*discordgo.ApplicationCommandOption{
		{
			Type:        discordgo.ApplicationCommandOptionBoolean,
			Name:        "notify",
			Description: "DM the user when the role is given (default: true)",
		},
		{
			Type:        discordgo.ApplicationCommandOptionBoolean,
			Name:        "notify_expiry",
			Description: "DM the user when the role expires (default: true)",
		},
	}

	subcommands := map[string]func(*discordgo.Session, *discordgo.InteractionCreate, map[string]*discordgo.ApplicationCommandInteractionDataOption){
		"assign": h.handleTempRoleAssign,
		"bulk":   h.handleTempRoleBulk,
		"remove": h.handleTempRoleRemove,
		"list":   h.handleTempRoleList,
	}

	cmds["temprole"] = &Command{
		ApplicationCommand: &discordgo.ApplicationCommand{
			Name:                     "temprole",
			Description:              "Give roles that are removed automatically",
			DefaultMemberPermissions: &manageRolesPermission,
			DMPermission:             &dmPermission,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "assign",
					Description: "Give a member a role for a limited time",
					Options: append([]*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "Member to give the role to", Required: true},
						{Type: discordgo.ApplicationCommandOptionRole, Name: "role", Description: "Role to give", Required: true},
						durationOption,
					}, notifyOptions...),
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "bulk",
					Description: fmt.Sprintf("Give up to %d members a role for a limited time", bulkCap),
					Options: append([]*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionString, Name: "users", Description: fmt.Sprintf("Mentions or IDs, up to %d", bulkCap), Required: true},
						{Type: discordgo.ApplicationCommandOptionRole, Name: "role", Description: "Role to give", Required: true},
						durationOption,
					}, notifyOptions...),
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "remove",
					Description: "Take a temporary role away now",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "Member to take the role from", Required: true},
						{Type: discordgo.ApplicationCommandOptionRole, Name: "role", Description: "Role to remove", Required: true},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "list",
					Description: "Show active temporary roles",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "Only show this member's roles"},
					},
				},
			},
		},
		HandlerFunc: func(s *discordgo.Session, i *discordgo.InteractionCreate) {
			if h.deps.TempRoles == nil {
				h.respondError(s, i, "Temporary roles are not configured on this bot.")
				return
			}
			name, opts := subcommand(i)
			handler, ok := subcommands[name]
			if !ok {
				h.respondError(s, i, fmt.Sprintf("Unknown subcommand: %s", name))
				return
			}
			handler(s, i, opts)
		},
		AutocompleteFunc: h.handleDurationAutocomplete,
	}
}

func (h *Handler) parseExpiry(input string) (time.Time, error) {
	if h.deps.Expiry != nil {
		return h.deps.Expiry.Parse(input)
	}
	d, err := temprole.ParseDuration(input)
	if err != nil {
		return time.Time{}, err
	}
	return time.Now().Add(d), nil
}

func (h *Handler) handleTempRoleAssign(s *discordgo.Session, i *discordgo.InteractionCreate, opts map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	userID, roleID := idOption(opts, "user"), idOption(opts, "role")
	expiresAt, err := h.parseExpiry(stringOption(opts, "duration"))
	if err != nil {
		h.respondError(s, i, fmt.Sprintf("Could not read the duration: %v", err))
		return
	}

	if !h.deferResponse(s, i, true) {
		return
	}
	ctx, cancel := commandContext()
	defer cancel()

	ok := h.deps.TempRoles.GrantTemporaryRole(ctx, temprole.GrantRequest{
		GuildID:      i.GuildID,
		UserID:       userID,
		RoleID:       roleID,
		ExpiresAt:    expiresAt,
		Notify:       boolOption(opts, "notify", true),
		NotifyExpiry: boolOption(opts, "notify_expiry", true),
		AssignedBy:   invokerName(i),
	})
	if !ok {
		h.edit(s, i, errorEmbed(fmt.Sprintf("Could not give <@&%s> to <@%s>. Check that the member is in the server and that my highest role is above the one you picked.", roleID, userID)))
		return
	}

	h.edit(s, i, successEmbed("Temporary role assigned",
		fmt.Sprintf("<@%s> has <@&%s> until <t:%d:F> (<t:%d:R>).", userID, roleID, expiresAt.Unix(), expiresAt.Unix())))
}

func (h *Handler) handleTempRoleBulk(s *discordgo.Session, i *discordgo.InteractionCreate, opts map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	userIDs := parseUserIDs(stringOption(opts, "users"))
	if len(userIDs) == 0 {
		h.respondError(s, i, "No users found. Mention members or paste their IDs, separated by spaces.")
		return
	}
	roleID := idOption(opts, "role")
	expiresAt, err := h.parseExpiry(stringOption(opts, "duration"))
	if err != nil {
		h.respondError(s, i, fmt.Sprintf("Could not read the duration: %v", err))
		return
	}

	if !h.deferResponse(s, i, true) {
		return
	}
	ctx, cancel := commandContext()
	defer cancel()

	result := h.deps.TempRoles.GrantTemporaryRolesBulk(ctx, temprole.BulkRequest{
		GuildID:      i.GuildID,
		UserIDs:      userIDs,
		RoleID:       roleID,
		ExpiresAt:    expiresAt,
		Notify:       boolOption(opts, "notify", true),
		NotifyExpiry: boolOption(opts, "notify_expiry", true),
		AssignedBy:   invokerName(i),
	})
	h.edit(s, i, bulkResultEmbed(result, roleID, expiresAt))
}

func (h *Handler) handleTempRoleRemove(s *discordgo.Session, i *discordgo.InteractionCreate, opts map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	userID, roleID := idOption(opts, "user"), idOption(opts, "role")

	if !h.deferResponse(s, i, true) {
		return
	}
	ctx, cancel := commandContext()
	defer cancel()

	_, err := h.deps.TempRoles.RemoveTemporaryRole(ctx, temprole.RemovalRequest{
		GuildID:   i.GuildID,
		UserID:    userID,
		RoleID:    roleID,
		Reason:    manualRemovalReason,
		RemovedBy: invokerName(i),
	})
	h.edit(s, i, removalEmbed(err, userID, roleID))
}

func removalEmbed(err error, userID, roleID string) *discordgo.MessageEmbed {
	switch {
	case err == nil:
		return successEmbed("Temporary role removed", fmt.Sprintf("Removed <@&%s> from <@%s>.", roleID, userID))
	case errors.Is(err, temprole.ErrNoTemporaryRole):
		return &discordgo.MessageEmbed{
			Title:       "No temporary role found",
			Description: fmt.Sprintf("<@%s> has no temporary record for <@&%s>, so nothing was removed.", userID, roleID),
			Color:       colorWarning,
		}
	default:
		return errorEmbed(fmt.Sprintf("Could not remove <@&%s> from <@%s>: %v", roleID, userID, err))
	}
}

func (h *Handler) handleTempRoleList(s *discordgo.Session, i *discordgo.InteractionCreate, opts map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	ctx, cancel := commandContext()
	defer cancel()

	userID := idOption(opts, "user")

	var (
		roles []data.TemporaryRole
		err   error
		title = "Active temporary roles"
	)
	if userID != "" {
		roles, err = h.deps.TempRoles.GetUserTemporaryRoles(ctx, i.GuildID, userID)
		title = "Temporary roles for member"
	} else {
		roles, err = h.deps.TempRoles.GetTemporaryRolesForGuild(ctx, i.GuildID)
	}
	if err != nil {
		h.logger.Error("Failed to list temporary roles", zap.String("guildID", i.GuildID), zap.Error(err))
		h.respondError(s, i, "Could not load temporary roles. Please try again later.")
		return
	}
	if len(roles) == 0 {
		h.respond(s, i, &discordgo.MessageEmbed{
			Title:       title,
			Description: "No temporary roles are active.",
			Color:       colorInfo,
		}, true)
		return
	}

	h.sendList(s, i, title, "roles", temporaryRoleLines(roles))
}

// parseUserIDs pulls user IDs out of free text in the order given. Role and
// channel mentions are ignored.
func parseUserIDs(input string) []string {
	var ids []string
	for _, m := range mentionOrID.FindAllStringSubmatch(input, -1) {
		if m[1] != "" {
			continue
		}
		ids = append(ids, m[2])
	}
	return ids
}

// temporaryRoleLines renders grants soonest-expiring first.
func temporaryRoleLines(roles []data.TemporaryRole) []string {
	sorted := make([]data.TemporaryRole, len(roles))
	copy(sorted, roles)
	sort.SliceStable(sorted, func(a, b int) bool { return sorted[a].ExpiresAt.Before(sorted[b].ExpiresAt) })

	lines := make([]string, len(sorted))
	for n, r := range sorted {
		bell := ""
		if r.NotifyExpiry {
			bell = " 🔔"
		}
		lines[n] = fmt.Sprintf("**%d.** <@%s> • <@&%s> • expires <t:%d:R>%s", n+1, r.UserID, r.RoleID, r.ExpiresAt.Unix(), bell)
	}
	return lines
}

func bulkResultEmbed(result temprole.BulkResult, roleID string, expiresAt time.Time) *discordgo.MessageEmbed {
	color := colorSuccess
	switch {
	case result.Success == 0:
		color = colorError
	case result.Failed > 0:
		color = colorWarning
	}

	embed := &discordgo.MessageEmbed{
		Title: "Bulk role assignment",
		Description: fmt.Sprintf("<@&%s> until <t:%d:F>\n**%d** succeeded, **%d** failed.",
			roleID, expiresAt.Unix(), result.Success, result.Failed),
		Color:     color,
		Timestamp: time.Now().Format(time.RFC3339),
	}
	if result.Error != "" {
		embed.Description += "\n\n" + result.Error
	}

	var succeeded, failed []string
	for _, r := range result.Results {
		if r.Success {
			line := fmt.Sprintf("<@%s>", r.UserID)
			if r.Message != "" {
				line += " (" + r.Message + ")"
			}
			succeeded = append(succeeded, line)
		} else if result.Error == "" {
			failed = append(failed, fmt.Sprintf("<@%s>: %s", r.UserID, r.Error))
		}
	}
	if len(succeeded) > 0 {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Succeeded", Value: truncate(strings.Join(succeeded, "\n"), 1024)})
	}
	if len(failed) > 0 {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Failed", Value: truncate(strings.Join(failed, "\n"), 1024)})
	}
	return embed
}
