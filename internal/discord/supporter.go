package discord

import (
	"errors"
	"fmt"
	"sort"

	"github.com/bwmarrin/discordgo"
	"github.com/whotypes/rolekeeper/internal/data"
	"github.com/whotypes/rolekeeper/internal/gateway"
	"github.com/whotypes/rolekeeper/internal/supporter"
	"go.uber.org/zap"
)

func (h *Handler) registerSupporterCommands(cmds map[string]*Command) {
	dmPermission := false

	subcommands := map[string]func(*discordgo.Session, *discordgo.InteractionCreate, map[string]*discordgo.ApplicationCommandInteractionDataOption){
		"add":    h.handleSupporterAdd,
		"remove": h.handleSupporterRemove,
		"list":   h.handleSupporterList,
	}

	cmds["supporter"] = &Command{
		ApplicationCommand: &discordgo.ApplicationCommand{
			Name:                     "supporter",
			Description:              "Manage permanent supporter roles",
			DefaultMemberPermissions: &manageRolesPermission,
			DMPermission:             &dmPermission,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "add",
					Description: "Give a member a supporter role",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "Supporter", Required: true},
						{Type: discordgo.ApplicationCommandOptionRole, Name: "role", Description: "Supporter role", Required: true},
						{Type: discordgo.ApplicationCommandOptionString, Name: "reason", Description: "Why they are a supporter", MaxLength: 512},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "remove",
					Description: "Take a supporter role away",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "Supporter", Required: true},
						{Type: discordgo.ApplicationCommandOptionRole, Name: "role", Description: "Supporter role", Required: true},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "list",
					Description: "Show this server's supporters",
				},
			},
		},
		HandlerFunc: func(s *discordgo.Session, i *discordgo.InteractionCreate) {
			if h.deps.Supporters == nil {
				h.respondError(s, i, "Supporter roles are not configured on this bot.")
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
	}
}

func (h *Handler) handleSupporterAdd(s *discordgo.Session, i *discordgo.InteractionCreate, opts map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	userID, roleID := idOption(opts, "user"), idOption(opts, "role")

	if !h.deferResponse(s, i, true) {
		return
	}
	ctx, cancel := commandContext()
	defer cancel()

	_, err := h.deps.Supporters.Add(ctx, i.GuildID, userID, roleID, stringOption(opts, "reason"), invokerName(i))
	if err != nil && !gateway.IsNotFound(err) && !errors.Is(err, supporter.ErrSaveFailed) {
		h.logger.Warn("Failed to add supporter", zap.String("guildID", i.GuildID), zap.Error(err))
	}
	h.edit(s, i, supporterAddEmbed(err, userID, roleID))
}

func supporterAddEmbed(err error, userID, roleID string) *discordgo.MessageEmbed {
	switch {
	case err == nil:
		return successEmbed("Supporter added", fmt.Sprintf("<@%s> now has <@&%s>. Thank you for the support!", userID, roleID))
	case gateway.IsNotFound(err):
		return errorEmbed("That member or role could not be found.")
	case errors.Is(err, supporter.ErrSaveFailed):
		return errorEmbed("The role could not be saved, so it was not given. Please try again later.")
	default:
		return errorEmbed(fmt.Sprintf("Could not give <@&%s> to <@%s>. Check my role position and permissions.", roleID, userID))
	}
}

func (h *Handler) handleSupporterRemove(s *discordgo.Session, i *discordgo.InteractionCreate, opts map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	userID, roleID := idOption(opts, "user"), idOption(opts, "role")

	if !h.deferResponse(s, i, true) {
		return
	}
	ctx, cancel := commandContext()
	defer cancel()

	err := h.deps.Supporters.Remove(ctx, i.GuildID, userID, roleID, invokerName(i))
	if err != nil && !errors.Is(err, supporter.ErrNotSupporter) {
		h.logger.Warn("Failed to remove supporter", zap.String("guildID", i.GuildID), zap.Error(err))
	}
	h.edit(s, i, supporterRemoveEmbed(err, userID, roleID))
}

func supporterRemoveEmbed(err error, userID, roleID string) *discordgo.MessageEmbed {
	switch {
	case err == nil:
		return successEmbed("Supporter removed", fmt.Sprintf("Removed <@&%s> from <@%s>.", roleID, userID))
	case errors.Is(err, supporter.ErrNotSupporter):
		return errorEmbed(fmt.Sprintf("<@%s> is not a recorded supporter with <@&%s>, so nothing was removed.", userID, roleID))
	default:
		return errorEmbed("Could not remove the supporter role. Please try again later.")
	}
}

func (h *Handler) handleSupporterList(s *discordgo.Session, i *discordgo.InteractionCreate, _ map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	ctx, cancel := commandContext()
	defer cancel()

	grants, err := h.deps.Supporters.List(ctx, i.GuildID)
	if err != nil {
		h.logger.Error("Failed to list supporters", zap.String("guildID", i.GuildID), zap.Error(err))
		h.respondError(s, i, "Could not load supporters. Please try again later.")
		return
	}
	if len(grants) == 0 {
		h.respond(s, i, &discordgo.MessageEmbed{
			Title:       "Supporters",
			Description: "No supporters yet.",
			Color:       colorInfo,
		}, true)
		return
	}

	h.sendList(s, i, "Supporters", "supporters", supporterLines(grants))
}

// supporterLines renders grants oldest first.
func supporterLines(grants []data.SupporterGrant) []string {
	sorted := make([]data.SupporterGrant, len(grants))
	copy(sorted, grants)
	sort.SliceStable(sorted, func(a, b int) bool { return sorted[a].AssignedAt.Before(sorted[b].AssignedAt) })

	lines := make([]string, len(sorted))
	for n, g := range sorted {
		line := fmt.Sprintf("**%d.** <@%s> • <@&%s> • since <t:%d:d>", n+1, g.UserID, g.RoleID, g.AssignedAt.Unix())
		if g.Reason != "" {
			line += " • " + truncate(g.Reason, 80)
		}
		lines[n] = line
	}
	return lines
}
