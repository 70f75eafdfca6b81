package discord

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/whotypes/rolekeeper/internal/notify"
	"github.com/whotypes/rolekeeper/internal/supporter"
	"github.com/whotypes/rolekeeper/internal/temprole"
	"go.uber.org/zap"
)

const (
	colorInfo    = 0x5865F2
	colorSuccess = 0x57F287
	colorWarning = 0xFEE75C
	colorError   = 0xED4245

	commandTimeout = 30 * time.Second
)

// Command pairs a slash command definition with the functions serving it.
type Command struct {
	ApplicationCommand *discordgo.ApplicationCommand
	HandlerFunc        func(s *discordgo.Session, i *discordgo.InteractionCreate)
	AutocompleteFunc   func(s *discordgo.Session, i *discordgo.InteractionCreate)
}

// Dependencies are the services commands work against. TempRoles and
// Supporters are nil when no storage is configured; their commands then
// reply that the feature is unavailable.
type Dependencies struct {
	TempRoles   *temprole.Manager
	Supporters  *supporter.Service
	Expiry      *temprole.ExpiryParser
	NotifyStats func() notify.Stats
	StartedAt   time.Time
	Logger      *zap.Logger
}

type Handler struct {
	deps     Dependencies
	commands map[string]*Command
	logger   *zap.Logger
}

func NewHandler(deps Dependencies) *Handler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.StartedAt.IsZero() {
		deps.StartedAt = time.Now()
	}

	h := &Handler{
		deps:     deps,
		commands: make(map[string]*Command),
		logger:   deps.Logger.Named("discord"),
	}
	h.registerTempRoleCommands(h.commands)
	h.registerSupporterCommands(h.commands)
	h.registerGeneralCommands(h.commands)
	return h
}

// ApplicationCommands returns every command definition, sorted by name.
func (h *Handler) ApplicationCommands() []*discordgo.ApplicationCommand {
	out := make([]*discordgo.ApplicationCommand, 0, len(h.commands))
	for _, cmd := range h.commands {
		out = append(out, cmd.ApplicationCommand)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out
}

// HandleInteraction routes an interaction to its command. Paginator buttons
// are handled by PaginatorManager.
func (h *Handler) HandleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionMessageComponent:
		PaginatorManager.OnInteractionCreate(s, i)
	case discordgo.InteractionApplicationCommand:
		name := i.ApplicationCommandData().Name
		cmd, ok := h.commands[name]
		if !ok {
			h.respondError(s, i, fmt.Sprintf("Unknown command: %s", name))
			return
		}
		h.run(name, func() { cmd.HandlerFunc(s, i) })
	case discordgo.InteractionApplicationCommandAutocomplete:
		cmd, ok := h.commands[i.ApplicationCommandData().Name]
		if !ok || cmd.AutocompleteFunc == nil {
			return
		}
		h.run(i.ApplicationCommandData().Name, func() { cmd.AutocompleteFunc(s, i) })
	}
}

func (h *Handler) run(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("Command panicked", zap.String("command", name), zap.Any("panic", r))
		}
	}()
	fn()
}

// RegisterCommands replaces the bot's global commands with the current set;
// commands that no longer exist are dropped by the overwrite.
func (h *Handler) RegisterCommands(s *discordgo.Session) error {
	commands := h.ApplicationCommands()
	if _, err := s.ApplicationCommandBulkOverwrite(s.State.User.ID, "", commands); err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}
	h.logger.Info("Registered slash commands", zap.Int("count", len(commands)))
	return nil
}

func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), commandTimeout)
}

func (h *Handler) respond(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, ephemeral bool) {
	data := &discordgo.InteractionResponseData{Embeds: []*discordgo.MessageEmbed{embed}}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	})
	if err != nil {
		h.logger.Warn("Failed to respond to interaction", zap.Error(err))
	}
}

func (h *Handler) respondError(s *discordgo.Session, i *discordgo.InteractionCreate, message string) {
	h.respond(s, i, errorEmbed(message), true)
}

// deferResponse acknowledges a slow command; the answer is sent later with edit.
func (h *Handler) deferResponse(s *discordgo.Session, i *discordgo.InteractionCreate, ephemeral bool) bool {
	resp := &discordgo.InteractionResponse{Type: discordgo.InteractionResponseDeferredChannelMessageWithSource}
	if ephemeral {
		resp.Data = &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral}
	}
	if err := s.InteractionRespond(i.Interaction, resp); err != nil {
		h.logger.Warn("Failed to defer interaction", zap.Error(err))
		return false
	}
	return true
}

func (h *Handler) edit(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) {
	embeds := []*discordgo.MessageEmbed{embed}
	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Embeds: &embeds}); err != nil {
		h.logger.Warn("Failed to edit interaction response", zap.Error(err))
	}
}

func errorEmbed(message string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "Error",
		Description: message,
		Color:       colorError,
		Timestamp:   time.Now().Format(time.RFC3339),
	}
}

func successEmbed(title, description string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       colorSuccess,
		Timestamp:   time.Now().Format(time.RFC3339),
	}
}

// invoker returns the user who ran the interaction.
func invoker(i *discordgo.InteractionCreate) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}

func invokerName(i *discordgo.InteractionCreate) string {
	u := invoker(i)
	if u == nil {
		return "unknown"
	}
	return u.Username
}

// optionMap flattens a (sub)command's options by name.
func optionMap(options []*discordgo.ApplicationCommandInteractionDataOption) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	m := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(options))
	for _, opt := range options {
		m[opt.Name] = opt
	}
	return m
}

// subcommand returns the invoked subcommand and its options.
func subcommand(i *discordgo.InteractionCreate) (string, map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	options := i.ApplicationCommandData().Options
	if len(options) == 0 || options[0].Type != discordgo.ApplicationCommandOptionSubCommand {
		return "", optionMap(options)
	}
	return options[0].Name, optionMap(options[0].Options)
}

func boolOption(opts map[string]*discordgo.ApplicationCommandInteractionDataOption, name string, def bool) bool {
	if opt, ok := opts[name]; ok {
		return opt.BoolValue()
	}
	return def
}

func stringOption(opts map[string]*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	if opt, ok := opts[name]; ok {
		return opt.StringValue()
	}
	return ""
}

// idOption reads a user or role option. Both carry the snowflake as their value.
func idOption(opts map[string]*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	opt, ok := opts[name]
	if !ok {
		return ""
	}
	if id, ok := opt.Value.(string); ok {
		return id
	}
	return ""
}
