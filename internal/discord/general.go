package discord

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/whotypes/rolekeeper/internal/notify"
	"github.com/whotypes/rolekeeper/internal/system"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

func (h *Handler) registerGeneralCommands(cmds map[string]*Command) {
	cmds["ping"] = &Command{
		ApplicationCommand: &discordgo.ApplicationCommand{
			Name:        "ping",
			Description: "Check that the bot is responsive",
		},
		HandlerFunc: h.handlePing,
	}
	cmds["stats"] = &Command{
		ApplicationCommand: &discordgo.ApplicationCommand{
			Name:        "stats",
			Description: "Show bot and host statistics",
		},
		HandlerFunc: h.handleStats,
	}
	cmds["help"] = &Command{
		ApplicationCommand: &discordgo.ApplicationCommand{
			Name:        "help",
			Description: "Show available commands",
		},
		HandlerFunc: h.handleHelp,
	}
}

func (h *Handler) handlePing(s *discordgo.Session, i *discordgo.InteractionCreate) {
	latency := s.HeartbeatLatency().Round(time.Millisecond)
	h.respond(s, i, &discordgo.MessageEmbed{
		Title:       "Pong!",
		Description: fmt.Sprintf("Gateway latency: **%s**", latency),
		Color:       colorInfo,
	}, true)
}

func (h *Handler) handleStats(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx, cancel := commandContext()
	defer cancel()

	snap := system.Collect(ctx, h.deps.StartedAt)

	var ns notify.Stats
	if h.deps.NotifyStats != nil {
		ns = h.deps.NotifyStats()
	}

	guilds := 0
	if s.State != nil {
		guilds = len(s.State.Guilds)
	}
	h.respond(s, i, statsEmbed(snap, ns, guilds), false)
}

func statsEmbed(snap system.Snapshot, ns notify.Stats, guilds int) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title: "Bot statistics",
		Color: colorInfo,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Uptime", Value: system.FormatUptime(snap.Uptime), Inline: true},
			{Name: "Servers", Value: printer.Sprintf("%d", guilds), Inline: true},
			{Name: "Goroutines", Value: printer.Sprintf("%d", snap.Goroutines), Inline: true},
			{Name: "Heap", Value: system.FormatBytes(snap.HeapAlloc), Inline: true},
			{Name: "Host CPU", Value: system.FormatPercent(snap.CPUPercent), Inline: true},
			{Name: "Host memory", Value: system.FormatPercent(snap.MemPercent), Inline: true},
			{
				Name:  "Notifications",
				Value: printer.Sprintf("%d sent • %d failed • %d dropped", ns.Sent, ns.Failed, ns.Dropped),
			},
		},
		Footer:    &discordgo.MessageEmbedFooter{Text: snap.GoVersion},
		Timestamp: time.Now().Format(time.RFC3339),
	}
}

func (h *Handler) handleHelp(s *discordgo.Session, i *discordgo.InteractionCreate) {
	h.respond(s, i, helpEmbed(h.ApplicationCommands()), true)
}

// helpEmbed lists every command and subcommand with its description.
func helpEmbed(commands []*discordgo.ApplicationCommand) *discordgo.MessageEmbed {
	var b strings.Builder
	for _, cmd := range commands {
		var subs []*discordgo.ApplicationCommandOption
		for _, opt := range cmd.Options {
			if opt.Type == discordgo.ApplicationCommandOptionSubCommand {
				subs = append(subs, opt)
			}
		}

		if len(subs) == 0 {
			fmt.Fprintf(&b, "• **/%s** - %s\n", cmd.Name, cmd.Description)
			continue
		}
		for _, sub := range subs {
			fmt.Fprintf(&b, "• **/%s %s** - %s\n", cmd.Name, sub.Name, sub.Description)
		}
	}

	return &discordgo.MessageEmbed{
		Title:       "Commands",
		Description: strings.TrimSuffix(b.String(), "\n"),
		Color:       colorInfo,
		Footer: &discordgo.MessageEmbedFooter{
			Text: "Durations accept 30m, 12h, 7d, 2w, combinations like 1d12h, or phrases like \"in 3 days\"",
		},
		Timestamp: time.Now().Format(time.RFC3339),
	}
}
