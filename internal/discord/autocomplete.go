package discord

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"go.uber.org/zap"
)

// discord caps autocomplete results and choice names
const (
	maxChoices       = 25
	maxChoiceNameLen = 100
)

type durationPreset struct {
	Name  string
	Value string
}

var durationPresets = []durationPreset{
	{"30 minutes", "30m"},
	{"1 hour", "1h"},
	{"6 hours", "6h"},
	{"12 hours", "12h"},
	{"1 day", "1d"},
	{"3 days", "3d"},
	{"1 week", "1w"},
	{"2 weeks", "2w"},
	{"30 days", "30d"},
	{"90 days", "90d"},
	{"1 year", "365d"},
}

// durationChoices suggests expiry values for input. Anything parse accepts is
// offered first as typed, followed by presets ranked by fuzzy match.
func durationChoices(input string, parse func(string) (time.Time, error)) []*discordgo.ApplicationCommandOptionChoice {
	input = strings.TrimSpace(input)

	var choices []*discordgo.ApplicationCommandOptionChoice
	if input == "" {
		for _, p := range durationPresets {
			choices = append(choices, presetChoice(p))
		}
		return choices
	}

	if parse != nil {
		if expiresAt, err := parse(input); err == nil {
			choices = append(choices, &discordgo.ApplicationCommandOptionChoice{
				Name:  truncate(fmt.Sprintf("%s (until %s)", input, expiresAt.UTC().Format("Jan 2 15:04 MST")), maxChoiceNameLen),
				Value: input,
			})
		}
	}

	names := make([]string, len(durationPresets))
	for i, p := range durationPresets {
		names[i] = p.Name
	}
	ranks := fuzzy.RankFindNormalizedFold(input, names)
	if len(ranks) == 0 {
		values := make([]string, len(durationPresets))
		for i, p := range durationPresets {
			values[i] = p.Value
		}
		ranks = fuzzy.RankFindNormalizedFold(input, values)
	}
	sort.Stable(ranks)

	for _, r := range ranks {
		if len(choices) >= maxChoices {
			break
		}
		preset := durationPresets[r.OriginalIndex]
		if len(choices) > 0 && choices[0].Value == preset.Value {
			continue
		}
		choices = append(choices, presetChoice(preset))
	}
	return choices
}

func presetChoice(p durationPreset) *discordgo.ApplicationCommandOptionChoice {
	return &discordgo.ApplicationCommandOptionChoice{Name: p.Name, Value: p.Value}
}

// truncate shortens s to at most n characters, ending in an ellipsis when cut.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}

// focusedOption finds the option the user is typing into, looking inside a
// subcommand if there is one.
func focusedOption(options []*discordgo.ApplicationCommandInteractionDataOption) *discordgo.ApplicationCommandInteractionDataOption {
	for _, opt := range options {
		if opt.Focused {
			return opt
		}
		if opt.Type == discordgo.ApplicationCommandOptionSubCommand {
			if f := focusedOption(opt.Options); f != nil {
				return f
			}
		}
	}
	return nil
}

func (h *Handler) handleDurationAutocomplete(s *discordgo.Session, i *discordgo.InteractionCreate) {
	opt := focusedOption(i.ApplicationCommandData().Options)
	if opt == nil || opt.Name != "duration" {
		return
	}

	var parse func(string) (time.Time, error)
	if h.deps.Expiry != nil {
		parse = h.deps.Expiry.Parse
	}

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{
			Choices: durationChoices(opt.StringValue(), parse),
		},
	})
	if err != nil {
		h.logger.Warn("Failed to respond to autocomplete", zap.Error(err))
	}
}
