package discord

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	paginator "github.com/topi314/dgo-paginator"
	"go.uber.org/zap"
)

const (
	linesPerPage        = 10
	paginationThreshold = 10
)

var PaginatorManager *paginator.Manager

func init() {
	PaginatorManager = paginator.NewManager(
		paginator.WithButtonsConfig(paginator.ButtonsConfig{
			First: &paginator.ComponentOptions{
				Emoji: &discordgo.ComponentEmoji{
					Name: "⏮",
				},
				Style: discordgo.PrimaryButton,
			},
			Back: &paginator.ComponentOptions{
				Emoji: &discordgo.ComponentEmoji{
					Name: "◀",
				},
				Style: discordgo.PrimaryButton,
			},
			Stop: nil,
			Next: &paginator.ComponentOptions{
				Emoji: &discordgo.ComponentEmoji{
					Name: "▶",
				},
				Style: discordgo.PrimaryButton,
			},
			Last: &paginator.ComponentOptions{
				Emoji: &discordgo.ComponentEmoji{
					Name: "⏩",
				},
				Style: discordgo.PrimaryButton,
			},
		}),

		paginator.WithNotYourPaginatorMessage("This list can only be paged by the person who requested it."),
	)
}

func shouldUsePagination(count int) bool {
	return count > paginationThreshold
}

func pageCount(lines int) int {
	return (lines + linesPerPage - 1) / linesPerPage
}

// renderPage fills embed with one page of lines.
func renderPage(embed *discordgo.MessageEmbed, title, noun string, lines []string, page int) {
	totalPages := pageCount(len(lines))

	start := page * linesPerPage
	end := min(start+linesPerPage, len(lines))

	embed.Title = title
	embed.Color = colorInfo
	embed.Description = strings.Join(lines[start:end], "\n")
	embed.Footer = &discordgo.MessageEmbedFooter{
		Text: fmt.Sprintf("Page %d/%d • Total: %d %s", page+1, totalPages, len(lines), noun),
	}
	embed.Timestamp = time.Now().Format(time.RFC3339)
}

func createListPaginator(title, noun string, lines []string) *paginator.Paginator {
	return &paginator.Paginator{
		PageFunc: func(page int, embed *discordgo.MessageEmbed) {
			renderPage(embed, title, noun, lines, page)
		},
		MaxPages:        pageCount(len(lines)),
		ExpiryLastUsage: true,
		Expiry:          time.Now().Add(10 * time.Minute),
	}
}

// sendList answers with a single embed for short lists and a paginator
// otherwise.
func (h *Handler) sendList(s *discordgo.Session, i *discordgo.InteractionCreate, title, noun string, lines []string) {
	if !shouldUsePagination(len(lines)) {
		embed := &discordgo.MessageEmbed{}
		renderPage(embed, title, noun, lines, 0)
		h.respond(s, i, embed, true)
		return
	}

	if err := PaginatorManager.CreateInteraction(s, i.Interaction, createListPaginator(title, noun, lines), true); err != nil {
		h.logger.Warn("Failed to create paginator, sending first page only", zap.Error(err))
		embed := &discordgo.MessageEmbed{}
		renderPage(embed, title, noun, lines, 0)
		h.respond(s, i, embed, true)
	}
}
