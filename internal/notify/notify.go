// Package notify delivers best-effort DMs about role changes. Delivery runs
// in the background; callers never wait on it and never see its errors.
package notify

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/sourcegraph/conc/pool"
	"github.com/whotypes/rolekeeper/internal/gateway"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	colorGranted = 0x57F287
	colorRemoved = 0xED4245

	sendTimeout      = 15 * time.Second
	defaultQueueSize = 256
)

// GrantNotice describes a role that was just given to a member.
type GrantNotice struct {
	Guild     *discordgo.Guild
	Member    *discordgo.Member
	Role      *discordgo.Role
	ExpiresAt time.Time
}

// RemovalNotice describes a role that was taken away.
type RemovalNotice struct {
	Guild     *discordgo.Guild
	Member    *discordgo.Member
	Role      *discordgo.Role
	Reason    string
	RemovedBy string
}

// Notifier accepts notices. Implementations must not block on delivery and
// must not report delivery failures to the caller.
type Notifier interface {
	RoleGranted(ctx context.Context, n GrantNotice)
	RoleRemoved(ctx context.Context, n RemovalNotice)
}

// Stats counts delivery outcomes.
type Stats struct {
	Sent    int64
	Failed  int64
	Dropped int64
}

// Dispatcher sends notices as DMs from a fixed set of workers fed by a
// bounded queue. A full queue drops the notice instead of blocking.
type Dispatcher struct {
	messenger gateway.DirectMessenger
	logger    *zap.Logger

	mu      sync.RWMutex
	queue   chan delivery
	workers *pool.Pool
	closed  bool

	sent    atomic.Int64
	failed  atomic.Int64
	dropped atomic.Int64
}

type delivery struct {
	userID string
	embed  *discordgo.MessageEmbed
}

func NewDispatcher(messenger gateway.DirectMessenger, workers int, logger *zap.Logger) *Dispatcher {
	return newDispatcher(messenger, workers, defaultQueueSize, logger)
}

func newDispatcher(messenger gateway.DirectMessenger, workers, queueSize int, logger *zap.Logger) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	d := &Dispatcher{
		messenger: messenger,
		logger:    logger.Named("notify"),
		queue:     make(chan delivery, queueSize),
		workers:   pool.New().WithMaxGoroutines(workers),
	}
	for range workers {
		d.workers.Go(d.work)
	}
	return d
}

func (d *Dispatcher) RoleGranted(_ context.Context, n GrantNotice) {
	if n.Member == nil || n.Member.User == nil {
		return
	}
	d.dispatch(n.Member.User.ID, GrantEmbed(n))
}

func (d *Dispatcher) RoleRemoved(_ context.Context, n RemovalNotice) {
	if n.Member == nil || n.Member.User == nil {
		return
	}
	d.dispatch(n.Member.User.ID, RemovalEmbed(n))
}

// dispatch queues the DM. The caller's context is not used for delivery
// since the notice outlives the request that produced it.
func (d *Dispatcher) dispatch(userID string, embed *discordgo.MessageEmbed) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.dropped.Add(1)
		d.logger.Warn("Dropping notification after shutdown", zap.String("userID", userID))
		return
	}

	select {
	case d.queue <- delivery{userID: userID, embed: embed}:
	default:
		d.dropped.Add(1)
		d.logger.Warn("Notification queue full, dropping", zap.String("userID", userID))
	}
}

func (d *Dispatcher) work() {
	for job := range d.queue {
		d.deliver(job)
	}
}

func (d *Dispatcher) deliver(job delivery) {
	defer func() {
		if r := recover(); r != nil {
			d.failed.Add(1)
			d.logger.Error("Notification panicked", zap.String("userID", job.userID), zap.Any("panic", r))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	if err := d.messenger.SendDirectMessage(ctx, job.userID, job.embed); err != nil {
		d.failed.Add(1)
		d.logger.Warn("Failed to deliver notification",
			zap.String("userID", job.userID),
			zap.String("title", job.embed.Title),
			zap.Error(err))
		return
	}
	d.sent.Add(1)
}

func (d *Dispatcher) Stats() Stats {
	return Stats{
		Sent:    d.sent.Load(),
		Failed:  d.failed.Load(),
		Dropped: d.dropped.Load(),
	}
}

// Close stops accepting notices and waits for queued ones to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.workers.Wait()
}

var titleCaser = cases.Title(language.English)

func GrantEmbed(n GrantNotice) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       "Role granted",
		Description: fmt.Sprintf("You were given the **%s** role in **%s**.", roleName(n.Role), guildName(n.Guild)),
		Color:       colorGranted,
		Timestamp:   time.Now().Format(time.RFC3339),
	}
	if !n.ExpiresAt.IsZero() {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   "Expires",
			Value:  fmt.Sprintf("<t:%d:F> (<t:%d:R>)", n.ExpiresAt.Unix(), n.ExpiresAt.Unix()),
			Inline: true,
		})
	}
	return embed
}

func RemovalEmbed(n RemovalNotice) *discordgo.MessageEmbed {
	reason := n.Reason
	if reason == "" {
		reason = "no reason given"
	}
	embed := &discordgo.MessageEmbed{
		Title:       "Role removed",
		Description: fmt.Sprintf("The **%s** role was removed from you in **%s**.", roleName(n.Role), guildName(n.Guild)),
		Color:       colorRemoved,
		Timestamp:   time.Now().Format(time.RFC3339),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Reason", Value: titleCaser.String(reason), Inline: true},
		},
	}
	if n.RemovedBy != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   "Removed by",
			Value:  n.RemovedBy,
			Inline: true,
		})
	}
	return embed
}

func roleName(r *discordgo.Role) string {
	if r == nil {
		return "unknown"
	}
	return r.Name
}

func guildName(g *discordgo.Guild) string {
	if g == nil || g.Name == "" {
		return "a server"
	}
	return g.Name
}
