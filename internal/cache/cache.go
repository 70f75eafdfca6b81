// Package cache keeps recently resolved guild members in Redis so repeated
// role operations on the same member do not hit the Discord REST API.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/redis/go-redis/v9"
)

type MemberCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, addr, password string, db int, ttl time.Duration) (*MemberCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("could not connect to redis: %w", err)
	}

	return NewWithClient(rdb, ttl), nil
}

func NewWithClient(rdb *redis.Client, ttl time.Duration) *MemberCache {
	return &MemberCache{rdb: rdb, ttl: ttl}
}

func memberKey(guildID, userID string) string {
	return fmt.Sprintf("guild:%s:member:%s", guildID, userID)
}

// Get returns the cached member, or false on a miss. Redis errors are
// reported so the caller can fall back to the API.
func (c *MemberCache) Get(ctx context.Context, guildID, userID string) (*discordgo.Member, bool, error) {
	raw, err := c.rdb.Get(ctx, memberKey(guildID, userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("could not read cached member: %w", err)
	}

	var member discordgo.Member
	if err := json.Unmarshal(raw, &member); err != nil {
		return nil, false, fmt.Errorf("could not unmarshal cached member: %w", err)
	}
	return &member, true, nil
}

func (c *MemberCache) Set(ctx context.Context, guildID string, member *discordgo.Member) error {
	if member == nil || member.User == nil {
		return fmt.Errorf("member has no user")
	}
	raw, err := json.Marshal(member)
	if err != nil {
		return fmt.Errorf("could not marshal member: %w", err)
	}
	return c.rdb.Set(ctx, memberKey(guildID, member.User.ID), raw, c.ttl).Err()
}

// Invalidate drops the cached member, used after its roles change.
func (c *MemberCache) Invalidate(ctx context.Context, guildID, userID string) error {
	return c.rdb.Del(ctx, memberKey(guildID, userID)).Err()
}

func (c *MemberCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *MemberCache) Close() error {
	return c.rdb.Close()
}
