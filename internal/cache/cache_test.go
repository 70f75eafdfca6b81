package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/discordgo"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testGuild = "100000000000000001"

func setupTest(t *testing.T, ttl time.Duration) (*MemberCache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewWithClient(rdb, ttl)

	t.Cleanup(func() {
		c.Close()
		mr.Close()
	})
	return c, mr
}

func testMember(userID string, roles ...string) *discordgo.Member {
	return &discordgo.Member{
		GuildID: testGuild,
		User:    &discordgo.User{ID: userID, Username: "user" + userID[len(userID)-1:]},
		Roles:   roles,
	}
}

func TestMemberCache_SetGet(t *testing.T) {
	c, _ := setupTest(t, time.Minute)
	ctx := context.Background()

	member := testMember("200000000000000001", "300000000000000001")
	require.NoError(t, c.Set(ctx, testGuild, member))

	got, ok, err := c.Get(ctx, testGuild, "200000000000000001")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, member.User.ID, got.User.ID)
	assert.Equal(t, member.Roles, got.Roles)
}

func TestMemberCache_Miss(t *testing.T) {
	c, _ := setupTest(t, time.Minute)

	got, ok, err := c.Get(context.Background(), testGuild, "200000000000000009")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestMemberCache_Expiry(t *testing.T) {
	c, mr := setupTest(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, testGuild, testMember("200000000000000001")))
	mr.FastForward(2 * time.Minute)

	_, ok, err := c.Get(ctx, testGuild, "200000000000000001")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemberCache_Invalidate(t *testing.T) {
	c, _ := setupTest(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, testGuild, testMember("200000000000000001")))
	require.NoError(t, c.Invalidate(ctx, testGuild, "200000000000000001"))

	_, ok, err := c.Get(ctx, testGuild, "200000000000000001")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemberCache_SetRequiresUser(t *testing.T) {
	c, _ := setupTest(t, time.Minute)

	assert.Error(t, c.Set(context.Background(), testGuild, &discordgo.Member{}))
	assert.Error(t, c.Set(context.Background(), testGuild, nil))
}

func TestMemberCache_CorruptEntry(t *testing.T) {
	c, mr := setupTest(t, time.Minute)
	require.NoError(t, mr.Set(memberKey(testGuild, "200000000000000001"), "{not json"))

	_, ok, err := c.Get(context.Background(), testGuild, "200000000000000001")
	assert.Error(t, err)
	assert.False(t, ok)
}
