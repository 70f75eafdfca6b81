package supporter

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/whotypes/rolekeeper/internal/data"
	"github.com/whotypes/rolekeeper/internal/gateway"
	"go.uber.org/zap"
)

const (
	guildID = "100000000000000001"
	roleID  = "300000000000000001"
	userID  = "200000000000000001"
)

type fakeGateway struct {
	members   map[string]*discordgo.Member
	grantErr  error
	revokeErr error
	grants    []string
	revokes   []string
}

func (g *fakeGateway) ResolveGuild(context.Context, string) (*discordgo.Guild, error) {
	return &discordgo.Guild{ID: guildID}, nil
}

func (g *fakeGateway) ResolveMember(_ context.Context, _, id string) (*discordgo.Member, error) {
	if m, ok := g.members[id]; ok {
		return m, nil
	}
	return nil, fmt.Errorf("member %s: %w", id, gateway.ErrNotFound)
}

func (g *fakeGateway) ResolveRole(_ context.Context, _, id string) (*discordgo.Role, error) {
	if id != roleID {
		return nil, gateway.ErrNotFound
	}
	return &discordgo.Role{ID: roleID, Name: "Supporter"}, nil
}

func (g *fakeGateway) GrantRole(_ context.Context, _, id, _, _ string) error {
	g.grants = append(g.grants, id)
	return g.grantErr
}

func (g *fakeGateway) BulkGrantRole(context.Context, string, string, []string, string) []error {
	return nil
}

func (g *fakeGateway) RevokeRole(_ context.Context, _, id, _, _ string) error {
	g.revokes = append(g.revokes, id)
	return g.revokeErr
}

type fakeStore struct {
	grants    map[string]data.SupporterGrant
	addErr    error
	removeErr error
	listErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{grants: map[string]data.SupporterGrant{}}
}

func (s *fakeStore) AddSupporter(_ context.Context, g data.SupporterGrant) error {
	if s.addErr != nil {
		return s.addErr
	}
	s.grants[data.GrantKey(g.GuildID, g.UserID, g.RoleID)] = g
	return nil
}

func (s *fakeStore) RemoveSupporter(_ context.Context, g, u, r string) (bool, error) {
	if s.removeErr != nil {
		return false, s.removeErr
	}
	key := data.GrantKey(g, u, r)
	_, ok := s.grants[key]
	delete(s.grants, key)
	return ok, nil
}

func (s *fakeStore) GetSupporters(_ context.Context, g string) ([]data.SupporterGrant, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []data.SupporterGrant
	for _, grant := range s.grants {
		if grant.GuildID == g {
			out = append(out, grant)
		}
	}
	return out, nil
}

func newTestService(gw *fakeGateway, store *fakeStore) *Service {
	s := NewService(gw, store, zap.NewNop())
	s.now = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }
	return s
}

func member(roles ...string) map[string]*discordgo.Member {
	return map[string]*discordgo.Member{userID: {User: &discordgo.User{ID: userID}, Roles: roles}}
}

func TestAdd(t *testing.T) {
	gw := &fakeGateway{members: member()}
	store := newFakeStore()
	s := newTestService(gw, store)

	grant, err := s.Add(context.Background(), guildID, userID, roleID, "boosted the server", "admin")

	require.NoError(t, err)
	assert.True(t, grant.IsActive)
	assert.Equal(t, "boosted the server", grant.Reason)
	assert.Equal(t, "admin", grant.AssignedBy)
	assert.Equal(t, []string{userID}, gw.grants)
	assert.Len(t, store.grants, 1)
}

func TestAdd_AlreadyHeld(t *testing.T) {
	gw := &fakeGateway{members: member(roleID)}
	store := newFakeStore()
	s := newTestService(gw, store)

	_, err := s.Add(context.Background(), guildID, userID, roleID, "", "admin")

	require.NoError(t, err)
	assert.Empty(t, gw.grants)
	assert.Len(t, store.grants, 1)
}

func TestAdd_SaveFailureRollsBack(t *testing.T) {
	gw := &fakeGateway{members: member()}
	store := newFakeStore()
	store.addErr = errors.New("unavailable")
	s := newTestService(gw, store)

	_, err := s.Add(context.Background(), guildID, userID, roleID, "", "admin")

	assert.ErrorIs(t, err, ErrSaveFailed)
	assert.Equal(t, []string{userID}, gw.revokes)
}

func TestAdd_SaveFailureKeepsHeldRole(t *testing.T) {
	gw := &fakeGateway{members: member(roleID)}
	store := newFakeStore()
	store.addErr = errors.New("unavailable")
	s := newTestService(gw, store)

	_, err := s.Add(context.Background(), guildID, userID, roleID, "", "admin")

	assert.ErrorIs(t, err, ErrSaveFailed)
	assert.Empty(t, gw.revokes)
}

func TestAdd_ResolutionFailures(t *testing.T) {
	gw := &fakeGateway{members: member()}
	s := newTestService(gw, newFakeStore())

	_, err := s.Add(context.Background(), guildID, "200000000000000009", roleID, "", "admin")
	assert.True(t, gateway.IsNotFound(err))

	_, err = s.Add(context.Background(), guildID, userID, "399999999999999999", "", "admin")
	assert.True(t, gateway.IsNotFound(err))

	assert.Empty(t, gw.grants)
}

func TestRemove(t *testing.T) {
	gw := &fakeGateway{members: member(roleID)}
	store := newFakeStore()
	s := newTestService(gw, store)
	ctx := context.Background()

	_, err := s.Add(ctx, guildID, userID, roleID, "", "admin")
	require.NoError(t, err)

	require.NoError(t, s.Remove(ctx, guildID, userID, roleID, "admin"))
	assert.Equal(t, []string{userID}, gw.revokes)
	assert.Empty(t, store.grants)

	assert.ErrorIs(t, s.Remove(ctx, guildID, userID, roleID, "admin"), ErrNotSupporter)
	assert.Equal(t, []string{userID}, gw.revokes, "second remove must not revoke again")
}

func TestRemove_WithoutRecordKeepsRole(t *testing.T) {
	gw := &fakeGateway{members: member(roleID)}
	s := newTestService(gw, newFakeStore())

	err := s.Remove(context.Background(), guildID, userID, roleID, "admin")

	assert.ErrorIs(t, err, ErrNotSupporter)
	assert.Empty(t, gw.revokes)
}

func TestRemove_LookupFailureKeepsRole(t *testing.T) {
	gw := &fakeGateway{members: member(roleID)}
	store := newFakeStore()
	store.listErr = errors.New("unavailable")
	s := newTestService(gw, store)

	err := s.Remove(context.Background(), guildID, userID, roleID, "admin")

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotSupporter)
	assert.Empty(t, gw.revokes)
}

func TestRemove_MemberGoneStillDeletesRecord(t *testing.T) {
	gw := &fakeGateway{members: member(roleID)}
	store := newFakeStore()
	s := newTestService(gw, store)
	ctx := context.Background()

	_, err := s.Add(ctx, guildID, userID, roleID, "", "admin")
	require.NoError(t, err)

	gw.revokeErr = fmt.Errorf("member: %w", gateway.ErrNotFound)
	require.NoError(t, s.Remove(ctx, guildID, userID, roleID, "admin"))
	assert.Empty(t, store.grants)
}

func TestRemove_RevokeFailureKeepsRecord(t *testing.T) {
	gw := &fakeGateway{members: member(roleID)}
	store := newFakeStore()
	s := newTestService(gw, store)
	ctx := context.Background()

	_, err := s.Add(ctx, guildID, userID, roleID, "", "admin")
	require.NoError(t, err)

	gw.revokeErr = errors.New("missing permissions")
	assert.Error(t, s.Remove(ctx, guildID, userID, roleID, "admin"))
	assert.Len(t, store.grants, 1)
}

func TestList(t *testing.T) {
	store := newFakeStore()
	store.grants["a"] = data.SupporterGrant{GuildID: guildID, UserID: userID}
	store.grants["b"] = data.SupporterGrant{GuildID: "100000000000000002", UserID: userID}
	s := newTestService(&fakeGateway{}, store)

	grants, err := s.List(context.Background(), guildID)

	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.True(t, slices.ContainsFunc(grants, func(g data.SupporterGrant) bool { return g.GuildID == guildID }))
}
