package temprole

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/whotypes/rolekeeper/internal/data"
	"github.com/whotypes/rolekeeper/internal/gateway"
	"github.com/whotypes/rolekeeper/internal/notify"
	"go.uber.org/zap"
)

const (
	testGuild = "100000000000000001"
	testRole  = "300000000000000001"
	userA     = "200000000000000001"
	userB     = "200000000000000002"
	userC     = "200000000000000003"
)

var errStore = errors.New("store unavailable")

type fakeGateway struct {
	mu sync.Mutex

	guilds  map[string]*discordgo.Guild
	roles   map[string]*discordgo.Role
	members map[string]*discordgo.Member

	guildErr   error
	memberErrs map[string]error
	grantErrs  map[string]error
	revokeErrs map[string]error

	resolveGuildCalls int
	resolveRoleCalls  int
	grantCalls        []string
	bulkCalls         [][]string
	revokeCalls       []string
}

func newFakeGateway(userIDs ...string) *fakeGateway {
	g := &fakeGateway{
		guilds:     map[string]*discordgo.Guild{testGuild: {ID: testGuild, Name: "Gophers"}},
		roles:      map[string]*discordgo.Role{testRole: {ID: testRole, Name: "VIP"}},
		members:    map[string]*discordgo.Member{},
		memberErrs: map[string]error{},
		grantErrs:  map[string]error{},
		revokeErrs: map[string]error{},
	}
	for _, id := range userIDs {
		g.addMember(id)
	}
	return g
}

func (g *fakeGateway) addMember(userID string, roles ...string) {
	g.members[userID] = &discordgo.Member{User: &discordgo.User{ID: userID}, Roles: roles}
}

func (g *fakeGateway) ResolveGuild(_ context.Context, guildID string) (*discordgo.Guild, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resolveGuildCalls++
	if g.guildErr != nil {
		return nil, g.guildErr
	}
	if guild, ok := g.guilds[guildID]; ok {
		return guild, nil
	}
	return nil, fmt.Errorf("guild %s: %w", guildID, gateway.ErrNotFound)
}

func (g *fakeGateway) ResolveMember(_ context.Context, _, userID string) (*discordgo.Member, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.memberErrs[userID]; err != nil {
		return nil, err
	}
	member, ok := g.members[userID]
	if !ok {
		return nil, fmt.Errorf("member %s: %w", userID, gateway.ErrNotFound)
	}
	// copy so callers see the roles as they were at resolution time
	clone := *member
	clone.Roles = slices.Clone(member.Roles)
	return &clone, nil
}

func (g *fakeGateway) ResolveRole(_ context.Context, _, roleID string) (*discordgo.Role, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resolveRoleCalls++
	if role, ok := g.roles[roleID]; ok {
		return role, nil
	}
	return nil, fmt.Errorf("role %s: %w", roleID, gateway.ErrNotFound)
}

func (g *fakeGateway) grantLocked(userID, roleID string) error {
	if err := g.grantErrs[userID]; err != nil {
		return err
	}
	if member, ok := g.members[userID]; ok && !slices.Contains(member.Roles, roleID) {
		member.Roles = append(member.Roles, roleID)
	}
	return nil
}

func (g *fakeGateway) GrantRole(_ context.Context, _, userID, roleID, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.grantCalls = append(g.grantCalls, userID)
	return g.grantLocked(userID, roleID)
}

func (g *fakeGateway) BulkGrantRole(_ context.Context, _, roleID string, userIDs []string, _ string) []error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.bulkCalls = append(g.bulkCalls, slices.Clone(userIDs))
	errs := make([]error, len(userIDs))
	for i, userID := range userIDs {
		errs[i] = g.grantLocked(userID, roleID)
	}
	return errs
}

func (g *fakeGateway) RevokeRole(_ context.Context, _, userID, roleID, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.revokeCalls = append(g.revokeCalls, userID)
	if err := g.revokeErrs[userID]; err != nil {
		return err
	}
	if member, ok := g.members[userID]; ok {
		member.Roles = slices.DeleteFunc(member.Roles, func(r string) bool { return r == roleID })
	}
	return nil
}

func (g *fakeGateway) hasRole(userID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return gateway.HasRole(g.members[userID], testRole)
}

type fakeStore struct {
	mu sync.Mutex

	records    data.TemporaryRoleIndex
	addErr     error
	batchErr   error
	removeErr  error
	getAllErr  error
	getUserErr error

	adds    []data.TemporaryRole
	batches []data.TemporaryRoleBatch
	removes []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(data.TemporaryRoleIndex)}
}

func (s *fakeStore) AddTemporaryRole(_ context.Context, role data.TemporaryRole) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adds = append(s.adds, role)
	if s.addErr != nil {
		return s.addErr
	}
	s.records.Add(role)
	return nil
}

func (s *fakeStore) AddMultipleTemporaryRoles(_ context.Context, batch data.TemporaryRoleBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, batch)
	if s.batchErr != nil {
		return s.batchErr
	}
	for _, record := range batch.Records() {
		s.records.Add(record)
	}
	return nil
}

func (s *fakeStore) RemoveTemporaryRole(_ context.Context, guildID, userID, roleID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removes = append(s.removes, userID)
	if s.removeErr != nil {
		return false, s.removeErr
	}
	roles, ok := s.records[guildID][userID]
	if !ok {
		return false, nil
	}
	if _, ok := roles[roleID]; !ok {
		return false, nil
	}
	delete(roles, roleID)
	if len(roles) == 0 {
		delete(s.records[guildID], userID)
	}
	return true, nil
}

func (s *fakeStore) GetAllTemporaryRoles(context.Context) (data.TemporaryRoleIndex, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getAllErr != nil {
		return nil, s.getAllErr
	}
	out := make(data.TemporaryRoleIndex)
	for _, record := range s.records.Flatten() {
		out.Add(record)
	}
	return out, nil
}

func (s *fakeStore) GetTemporaryRolesForGuild(_ context.Context, guildID string) ([]data.TemporaryRole, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []data.TemporaryRole
	for _, record := range s.records.Flatten() {
		if record.GuildID == guildID {
			out = append(out, record)
		}
	}
	return out, nil
}

func (s *fakeStore) GetUserTemporaryRoles(_ context.Context, guildID, userID string) ([]data.TemporaryRole, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getUserErr != nil {
		return nil, s.getUserErr
	}
	var out []data.TemporaryRole
	for _, record := range s.records[guildID][userID] {
		out = append(out, record)
	}
	return out, nil
}

func (s *fakeStore) record(userID string) (data.TemporaryRole, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[testGuild][userID][testRole]
	return r, ok
}

type fakeNotifier struct {
	mu      sync.Mutex
	granted []string
	removed []notify.RemovalNotice
}

func (n *fakeNotifier) RoleGranted(_ context.Context, notice notify.GrantNotice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.granted = append(n.granted, notice.Member.User.ID)
}

func (n *fakeNotifier) RoleRemoved(_ context.Context, notice notify.RemovalNotice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.removed = append(n.removed, notice)
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestManager(gw gateway.Gateway, store data.TemporaryRoleStore, notifier notify.Notifier) *Manager {
	m := NewManager(gw, store, notifier, DefaultBulkCap, zap.NewNop())
	m.now = func() time.Time { return fixedNow }
	m.newBatchID = func() string { return "batch-1" }
	return m
}
