package data

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testGuild = "100000000000000001"
	testRole  = "300000000000000001"
	userA     = "200000000000000001"
	userB     = "200000000000000002"
)

func TestTemporaryRoleExpired(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		expiresAt time.Time
		want      bool
	}{
		{"future", now.Add(time.Minute), false},
		{"exactly now", now, true},
		{"past", now.Add(-time.Minute), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			role := TemporaryRole{ExpiresAt: tt.expiresAt}
			assert.Equal(t, tt.want, role.Expired(now))
		})
	}
}

func TestTemporaryRoleBatchRecords(t *testing.T) {
	expires := time.Now().Add(time.Hour)
	batch := TemporaryRoleBatch{
		ID:           "batch-1",
		GuildID:      testGuild,
		UserIDs:      []string{userA, userB},
		RoleID:       testRole,
		ExpiresAt:    expires,
		NotifyExpiry: true,
	}

	records := batch.Records()
	require.Len(t, records, 2)
	for i, record := range records {
		assert.Equal(t, batch.UserIDs[i], record.UserID)
		assert.Equal(t, testGuild, record.GuildID)
		assert.Equal(t, testRole, record.RoleID)
		assert.Equal(t, expires, record.ExpiresAt)
		assert.True(t, record.NotifyExpiry)
		assert.Equal(t, "batch-1", record.BatchID)
	}
}

func TestTemporaryRoleIndex(t *testing.T) {
	idx := make(TemporaryRoleIndex)
	first := TemporaryRole{GuildID: testGuild, UserID: userA, RoleID: testRole, ExpiresAt: time.Unix(100, 0)}
	second := TemporaryRole{GuildID: testGuild, UserID: userA, RoleID: testRole, ExpiresAt: time.Unix(200, 0)}
	other := TemporaryRole{GuildID: testGuild, UserID: userB, RoleID: testRole, ExpiresAt: time.Unix(300, 0)}

	idx.Add(first)
	idx.Add(second)
	idx.Add(other)

	assert.Equal(t, time.Unix(200, 0), idx[testGuild][userA][testRole].ExpiresAt, "re-adding a triple replaces it")
	assert.Len(t, idx.Flatten(), 2)
}

func TestGrantKey(t *testing.T) {
	assert.Equal(t, testGuild+"_"+userA+"_"+testRole, GrantKey(testGuild, userA, testRole))
	assert.NotEqual(t, GrantKey(testGuild, userA, testRole), GrantKey(testGuild, userB, testRole))
}

func TestIsSnowflake(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"200000000000000001", true},
		{"1234", false},
		{"20000000000000000a", false},
		{"", false},
		{"<@200000000000000001>", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, IsSnowflake(tt.input), tt.input)
	}
}

func TestValidator(t *testing.T) {
	valid := TemporaryRole{
		GuildID:   testGuild,
		UserID:    userA,
		RoleID:    testRole,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	assert.NoError(t, GetValidator().Struct(valid))

	missingExpiry := valid
	missingExpiry.ExpiresAt = time.Time{}
	assert.Error(t, GetValidator().Struct(missingExpiry))

	badUser := valid
	badUser.UserID = "not-a-user"
	assert.Error(t, GetValidator().Struct(badUser))

	emptyBatch := TemporaryRoleBatch{ID: "b", GuildID: testGuild, RoleID: testRole, ExpiresAt: time.Now()}
	assert.Error(t, GetValidator().Struct(emptyBatch))

	supporter := SupporterGrant{GuildID: testGuild, UserID: userA, RoleID: testRole, Reason: "patreon", IsActive: true}
	assert.NoError(t, GetValidator().Struct(supporter))
}
