package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "test-token")
	t.Setenv("BULK_ROLE_CAP", "5")
	t.Setenv("EXPIRY_SWEEP_INTERVAL", "30s")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	config, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "test-token", config.DiscordToken)
	assert.Equal(t, 5, config.BulkRoleCap)
	assert.Equal(t, 30*time.Second, config.ExpirySweepInterval)
	assert.Equal(t, defaultMemberTTL, config.MemberCacheTTL)
	assert.True(t, config.CacheEnabled())
	assert.False(t, config.StorageEnabled())
}

func TestLoad_MissingToken(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "")

	_, err := Load()
	assert.ErrorIs(t, err, ErrMissingDiscordToken)
}

func TestLoad_BadNumbersFallBackToDefaults(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "test-token")
	t.Setenv("BULK_ROLE_CAP", "ten")
	t.Setenv("MEMBER_CACHE_TTL", "-5m")

	config, err := Load()
	require.NoError(t, err)

	assert.Equal(t, defaultBulkCap, config.BulkRoleCap)
	assert.Equal(t, defaultMemberTTL, config.MemberCacheTTL)
}

func TestLoadServer_NoTokenNeeded(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "")
	t.Setenv("PORT", "9000")

	config, err := LoadServer()
	require.NoError(t, err)
	require.NoError(t, config.ValidateServer())
	assert.Equal(t, "9000", config.Port)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr error
	}{
		{
			name:   "valid config",
			config: &Config{DiscordToken: "test-token", BulkRoleCap: 10},
		},
		{
			name:    "missing token",
			config:  &Config{BulkRoleCap: 10},
			wantErr: ErrMissingDiscordToken,
		},
		{
			name:    "cap too small",
			config:  &Config{DiscordToken: "test-token", BulkRoleCap: 0},
			wantErr: ErrInvalidBulkCap,
		},
		{
			name:    "cap too large",
			config:  &Config{DiscordToken: "test-token", BulkRoleCap: 101},
			wantErr: ErrInvalidBulkCap,
		},
		{
			name: "firestore project without database",
			config: &Config{
				DiscordToken:       "test-token",
				BulkRoleCap:        10,
				FirestoreProjectID: "project",
			},
			wantErr: ErrMissingDatabaseID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestValidate_FillsDefaults(t *testing.T) {
	config := &Config{DiscordToken: "test-token", BulkRoleCap: 10}

	require.NoError(t, config.Validate())

	assert.Equal(t, "info", config.LogLevel)
	assert.Equal(t, defaultNotifyWorkers, config.NotifyWorkers)
	assert.Equal(t, defaultSweepInterval, config.ExpirySweepInterval)
	assert.Equal(t, defaultMemberTTL, config.MemberCacheTTL)
	assert.Equal(t, "8080", config.Port)
}
