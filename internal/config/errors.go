package config

import "errors"

var (
	ErrMissingDiscordToken = errors.New("DISCORD_TOKEN environment variable is required")
	ErrInvalidBulkCap      = errors.New("BULK_ROLE_CAP must be between 1 and 100")
	ErrMissingDatabaseID   = errors.New("FIRESTORE_DATABASE_ID is required when FIRESTORE_PROJECT_ID is set")
)
