package data

import "context"

type TemporaryRoleStore interface {
	// AddTemporaryRole creates or overwrites the record for the triple.
	AddTemporaryRole(ctx context.Context, role TemporaryRole) error
	// AddMultipleTemporaryRoles writes every user of the batch or none of them.
	AddMultipleTemporaryRoles(ctx context.Context, batch TemporaryRoleBatch) error
	// RemoveTemporaryRole reports whether a record existed.
	RemoveTemporaryRole(ctx context.Context, guildID, userID, roleID string) (bool, error)
	GetAllTemporaryRoles(ctx context.Context) (TemporaryRoleIndex, error)
	GetTemporaryRolesForGuild(ctx context.Context, guildID string) ([]TemporaryRole, error)
	GetUserTemporaryRoles(ctx context.Context, guildID, userID string) ([]TemporaryRole, error)
}

type SupporterStore interface {
	AddSupporter(ctx context.Context, grant SupporterGrant) error
	RemoveSupporter(ctx context.Context, guildID, userID, roleID string) (bool, error)
	GetSupporters(ctx context.Context, guildID string) ([]SupporterGrant, error)
}

type Storage interface {
	TemporaryRoleStore
	SupporterStore
	Close() error
}
