package data

import (
	"fmt"
	"time"
)

// TemporaryRole records that a member holds a role until ExpiresAt.
// There is at most one record per (guild, user, role).
type TemporaryRole struct {
	GuildID      string    `firestore:"guild_id" json:"guildId" validate:"required,snowflake"`
	UserID       string    `firestore:"user_id" json:"userId" validate:"required,snowflake"`
	RoleID       string    `firestore:"role_id" json:"roleId" validate:"required,snowflake"`
	ExpiresAt    time.Time `firestore:"expires_at" json:"expiresAt" validate:"required"`
	NotifyExpiry bool      `firestore:"notify_expiry" json:"notifyExpiry"`
	AssignedAt   time.Time `firestore:"assigned_at" json:"assignedAt"`
	AssignedBy   string    `firestore:"assigned_by,omitempty" json:"assignedBy,omitempty"`
	BatchID      string    `firestore:"batch_id,omitempty" json:"batchId,omitempty"`
}

// Expired reports whether the role should be removed at now.
func (t TemporaryRole) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// TemporaryRoleBatch is one bulk assignment: the same role and expiry for a
// list of users, written together.
type TemporaryRoleBatch struct {
	ID           string    `validate:"required"`
	GuildID      string    `validate:"required,snowflake"`
	UserIDs      []string  `validate:"required,min=1,dive,snowflake"`
	RoleID       string    `validate:"required,snowflake"`
	ExpiresAt    time.Time `validate:"required"`
	NotifyExpiry bool
	AssignedAt   time.Time
	AssignedBy   string
}

// Records expands the batch into one TemporaryRole per user.
func (b TemporaryRoleBatch) Records() []TemporaryRole {
	records := make([]TemporaryRole, 0, len(b.UserIDs))
	for _, userID := range b.UserIDs {
		records = append(records, TemporaryRole{
			GuildID:      b.GuildID,
			UserID:       userID,
			RoleID:       b.RoleID,
			ExpiresAt:    b.ExpiresAt,
			NotifyExpiry: b.NotifyExpiry,
			AssignedAt:   b.AssignedAt,
			AssignedBy:   b.AssignedBy,
			BatchID:      b.ID,
		})
	}
	return records
}

// TemporaryRoleIndex groups records as guildID -> userID -> roleID.
type TemporaryRoleIndex map[string]map[string]map[string]TemporaryRole

// Add inserts a record, replacing any record for the same triple.
func (idx TemporaryRoleIndex) Add(t TemporaryRole) {
	users, ok := idx[t.GuildID]
	if !ok {
		users = make(map[string]map[string]TemporaryRole)
		idx[t.GuildID] = users
	}
	roles, ok := users[t.UserID]
	if !ok {
		roles = make(map[string]TemporaryRole)
		users[t.UserID] = roles
	}
	roles[t.RoleID] = t
}

// Flatten returns every record in the index.
func (idx TemporaryRoleIndex) Flatten() []TemporaryRole {
	var out []TemporaryRole
	for _, users := range idx {
		for _, roles := range users {
			for _, t := range roles {
				out = append(out, t)
			}
		}
	}
	return out
}

// SupporterGrant is a permanent role given by an administrator.
type SupporterGrant struct {
	GuildID    string    `firestore:"guild_id" json:"guildId" validate:"required,snowflake"`
	UserID     string    `firestore:"user_id" json:"userId" validate:"required,snowflake"`
	RoleID     string    `firestore:"role_id" json:"roleId" validate:"required,snowflake"`
	AssignedAt time.Time `firestore:"assigned_at" json:"assignedAt"`
	AssignedBy string    `firestore:"assigned_by,omitempty" json:"assignedBy,omitempty"`
	Reason     string    `firestore:"reason" json:"reason" validate:"max=512"`
	IsActive   bool      `firestore:"is_active" json:"isActive"`
}

// GrantKey is the document ID for a (guild, user, role) triple.
func GrantKey(guildID, userID, roleID string) string {
	return fmt.Sprintf("%s_%s_%s", guildID, userID, roleID)
}
