package data

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	temporaryRolesCollection = "temporary_roles"
	supportersCollection     = "supporters"
)

type FirestoreStorage struct {
	client *firestore.Client
}

func (fs *FirestoreStorage) Close() error {
	return fs.client.Close()
}

func NewFirestoreClient(ctx context.Context, projectID string, databaseID string) (*FirestoreStorage, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required")
	}
	if databaseID == "" {
		return nil, fmt.Errorf("databaseID is required - we do not allow connections to the default database")
	}

	// Using Application Default Credentials (ADC) - no explicit credentials needed
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, err
	}
	return &FirestoreStorage{client: client}, nil
}

func (fs *FirestoreStorage) temporaryRoleDoc(guildID, userID, roleID string) *firestore.DocumentRef {
	return fs.client.Collection(temporaryRolesCollection).Doc(GrantKey(guildID, userID, roleID))
}

func (fs *FirestoreStorage) supporterDoc(guildID, userID, roleID string) *firestore.DocumentRef {
	return fs.client.Collection(supportersCollection).Doc(GrantKey(guildID, userID, roleID))
}

// AddTemporaryRole overwrites the document for the triple, so a re-grant
// extends the expiry instead of adding a second record.
func (fs *FirestoreStorage) AddTemporaryRole(ctx context.Context, role TemporaryRole) error {
	if err := GetValidator().Struct(role); err != nil {
		return fmt.Errorf("invalid temporary role: %w", err)
	}
	if _, err := fs.temporaryRoleDoc(role.GuildID, role.UserID, role.RoleID).Set(ctx, role); err != nil {
		return fmt.Errorf("failed to save temporary role: %w", err)
	}
	return nil
}

// AddMultipleTemporaryRoles writes all records of the batch in one transaction.
func (fs *FirestoreStorage) AddMultipleTemporaryRoles(ctx context.Context, batch TemporaryRoleBatch) error {
	if err := GetValidator().Struct(batch); err != nil {
		return fmt.Errorf("invalid temporary role batch: %w", err)
	}

	records := batch.Records()
	err := fs.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		for _, record := range records {
			doc := fs.temporaryRoleDoc(record.GuildID, record.UserID, record.RoleID)
			if err := tx.Set(doc, record); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save temporary role batch %s: %w", batch.ID, err)
	}
	return nil
}

func (fs *FirestoreStorage) RemoveTemporaryRole(ctx context.Context, guildID, userID, roleID string) (bool, error) {
	return deleteExisting(ctx, fs.temporaryRoleDoc(guildID, userID, roleID))
}

func (fs *FirestoreStorage) GetAllTemporaryRoles(ctx context.Context) (TemporaryRoleIndex, error) {
	docs, err := fs.client.Collection(temporaryRolesCollection).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to get temporary roles: %w", err)
	}

	index := make(TemporaryRoleIndex)
	for _, doc := range docs {
		var role TemporaryRole
		if err := doc.DataTo(&role); err != nil {
			return nil, fmt.Errorf("failed to convert document %s to temporary role: %w", doc.Ref.ID, err)
		}
		index.Add(role)
	}
	return index, nil
}

func (fs *FirestoreStorage) GetTemporaryRolesForGuild(ctx context.Context, guildID string) ([]TemporaryRole, error) {
	query := fs.client.Collection(temporaryRolesCollection).Where("guild_id", "==", guildID)
	return getTemporaryRoles(ctx, query)
}

func (fs *FirestoreStorage) GetUserTemporaryRoles(ctx context.Context, guildID, userID string) ([]TemporaryRole, error) {
	query := fs.client.Collection(temporaryRolesCollection).
		Where("guild_id", "==", guildID).
		Where("user_id", "==", userID)
	return getTemporaryRoles(ctx, query)
}

func getTemporaryRoles(ctx context.Context, query firestore.Query) ([]TemporaryRole, error) {
	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to query temporary roles: %w", err)
	}

	roles := make([]TemporaryRole, 0, len(docs))
	for _, doc := range docs {
		var role TemporaryRole
		if err := doc.DataTo(&role); err != nil {
			return nil, fmt.Errorf("failed to convert document %s to temporary role: %w", doc.Ref.ID, err)
		}
		roles = append(roles, role)
	}
	return roles, nil
}

func (fs *FirestoreStorage) AddSupporter(ctx context.Context, grant SupporterGrant) error {
	if err := GetValidator().Struct(grant); err != nil {
		return fmt.Errorf("invalid supporter grant: %w", err)
	}
	if _, err := fs.supporterDoc(grant.GuildID, grant.UserID, grant.RoleID).Set(ctx, grant); err != nil {
		return fmt.Errorf("failed to save supporter: %w", err)
	}
	return nil
}

func (fs *FirestoreStorage) RemoveSupporter(ctx context.Context, guildID, userID, roleID string) (bool, error) {
	return deleteExisting(ctx, fs.supporterDoc(guildID, userID, roleID))
}

func (fs *FirestoreStorage) GetSupporters(ctx context.Context, guildID string) ([]SupporterGrant, error) {
	docs, err := fs.client.Collection(supportersCollection).
		Where("guild_id", "==", guildID).
		Where("is_active", "==", true).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to get supporters: %w", err)
	}

	grants := make([]SupporterGrant, 0, len(docs))
	for _, doc := range docs {
		var grant SupporterGrant
		if err := doc.DataTo(&grant); err != nil {
			return nil, fmt.Errorf("failed to convert document %s to supporter: %w", doc.Ref.ID, err)
		}
		grants = append(grants, grant)
	}
	return grants, nil
}

// deleteExisting deletes doc and reports false, without error, when it did
// not exist.
func deleteExisting(ctx context.Context, doc *firestore.DocumentRef) (bool, error) {
	_, err := doc.Delete(ctx, firestore.Exists)
	if err == nil {
		return true, nil
	}
	if status.Code(err) == codes.NotFound {
		return false, nil
	}
	return false, fmt.Errorf("failed to delete %s: %w", doc.ID, err)
}
