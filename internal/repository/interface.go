package repository

import (
	"context"
	"errors"

	"taxassist/backend/pkg/models"
)

// ErrNotFound is returned when a keyed record does not exist.
var ErrNotFound = errors.New("not found")

// ProgressStore persists per-user workflow progress. Writes are
// last-write-wins; the workflow engine serializes access per user.
type ProgressStore interface {
	// Get retrieves a user's progress. Returns ErrNotFound when absent.
	Get(ctx context.Context, userID string) (*models.Progress, error)
	// Save upserts a user's progress.
	Save(ctx context.Context, progress *models.Progress) error
}

// CatalogStore persists the once-generated question catalog per user.
type CatalogStore interface {
	// Get retrieves a user's catalog. Returns ErrNotFound when absent.
	Get(ctx context.Context, userID string) (*models.Catalog, error)
	// Save stores a freshly generated catalog.
	Save(ctx context.Context, catalog *models.Catalog) error
}

// UpdateResult reports the outcome of a field-group update.
type UpdateResult struct {
	RowsAffected  int64    `json:"rows_affected"`
	UpdatedFields []string `json:"updated_fields"`
}

// AssociatedClient is a sub-client linked to a main individual client.
type AssociatedClient struct {
	PracticeID      string `json:"practice_id"`
	Name            string `json:"name"`
	Email           string `json:"email,omitempty"`
	AssociationType string `json:"association_type"`
}

// FieldStore is the gateway to the external client data system. Records are
// owned by that system; the service only references them by practice id and
// client type and reads/writes whole named field groups.
type FieldStore interface {
	// ResolveClient maps an external practice id to the internal record id.
	// Returns ErrNotFound when no matching record exists.
	ResolveClient(ctx context.Context, practiceID string, clientType models.ClientType) (int64, error)
	// GetFieldGroup reads one whole group projection for a client.
	GetFieldGroup(ctx context.Context, internalID int64, clientType models.ClientType, group models.FieldGroup) (map[string]any, error)
	// UpdateFieldGroup writes the supplied subset of a group's columns.
	// Fields outside the group's projection are rejected.
	UpdateFieldGroup(ctx context.Context, internalID int64, clientType models.ClientType, group models.FieldGroup, fields map[string]any) (*UpdateResult, error)
	// AssociatedClients lists active individual sub-clients of a main client.
	AssociatedClients(ctx context.Context, practiceID string, clientType models.ClientType) ([]AssociatedClient, error)
}
