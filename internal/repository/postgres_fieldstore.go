package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"taxassist/backend/pkg/models"
)

// PostgresFieldStore is the PostgreSQL gateway to the client data tables.
// All SQL is built from the closed field-group registry in pkg/models; no
// caller-supplied identifier ever reaches a query.
type PostgresFieldStore struct {
	db     *pgxpool.Pool
	logger zerolog.Logger
}

// NewPostgresFieldStore creates a new PostgresFieldStore.
func NewPostgresFieldStore(db *pgxpool.Pool, logger zerolog.Logger) *PostgresFieldStore {
	return &PostgresFieldStore{db: db, logger: logger.With().Str("store", "fields").Logger()}
}

// tableAndPK maps a client type to its entity table and primary key column.
func tableAndPK(ct models.ClientType) (string, string, error) {
	switch ct {
	case models.ClientTypeCompany:
		return "company", "company_id", nil
	case models.ClientTypeIndividual:
		return "individual", "id", nil
	default:
		return "", "", fmt.Errorf("unsupported client type: %q", ct)
	}
}

// ResolveClient maps an external practice id to the internal record id via
// the internal_data mapping table.
func (s *PostgresFieldStore) ResolveClient(ctx context.Context, practiceID string, clientType models.ClientType) (int64, error) {
	if _, _, err := tableAndPK(clientType); err != nil {
		return 0, err
	}
	var referenceID int64
	err := s.db.QueryRow(ctx,
		`SELECT reference_id FROM internal_data WHERE practice_id = $1 AND reference = $2 LIMIT 1`,
		practiceID, string(clientType),
	).Scan(&referenceID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("resolve client: %w", err)
	}
	return referenceID, nil
}

// GetFieldGroup reads one whole group projection for a client. Returns
// ErrNotFound when the client row does not exist.
func (s *PostgresFieldStore) GetFieldGroup(ctx context.Context, internalID int64, clientType models.ClientType, group models.FieldGroup) (map[string]any, error) {
	schema, ok := models.FieldGroups[group]
	if !ok {
		return nil, fmt.Errorf("unknown field group: %q", group)
	}
	columns, ok := schema.GroupColumns(clientType)
	if !ok {
		return nil, fmt.Errorf("field group %q does not apply to %s clients", group, clientType)
	}
	table, pk, err := tableAndPK(clientType)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1`, strings.Join(columns, ", "), table, pk)

	values := make([]any, len(columns))
	dest := make([]any, len(columns))
	for i := range values {
		dest[i] = &values[i]
	}
	err = s.db.QueryRow(ctx, query, internalID).Scan(dest...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get field group %s: %w", group, err)
	}

	record := make(map[string]any, len(columns))
	for i, col := range columns {
		record[col] = values[i]
	}
	return record, nil
}

// UpdateFieldGroup writes the supplied subset of a group's columns. Fields
// outside the group's projection are rejected before any write.
func (s *PostgresFieldStore) UpdateFieldGroup(ctx context.Context, internalID int64, clientType models.ClientType, group models.FieldGroup, fields map[string]any) (*UpdateResult, error) {
	schema, ok := models.FieldGroups[group]
	if !ok {
		return nil, fmt.Errorf("unknown field group: %q", group)
	}
	columns, ok := schema.GroupColumns(clientType)
	if !ok {
		return nil, fmt.Errorf("field group %q does not apply to %s clients", group, clientType)
	}
	if len(fields) == 0 {
		return nil, errors.New("no fields to update")
	}
	allowed := make(map[string]bool, len(columns))
	for _, col := range columns {
		allowed[col] = true
	}

	setClauses := make([]string, 0, len(fields))
	args := make([]any, 0, len(fields)+1)
	updated := make([]string, 0, len(fields))
	for _, col := range columns {
		value, present := fields[col]
		if !present {
			continue
		}
		args = append(args, value)
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", col, len(args)))
		updated = append(updated, col)
	}
	for name := range fields {
		if !allowed[name] {
			return nil, fmt.Errorf("field %q is not part of group %q", name, group)
		}
	}

	table, pk, err := tableAndPK(clientType)
	if err != nil {
		return nil, err
	}
	args = append(args, internalID)
	query := fmt.Sprintf(`UPDATE %s SET %s WHERE %s = $%d`, table, strings.Join(setClauses, ", "), pk, len(args))

	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("update field group %s: %w", group, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}

	s.logger.Info().Int64("client", internalID).Str("group", string(group)).Strs("fields", updated).Msg("field group updated")
	return &UpdateResult{RowsAffected: tag.RowsAffected(), UpdatedFields: updated}, nil
}

// AssociatedClients lists active individual sub-clients associated with a
// main client. Only rows tagged 'Sub Client' with active status qualify.
func (s *PostgresFieldStore) AssociatedClients(ctx context.Context, practiceID string, clientType models.ClientType) ([]AssociatedClient, error) {
	if clientType != models.ClientTypeIndividual {
		return nil, fmt.Errorf("associated clients are only tracked for individual filers")
	}

	rows, err := s.db.Query(ctx,
		`SELECT a.associated_practice_id, i.first_name, i.last_name, i.email, a.association_type
		 FROM client_association_details a
		 JOIN internal_data d ON d.practice_id = a.associated_practice_id AND d.reference = 'individual'
		 JOIN individual i ON i.id = d.reference_id
		 WHERE a.main_practice_id = $1
		   AND a.association_type = 'Sub Client'
		   AND a.status = 1`,
		practiceID,
	)
	if err != nil {
		return nil, fmt.Errorf("list associated clients: %w", err)
	}
	defer rows.Close()

	var clients []AssociatedClient
	for rows.Next() {
		var (
			c                  AssociatedClient
			first, last, email *string
		)
		if err := rows.Scan(&c.PracticeID, &first, &last, &email, &c.AssociationType); err != nil {
			return nil, fmt.Errorf("scan associated client: %w", err)
		}
		c.Name = strings.TrimSpace(deref(first) + " " + deref(last))
		c.Email = deref(email)
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
