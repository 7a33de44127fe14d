package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/persistence"
)

// VersionRepository handles the version log in the database. Head moves run in
// a transaction holding a row lock on the entity.
type VersionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewVersionRepository creates a new version repository.
func NewVersionRepository(db *sql.DB, logger *slog.Logger) *VersionRepository {
	return &VersionRepository{db: db, logger: logger}
}

// Append stores version as the new head of its entity.
func (vr *VersionRepository) Append(ctx context.Context, version *models.Version, expectedHead int64) error {
	kind := string(version.EntityKind)

	tx, err := vr.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	var (
		current int64
		deleted bool
	)

	err = tx.QueryRowContext(ctx,
		`SELECT head, deleted FROM entities WHERE kind = $1 AND entity_id = $2 FOR UPDATE`,
		kind, version.EntityID,
	).Scan(&current, &deleted)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		current = 0
	case err != nil:
		return persistence.NewVersionError("Append", kind, version.EntityID, version.Number, err)
	case deleted:
		return persistence.NewVersionError("Append", kind, version.EntityID, version.Number, persistence.ErrEntityDeleted)
	}

	if current != expectedHead || version.Number != expectedHead+1 {
		return persistence.NewVersionError("Append", kind, version.EntityID, version.Number, persistence.ErrVersionConflict)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO versions (kind, entity_id, number, author, note, restored_of, snapshot, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		kind, version.EntityID, version.Number, version.Author, version.Note,
		version.RestoredOf, string(version.Snapshot), version.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return persistence.NewVersionError("Append", kind, version.EntityID, version.Number, persistence.ErrVersionConflict)
		}

		return persistence.NewVersionError("Append", kind, version.EntityID, version.Number, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO entities (kind, entity_id, head, deleted, updated_at)
		VALUES ($1, $2, $3, FALSE, $4)
		ON CONFLICT (kind, entity_id) DO UPDATE SET
			head = EXCLUDED.head,
			updated_at = EXCLUDED.updated_at`,
		kind, version.EntityID, version.Number, version.CreatedAt,
	)
	if err != nil {
		return persistence.NewVersionError("Append", kind, version.EntityID, version.Number, err)
	}

	err = tx.Commit()
	if err != nil {
		if isUniqueViolation(err) {
			return persistence.NewVersionError("Append", kind, version.EntityID, version.Number, persistence.ErrVersionConflict)
		}

		return fmt.Errorf("failed to commit version: %w", err)
	}

	return nil
}

// Head returns the head pointer of an entity, including deleted ones.
func (vr *VersionRepository) Head(ctx context.Context, kind models.EntityKind, entityID string) (*persistence.EntityHead, error) {
	head := &persistence.EntityHead{Kind: kind, EntityID: entityID}

	err := vr.db.QueryRowContext(ctx,
		`SELECT head, deleted, updated_at FROM entities WHERE kind = $1 AND entity_id = $2`,
		string(kind), entityID,
	).Scan(&head.Head, &head.Deleted, &head.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewVersionError("Head", string(kind), entityID, 0, persistence.ErrEntityNotFound)
		}

		return nil, persistence.NewVersionError("Head", string(kind), entityID, 0, err)
	}

	return head, nil
}

// Get returns a single version.
func (vr *VersionRepository) Get(ctx context.Context, kind models.EntityKind, entityID string, number int64) (*models.Version, error) {
	row := vr.db.QueryRowContext(ctx, `
		SELECT kind, entity_id, number, author, note, restored_of, snapshot, created_at
		FROM versions WHERE kind = $1 AND entity_id = $2 AND number = $3`,
		string(kind), entityID, number,
	)

	version, err := scanVersion(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewVersionError("Get", string(kind), entityID, number, persistence.ErrVersionNotFound)
		}

		return nil, persistence.NewVersionError("Get", string(kind), entityID, number, err)
	}

	return version, nil
}

// List returns every version of an entity ordered by number.
func (vr *VersionRepository) List(ctx context.Context, kind models.EntityKind, entityID string) ([]*models.Version, error) {
	rows, err := vr.db.QueryContext(ctx, `
		SELECT kind, entity_id, number, author, note, restored_of, snapshot, created_at
		FROM versions WHERE kind = $1 AND entity_id = $2
		ORDER BY number ASC`,
		string(kind), entityID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query versions: %w", err)
	}

	defer closeRows(ctx, vr.logger, rows)

	var versions []*models.Version

	for rows.Next() {
		version, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}

		if version.Number != int64(len(versions)+1) {
			return nil, persistence.NewVersionError("List", string(kind), entityID, version.Number, persistence.ErrCorrupted)
		}

		versions = append(versions, version)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("failed to iterate versions: %w", err)
	}

	return versions, nil
}

// ListHeads returns the heads of every entity of kind that is not deleted.
func (vr *VersionRepository) ListHeads(ctx context.Context, kind models.EntityKind) ([]*persistence.EntityHead, error) {
	rows, err := vr.db.QueryContext(ctx, `
		SELECT entity_id, head, updated_at FROM entities
		WHERE kind = $1 AND deleted = FALSE
		ORDER BY entity_id`,
		string(kind),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query heads: %w", err)
	}

	defer closeRows(ctx, vr.logger, rows)

	var heads []*persistence.EntityHead

	for rows.Next() {
		head := &persistence.EntityHead{Kind: kind}

		err := rows.Scan(&head.EntityID, &head.Head, &head.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan head: %w", err)
		}

		heads = append(heads, head)
	}

	return heads, rows.Err()
}

// MarkDeleted tombstones an entity. Its versions stay readable.
func (vr *VersionRepository) MarkDeleted(ctx context.Context, kind models.EntityKind, entityID string, expectedHead int64) error {
	result, err := vr.db.ExecContext(ctx, `
		UPDATE entities SET deleted = TRUE, updated_at = $4
		WHERE kind = $1 AND entity_id = $2 AND head = $3 AND deleted = FALSE`,
		string(kind), entityID, expectedHead, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to delete entity: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if affected > 0 {
		return nil
	}

	head, err := vr.Head(ctx, kind, entityID)
	if err != nil {
		return err
	}

	if head.Deleted {
		return persistence.NewVersionError("MarkDeleted", string(kind), entityID, 0, persistence.ErrEntityDeleted)
	}

	return persistence.NewVersionError("MarkDeleted", string(kind), entityID, expectedHead, persistence.ErrVersionConflict)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanVersion(row scanner) (*models.Version, error) {
	var (
		version  models.Version
		kind     string
		snapshot []byte
	)

	err := row.Scan(&kind, &version.EntityID, &version.Number, &version.Author, &version.Note,
		&version.RestoredOf, &snapshot, &version.CreatedAt)
	if err != nil {
		return nil, err
	}

	version.EntityKind = models.EntityKind(kind)
	version.Snapshot = snapshot

	return &version, nil
}
