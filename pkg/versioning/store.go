// Package versioning keeps the immutable, linear version history of integrations and workflows.
package versioning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/persistence"
)

// ConflictError is returned when a commit was based on a head that is no longer current.
type ConflictError struct {
	Kind     models.EntityKind
	EntityID string
	Expected int64
	Current  int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s: expected version %d but current is %d", e.Kind, e.EntityID, e.Expected, e.Current)
}

func (e *ConflictError) Is(target error) bool {
	return target == persistence.ErrVersionConflict
}

// Store commits, reads and diffs versions. The snapshot of each entity's
// current version is cached behind an atomic pointer that only moves forward,
// after the log accepted the commit.
type Store struct {
	repo   persistence.VersionRepository
	logger *slog.Logger
	now    func() time.Time
	heads  sync.Map // "kind/id" -> *atomic.Pointer[models.Version]
}

// NewStore creates a version store over repo.
func NewStore(repo persistence.VersionRepository, logger *slog.Logger) *Store {
	return &Store{
		repo:   repo,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) pointer(kind models.EntityKind, entityID string) *atomic.Pointer[models.Version] {
	value, _ := s.heads.LoadOrStore(string(kind)+"/"+entityID, &atomic.Pointer[models.Version]{})

	return value.(*atomic.Pointer[models.Version]) //nolint:forcetypeassert // only pointers are stored
}

// Commit stores snapshot as version expectedHead+1. An expectedHead of 0
// creates the entity.
func (s *Store) Commit(
	ctx context.Context,
	kind models.EntityKind,
	entityID string,
	expectedHead int64,
	snapshot any,
	author, note string,
) (*models.Version, error) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}

	return s.append(ctx, &models.Version{
		EntityKind: kind,
		EntityID:   entityID,
		Number:     expectedHead + 1,
		Author:     author,
		Note:       note,
		CreatedAt:  s.now(),
		Snapshot:   data,
	}, expectedHead)
}

func (s *Store) append(ctx context.Context, version *models.Version, expectedHead int64) (*models.Version, error) {
	err := s.repo.Append(ctx, version, expectedHead)
	if err != nil {
		if errors.Is(err, persistence.ErrVersionConflict) {
			s.heads.Delete(string(version.EntityKind) + "/" + version.EntityID)

			current := int64(0)
			if head, headErr := s.repo.Head(ctx, version.EntityKind, version.EntityID); headErr == nil {
				current = head.Head
			}

			return nil, &ConflictError{
				Kind:     version.EntityKind,
				EntityID: version.EntityID,
				Expected: expectedHead,
				Current:  current,
			}
		}

		return nil, err
	}

	s.pointer(version.EntityKind, version.EntityID).Store(version)

	s.logger.InfoContext(ctx, "Committed version",
		"kind", version.EntityKind,
		"entity_id", version.EntityID,
		"version", version.Number,
		"author", version.Author,
	)

	return version, nil
}

// Head returns the current version of a live entity. The head number is
// always read from the log so commits made through another store are seen;
// only the snapshot body is served from the cache.
func (s *Store) Head(ctx context.Context, kind models.EntityKind, entityID string) (*models.Version, error) {
	head, err := s.repo.Head(ctx, kind, entityID)
	if err != nil {
		return nil, err
	}

	return s.resolve(ctx, kind, entityID, head)
}

// resolve returns the version a head entry points at.
func (s *Store) resolve(
	ctx context.Context,
	kind models.EntityKind,
	entityID string,
	head *persistence.EntityHead,
) (*models.Version, error) {
	if head.Deleted {
		s.heads.Delete(string(kind) + "/" + entityID)

		return nil, persistence.NewVersionError("Head", string(kind), entityID, 0, persistence.ErrEntityDeleted)
	}

	ptr := s.pointer(kind, entityID)
	if cached := ptr.Load(); cached != nil && cached.Number == head.Head {
		return cached, nil
	}

	version, err := s.repo.Get(ctx, kind, entityID, head.Head)
	if err != nil {
		if errors.Is(err, persistence.ErrVersionNotFound) {
			return nil, fmt.Errorf("%w: head %d of %s %s is missing", persistence.ErrCorrupted, head.Head, kind, entityID)
		}

		return nil, err
	}

	for {
		cached := ptr.Load()
		if cached != nil && cached.Number >= version.Number {
			break
		}

		if ptr.CompareAndSwap(cached, version) {
			break
		}
	}

	return version, nil
}

// Heads returns the current version of every live entity of kind.
func (s *Store) Heads(ctx context.Context, kind models.EntityKind) ([]*models.Version, error) {
	heads, err := s.repo.ListHeads(ctx, kind)
	if err != nil {
		return nil, err
	}

	versions := make([]*models.Version, 0, len(heads))

	for _, head := range heads {
		version, err := s.resolve(ctx, kind, head.EntityID, head)
		if err != nil {
			if persistence.IsNotFound(err) {
				continue
			}

			return nil, err
		}

		versions = append(versions, version)
	}

	return versions, nil
}

// Get returns a specific version.
func (s *Store) Get(ctx context.Context, kind models.EntityKind, entityID string, number int64) (*models.Version, error) {
	return s.repo.Get(ctx, kind, entityID, number)
}

// History returns every version of an entity, oldest first.
func (s *Store) History(ctx context.Context, kind models.EntityKind, entityID string) ([]*models.Version, error) {
	versions, err := s.repo.List(ctx, kind, entityID)
	if err != nil {
		return nil, err
	}

	if len(versions) == 0 {
		return nil, persistence.NewVersionError("History", string(kind), entityID, 0, persistence.ErrEntityNotFound)
	}

	return versions, nil
}

// Diff compares the snapshots of versions from and to.
func (s *Store) Diff(ctx context.Context, kind models.EntityKind, entityID string, from, to int64) ([]models.Change, error) {
	a, err := s.repo.Get(ctx, kind, entityID, from)
	if err != nil {
		return nil, err
	}

	b, err := s.repo.Get(ctx, kind, entityID, to)
	if err != nil {
		return nil, err
	}

	return Diff(a.Snapshot, b.Snapshot)
}

// Rollback copies the snapshot of target forward as a new head. History is
// never rewritten.
func (s *Store) Rollback(
	ctx context.Context,
	kind models.EntityKind,
	entityID string,
	target, expectedHead int64,
	author string,
) (*models.Version, error) {
	version, err := s.repo.Get(ctx, kind, entityID, target)
	if err != nil {
		return nil, err
	}

	return s.append(ctx, &models.Version{
		EntityKind: kind,
		EntityID:   entityID,
		Number:     expectedHead + 1,
		Author:     author,
		Note:       fmt.Sprintf("Restored from version %d", target),
		RestoredOf: target,
		CreatedAt:  s.now(),
		Snapshot:   append(json.RawMessage(nil), version.Snapshot...),
	}, expectedHead)
}

// Delete tombstones an entity whose head is expectedHead.
func (s *Store) Delete(ctx context.Context, kind models.EntityKind, entityID string, expectedHead int64) error {
	err := s.repo.MarkDeleted(ctx, kind, entityID, expectedHead)

	s.heads.Delete(string(kind) + "/" + entityID)

	if errors.Is(err, persistence.ErrVersionConflict) {
		current := int64(0)
		if head, headErr := s.repo.Head(ctx, kind, entityID); headErr == nil {
			current = head.Head
		}

		return &ConflictError{Kind: kind, EntityID: entityID, Expected: expectedHead, Current: current}
	}

	return err
}
