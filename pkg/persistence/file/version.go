package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/persistence"
)

// VersionRepository stores each version as its own file and keeps a head file
// per entity. A single mutex serialises head moves within the process.
type VersionRepository struct {
	root string
	mu   sync.Mutex
}

// NewVersionRepository creates a new version repository.
func NewVersionRepository(root string) *VersionRepository {
	return &VersionRepository{root: root}
}

func (vr *VersionRepository) versionDir(kind models.EntityKind, entityID string) string {
	return filepath.Join(vr.root, "versions", string(kind), entityID)
}

func (vr *VersionRepository) versionPath(kind models.EntityKind, entityID string, number int64) string {
	return filepath.Join(vr.versionDir(kind, entityID), fmt.Sprintf("%010d.json", number))
}

func (vr *VersionRepository) headPath(kind models.EntityKind, entityID string) string {
	return filepath.Join(vr.root, "entities", string(kind), entityID+".json")
}

// Append stores version as the new head of its entity.
func (vr *VersionRepository) Append(_ context.Context, version *models.Version, expectedHead int64) error {
	err := validateID(version.EntityID)
	if err != nil {
		return err
	}

	kind := string(version.EntityKind)

	vr.mu.Lock()
	defer vr.mu.Unlock()

	head, err := vr.readHead(version.EntityKind, version.EntityID)

	var current int64

	switch {
	case errors.Is(err, persistence.ErrEntityNotFound):
		current = 0
	case err != nil:
		return persistence.NewVersionError("Append", kind, version.EntityID, version.Number, err)
	case head.Deleted:
		return persistence.NewVersionError("Append", kind, version.EntityID, version.Number, persistence.ErrEntityDeleted)
	default:
		current = head.Head
	}

	if current != expectedHead || version.Number != expectedHead+1 {
		return persistence.NewVersionError("Append", kind, version.EntityID, version.Number, persistence.ErrVersionConflict)
	}

	err = createJSON(vr.versionPath(version.EntityKind, version.EntityID, version.Number), version)
	if err != nil {
		if os.IsExist(err) {
			return persistence.NewVersionError("Append", kind, version.EntityID, version.Number, persistence.ErrVersionConflict)
		}

		return persistence.NewVersionError("Append", kind, version.EntityID, version.Number, err)
	}

	return writeJSON(vr.headPath(version.EntityKind, version.EntityID), &persistence.EntityHead{
		Kind:      version.EntityKind,
		EntityID:  version.EntityID,
		Head:      version.Number,
		UpdatedAt: version.CreatedAt,
	})
}

// Head returns the head pointer of an entity, including deleted ones.
func (vr *VersionRepository) Head(_ context.Context, kind models.EntityKind, entityID string) (*persistence.EntityHead, error) {
	err := validateID(entityID)
	if err != nil {
		return nil, err
	}

	return vr.readHead(kind, entityID)
}

func (vr *VersionRepository) readHead(kind models.EntityKind, entityID string) (*persistence.EntityHead, error) {
	var head persistence.EntityHead

	err := readJSON(vr.headPath(kind, entityID), &head)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewVersionError("Head", string(kind), entityID, 0, persistence.ErrEntityNotFound)
		}

		return nil, persistence.NewVersionError("Head", string(kind), entityID, 0, err)
	}

	return &head, nil
}

// Get returns a single version.
func (vr *VersionRepository) Get(_ context.Context, kind models.EntityKind, entityID string, number int64) (*models.Version, error) {
	err := validateID(entityID)
	if err != nil {
		return nil, err
	}

	var version models.Version

	err = readJSON(vr.versionPath(kind, entityID, number), &version)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewVersionError("Get", string(kind), entityID, number, persistence.ErrVersionNotFound)
		}

		return nil, persistence.NewVersionError("Get", string(kind), entityID, number, err)
	}

	return &version, nil
}

// List returns every version of an entity ordered by number.
func (vr *VersionRepository) List(_ context.Context, kind models.EntityKind, entityID string) ([]*models.Version, error) {
	err := validateID(entityID)
	if err != nil {
		return nil, err
	}

	var versions []*models.Version

	err = readDir(vr.versionDir(kind, entityID), func(path string) error {
		var version models.Version

		err := readJSON(path, &version)
		if err != nil {
			return err
		}

		versions = append(versions, &version)

		return nil
	})
	if err != nil {
		return nil, persistence.NewVersionError("List", string(kind), entityID, 0, err)
	}

	sort.Slice(versions, func(i, j int) bool { return versions[i].Number < versions[j].Number })

	for i, version := range versions {
		if version.Number != int64(i+1) {
			return nil, persistence.NewVersionError("List", string(kind), entityID, version.Number, persistence.ErrCorrupted)
		}
	}

	return versions, nil
}

// ListHeads returns the heads of every entity of kind that is not deleted.
func (vr *VersionRepository) ListHeads(_ context.Context, kind models.EntityKind) ([]*persistence.EntityHead, error) {
	var heads []*persistence.EntityHead

	err := readDir(filepath.Join(vr.root, "entities", string(kind)), func(path string) error {
		var head persistence.EntityHead

		err := readJSON(path, &head)
		if err != nil {
			return err
		}

		if !head.Deleted {
			heads = append(heads, &head)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s heads: %w", kind, err)
	}

	sort.Slice(heads, func(i, j int) bool { return heads[i].EntityID < heads[j].EntityID })

	return heads, nil
}

// MarkDeleted tombstones an entity. Its versions stay readable.
func (vr *VersionRepository) MarkDeleted(_ context.Context, kind models.EntityKind, entityID string, expectedHead int64) error {
	err := validateID(entityID)
	if err != nil {
		return err
	}

	vr.mu.Lock()
	defer vr.mu.Unlock()

	head, err := vr.readHead(kind, entityID)
	if err != nil {
		return err
	}

	if head.Deleted {
		return persistence.NewVersionError("MarkDeleted", string(kind), entityID, 0, persistence.ErrEntityDeleted)
	}

	if head.Head != expectedHead {
		return persistence.NewVersionError("MarkDeleted", string(kind), entityID, expectedHead, persistence.ErrVersionConflict)
	}

	head.Deleted = true
	head.UpdatedAt = time.Now().UTC()

	return writeJSON(vr.headPath(kind, entityID), head)
}
