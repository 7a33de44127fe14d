package versioning

import (
	"encoding/json"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/dukex/conduit/pkg/models"
)

// volatileFields change on every commit and are left out of diffs.
var volatileFields = map[string]bool{
	"version":    true,
	"updated_at": true,
	"updated_by": true,
}

// Diff returns the field-level changes that turn snapshot a into snapshot b,
// sorted by path. Arrays of objects carrying an "id" are matched by id.
func Diff(a, b json.RawMessage) ([]models.Change, error) {
	var left, right any

	err := json.Unmarshal(a, &left)
	if err != nil {
		return nil, fmt.Errorf("failed to decode left snapshot: %w", err)
	}

	err = json.Unmarshal(b, &right)
	if err != nil {
		return nil, fmt.Errorf("failed to decode right snapshot: %w", err)
	}

	changes := make([]models.Change, 0)
	diffValue("", left, right, true, &changes)

	slices.SortStableFunc(changes, func(x, y models.Change) int {
		return strings.Compare(x.Path, y.Path)
	})

	return changes, nil
}

func diffValue(path string, left, right any, root bool, changes *[]models.Change) {
	switch l := left.(type) {
	case map[string]any:
		r, ok := right.(map[string]any)
		if !ok {
			break
		}

		diffObject(path, l, r, root, changes)

		return
	case []any:
		r, ok := right.([]any)
		if !ok {
			break
		}

		diffArray(path, l, r, changes)

		return
	}

	if !reflect.DeepEqual(left, right) {
		*changes = append(*changes, models.Change{Op: models.ChangeOpReplace, Path: pathOrRoot(path), From: left, To: right})
	}
}

func diffObject(path string, left, right map[string]any, root bool, changes *[]models.Change) {
	keys := slices.Sorted(maps.Keys(left))

	for key := range right {
		if _, ok := left[key]; !ok {
			keys = append(keys, key)
		}
	}

	for _, key := range keys {
		if root && volatileFields[key] {
			continue
		}

		child := path + "/" + escape(key)
		l, inLeft := left[key]
		r, inRight := right[key]

		switch {
		case !inLeft:
			*changes = append(*changes, models.Change{Op: models.ChangeOpAdd, Path: child, To: r})
		case !inRight:
			*changes = append(*changes, models.Change{Op: models.ChangeOpRemove, Path: child, From: l})
		default:
			diffValue(child, l, r, false, changes)
		}
	}
}

func diffArray(path string, left, right []any, changes *[]models.Change) {
	leftByID, leftKeyed := indexByID(left)
	rightByID, rightKeyed := indexByID(right)

	if leftKeyed && rightKeyed {
		for _, id := range orderedIDs(left, right) {
			child := path + "/" + escape(id)
			l, inLeft := leftByID[id]
			r, inRight := rightByID[id]

			switch {
			case !inLeft:
				*changes = append(*changes, models.Change{Op: models.ChangeOpAdd, Path: child, To: r})
			case !inRight:
				*changes = append(*changes, models.Change{Op: models.ChangeOpRemove, Path: child, From: l})
			default:
				diffValue(child, l, r, false, changes)
			}
		}

		return
	}

	for i := range max(len(left), len(right)) {
		child := path + "/" + strconv.Itoa(i)

		switch {
		case i >= len(left):
			*changes = append(*changes, models.Change{Op: models.ChangeOpAdd, Path: child, To: right[i]})
		case i >= len(right):
			*changes = append(*changes, models.Change{Op: models.ChangeOpRemove, Path: child, From: left[i]})
		default:
			diffValue(child, left[i], right[i], false, changes)
		}
	}
}

// indexByID maps array elements by their "id" field when every element has one.
func indexByID(values []any) (map[string]any, bool) {
	index := make(map[string]any, len(values))

	for _, value := range values {
		object, ok := value.(map[string]any)
		if !ok {
			return nil, false
		}

		id, ok := object["id"].(string)
		if !ok || id == "" {
			return nil, false
		}

		if _, dup := index[id]; dup {
			return nil, false
		}

		index[id] = value
	}

	return index, true
}

func orderedIDs(left, right []any) []string {
	var ids []string

	seen := make(map[string]bool)

	for _, values := range [][]any{left, right} {
		for _, value := range values {
			id, _ := value.(map[string]any)["id"].(string)
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}

	return ids
}

// escape encodes a JSON pointer reference token.
func escape(token string) string {
	return strings.ReplaceAll(strings.ReplaceAll(token, "~", "~0"), "/", "~1")
}

func pathOrRoot(path string) string {
	if path == "" {
		return "/"
	}

	return path
}
