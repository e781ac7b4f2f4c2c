package vault

import (
	"sort"

	"github.com/google/uuid"
)

// Folder is a simple tree node. Deleting a folder reparents its direct
// children to the root; it never cascades into items.
type Folder struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	ParentID *string `json:"parentId,omitempty"`
}

// Vault is the root aggregate, always handled as one atomically-replaced
// value. Version is assigned by the remote store and only ever changes as a
// result of a successful remote read or write; local mutation never bumps it.
type Vault struct {
	Version      int64    `json:"version"`
	Items        []Item   `json:"items"`
	Folders      []Folder `json:"folders"`
	LastModified int64    `json:"lastModified"`
}

// New returns an empty vault with no server version yet.
func New() *Vault {
	return &Vault{Items: []Item{}, Folders: []Folder{}}
}

// ActiveItems returns items not in the trash, newest update first.
func (v *Vault) ActiveItems() []Item {
	return v.filterItems(func(i *Item) bool { return !i.Deleted() })
}

// TrashItems returns items in the trash, newest update first.
func (v *Vault) TrashItems() []Item {
	return v.filterItems(func(i *Item) bool { return i.Deleted() })
}

func (v *Vault) filterItems(keep func(*Item) bool) []Item {
	out := make([]Item, 0, len(v.Items))
	for idx := range v.Items {
		if keep(&v.Items[idx]) {
			out = append(out, v.Items[idx])
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].UpdatedAt > out[b].UpdatedAt })
	return out
}

// FindItem returns a pointer into the vault's item slice, valid until the
// next structural mutation.
func (v *Vault) FindItem(id string) (*Item, bool) {
	for idx := range v.Items {
		if v.Items[idx].ID == id {
			return &v.Items[idx], true
		}
	}
	return nil, false
}

// AddItem inserts a new item, assigning an ID when absent and stamping both
// timestamps with now. Returns the stored item's ID.
func (v *Vault) AddItem(item Item, now int64) string {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	item.CreatedAt = now
	item.UpdatedAt = now
	item.DeletedAt = nil
	v.Items = append(v.Items, item)
	v.LastModified = now
	return item.ID
}

// UpdateItem replaces the name, folder and payload of an existing active
// item. ID and CreatedAt are immutable; UpdatedAt is refreshed.
func (v *Vault) UpdateItem(id string, name string, folderID *string, data ItemData, now int64) error {
	item, ok := v.FindItem(id)
	if !ok || item.Deleted() {
		return ErrItemNotFound
	}
	item.Name = name
	item.FolderID = folderID
	item.Data = data
	item.UpdatedAt = now
	v.LastModified = now
	return nil
}

// SoftDelete moves an active item to the trash.
func (v *Vault) SoftDelete(id string, now int64) error {
	item, ok := v.FindItem(id)
	if !ok || item.Deleted() {
		return ErrItemNotFound
	}
	deletedAt := now
	item.DeletedAt = &deletedAt
	item.UpdatedAt = now
	v.LastModified = now
	return nil
}

// Restore moves a trashed item back to the active set. Corrupted items are
// not restorable.
func (v *Vault) Restore(id string, now int64) error {
	item, ok := v.FindItem(id)
	if !ok || !item.Deleted() {
		return ErrItemNotFound
	}
	if !item.CanRestore() {
		return ErrNotRestorable
	}
	item.DeletedAt = nil
	item.UpdatedAt = now
	v.LastModified = now
	return nil
}

// PermanentlyDelete removes an item entirely, active or trashed. This is the
// only operation a corrupted item supports.
func (v *Vault) PermanentlyDelete(id string, now int64) error {
	for idx := range v.Items {
		if v.Items[idx].ID == id {
			v.Items = append(v.Items[:idx], v.Items[idx+1:]...)
			v.LastModified = now
			return nil
		}
	}
	return ErrItemNotFound
}

// EmptyTrash permanently removes every trashed item and reports how many
// were dropped.
func (v *Vault) EmptyTrash(now int64) int {
	kept := v.Items[:0]
	dropped := 0
	for idx := range v.Items {
		if v.Items[idx].Deleted() {
			dropped++
			continue
		}
		kept = append(kept, v.Items[idx])
	}
	v.Items = kept
	if dropped > 0 {
		v.LastModified = now
	}
	return dropped
}

// ToggleFavorite flips the favorite flag on an active item. Corrupted items
// cannot be favorited.
func (v *Vault) ToggleFavorite(id string, now int64) error {
	item, ok := v.FindItem(id)
	if !ok || item.Deleted() {
		return ErrItemNotFound
	}
	if !item.CanFavorite() {
		return ErrNotFavoritable
	}
	item.Favorite = !item.Favorite
	item.UpdatedAt = now
	v.LastModified = now
	return nil
}

// AddFolder creates a folder, assigning an ID when absent. A dangling
// parent reference is cleared rather than stored.
func (v *Vault) AddFolder(name string, parentID *string, now int64) Folder {
	if parentID != nil {
		if _, ok := v.findFolder(*parentID); !ok {
			parentID = nil
		}
	}
	f := Folder{ID: uuid.NewString(), Name: name, ParentID: parentID}
	v.Folders = append(v.Folders, f)
	v.LastModified = now
	return f
}

// RenameFolder changes a folder's display name.
func (v *Vault) RenameFolder(id, name string, now int64) error {
	f, ok := v.findFolder(id)
	if !ok {
		return ErrFolderNotFound
	}
	f.Name = name
	v.LastModified = now
	return nil
}

// DeleteFolder removes a folder. Items referencing it are reparented to the
// root (folderId cleared, other fields untouched) and child folders move up
// to the root as well. Items are never cascade-deleted.
func (v *Vault) DeleteFolder(id string, now int64) error {
	idx := -1
	for i := range v.Folders {
		if v.Folders[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrFolderNotFound
	}
	v.Folders = append(v.Folders[:idx], v.Folders[idx+1:]...)

	for i := range v.Items {
		if v.Items[i].FolderID != nil && *v.Items[i].FolderID == id {
			v.Items[i].FolderID = nil
		}
	}
	for i := range v.Folders {
		if v.Folders[i].ParentID != nil && *v.Folders[i].ParentID == id {
			v.Folders[i].ParentID = nil
		}
	}
	v.LastModified = now
	return nil
}

func (v *Vault) findFolder(id string) (*Folder, bool) {
	for idx := range v.Folders {
		if v.Folders[idx].ID == id {
			return &v.Folders[idx], true
		}
	}
	return nil, false
}
