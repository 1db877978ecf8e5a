package domain

import (
	"strings"
	"time"
)

// Collection names a per-owner record collection.
type Collection string

const (
	CollectionItems   Collection = "items"
	CollectionRecipes Collection = "recipes"
	CollectionUsage   Collection = "usage"
	// CollectionProfile holds the singleton per-owner profile document. Its
	// record id is always the owner id.
	CollectionProfile Collection = "profile"
)

// Category is the namespace used to organize asset paths and object keys.
type Category string

const (
	CategoryItems   Category = "items"
	CategoryRecipes Category = "recipes"
	CategoryProfile Category = "profile"
)

// SyncCollections is the order in which the reconcile pass visits collections.
// The profile singleton is always last.
var SyncCollections = []Collection{CollectionItems, CollectionRecipes, CollectionProfile}

// ParseCollection validates a collection name taken from user input.
func ParseCollection(s string) (Collection, bool) {
	switch c := Collection(strings.ToLower(strings.TrimSpace(s))); c {
	case CollectionItems, CollectionRecipes, CollectionUsage, CollectionProfile:
		return c, true
	default:
		return "", false
	}
}

// Category returns the asset category for photo-bearing collections.
func (c Collection) Category() (Category, bool) {
	switch c {
	case CollectionItems:
		return CategoryItems, true
	case CollectionRecipes:
		return CategoryRecipes, true
	case CollectionProfile:
		return CategoryProfile, true
	default:
		return "", false
	}
}

// UniqueNames reports whether record names must be unique per owner in c.
// Usage entries are a log and may repeat.
func (c Collection) UniqueNames() bool {
	return c == CollectionItems || c == CollectionRecipes
}

// Valid reports whether c is one of the fixed asset categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryItems, CategoryRecipes, CategoryProfile:
		return true
	default:
		return false
	}
}

// MediaReference points at a record's photo. An empty string means absent.
type MediaReference struct {
	RemoteURL string `json:"remote_url,omitempty"`
	LocalPath string `json:"local_path,omitempty"`
}

// Normalize enforces that a remote URL, once present, is canonical.
func (m MediaReference) Normalize() MediaReference {
	if m.RemoteURL != "" {
		m.LocalPath = ""
	}
	return m
}

// Pending reports whether the reference still points at an unsynced local asset.
func (m MediaReference) Pending() bool {
	return m.LocalPath != "" && m.RemoteURL == ""
}

// Empty reports whether the record has no photo at all.
func (m MediaReference) Empty() bool {
	return m.RemoteURL == "" && m.LocalPath == ""
}

type Record struct {
	ID         string         `json:"id"`
	OwnerID    string         `json:"owner_id"`
	Collection Collection     `json:"collection"`
	Name       string         `json:"name"`
	NameLower  string         `json:"name_lower"`
	Media      MediaReference `json:"media"`
	Fields     map[string]any `json:"fields,omitempty"`
	AddedAt    time.Time      `json:"added_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// RecordPatch is a partial update. Nil members are left untouched; Fields are
// merged key by key and a nil value removes the key.
type RecordPatch struct {
	Name   *string
	Media  *MediaReference
	Fields map[string]any
}

// FoldName returns the case-folded form stored in name_lower.
func FoldName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
