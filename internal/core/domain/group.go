package domain

import (
	"strings"
	"time"
)

// UnmatchedKey is the reserved review bucket for items whose classifier
// found no group key. It is never persisted as a group.
const UnmatchedKey = "UNMATCHED"

// Group is the persisted parent record converted items attach to.
// At most one group exists per canonical key.
type Group struct {
	ID        string    `json:"id"`
	Key       string    `json:"key"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Item is one persisted converted file under a group. No two items of
// the same group share an output URL.
type Item struct {
	ID               string    `json:"id"`
	GroupID          string    `json:"group_id"`
	Subtype          Subtype   `json:"subtype"`
	OutputURL        string    `json:"output_url"`
	OriginalFilename string    `json:"original_filename"`
	CreatedAt        time.Time `json:"created_at"`
}

// GroupDraft is the in-memory review-stage grouping of done items.
// DisplayName is user-editable and only persisted at final commit.
type GroupDraft struct {
	Key         string `json:"key"`
	DisplayName string `json:"display_name"`
	ItemIndexes []int  `json:"item_indexes"`
}

// CommittedGroup is emitted to the caller after a successful final commit.
type CommittedGroup struct {
	GroupID string          `json:"group_id"`
	Name    string          `json:"name"`
	Items   []CommittedItem `json:"items"`
}

type CommittedItem struct {
	OutputURL        string  `json:"output_url"`
	Subtype          Subtype `json:"subtype"`
	OriginalFilename string  `json:"original_filename"`
}

// CanonicalGroupKey normalizes a raw key or display name to the canonical
// uppercase form used for group identity and the dual store lookup.
func CanonicalGroupKey(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}
