package domain

import "time"

type ConversionStatus string

const (
	StatusQueued     ConversionStatus = "queued"
	StatusUploading  ConversionStatus = "uploading"
	StatusConverting ConversionStatus = "converting"
	StatusDone       ConversionStatus = "done"
	StatusFailed     ConversionStatus = "failed"
)

// Terminal reports whether no further transition happens without an
// explicit retry.
func (s ConversionStatus) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

type Stage string

const (
	StageConverting Stage = "converting"
	StageGrouping   Stage = "grouping"
	StageCommitting Stage = "committing"
	StageClosed     Stage = "closed"
)

// RawFile is one submitted file of a batch. Immutable once enqueued;
// the raw bytes live in blob storage under StoragePath.
type RawFile struct {
	ID               string `json:"id"`
	OriginalFilename string `json:"original_filename"`
	StoragePath      string `json:"storage_path"`
	ContentType      string `json:"content_type"`
	Size             int64  `json:"size"`
}

// ConversionState tracks a single file through the item pipeline. It is
// mutated only by the worker that currently owns the item's index.
type ConversionState struct {
	Status          ConversionStatus `json:"status"`
	OutputURL       string           `json:"output_url,omitempty"`
	ErrorMessage    string           `json:"error,omitempty"`
	ProgressPercent int              `json:"progress_percent"`
	StagingPath     string           `json:"-"`
}

// Classification is derived from the original filename and never stored;
// an unrecognized name yields SubtypeUnassigned and an empty group key.
type Classification struct {
	Subtype  Subtype `json:"subtype"`
	GroupKey string  `json:"group_key,omitempty"`
}

type Subtype string

const (
	SubtypeFront      Subtype = "front"
	SubtypeBack       Subtype = "back"
	SubtypeLeft       Subtype = "left"
	SubtypeRight      Subtype = "right"
	SubtypeTop        Subtype = "top"
	SubtypeDetail     Subtype = "detail"
	SubtypeUnassigned Subtype = "unassigned"
)

// ItemView is the per-item status snapshot streamed to callers.
type ItemView struct {
	Index            int              `json:"index"`
	OriginalFilename string           `json:"original_filename"`
	Subtype          Subtype          `json:"subtype"`
	GroupKey         string           `json:"group_key,omitempty"`
	Status           ConversionStatus `json:"status"`
	ProgressPercent  int              `json:"progress_percent"`
	OutputURL        string           `json:"output_url,omitempty"`
	Error            string           `json:"error,omitempty"`
}

// BatchView is the whole-session snapshot returned by the status API.
type BatchView struct {
	ID        string       `json:"id"`
	Stage     Stage        `json:"stage"`
	Items     []ItemView   `json:"items"`
	Groups    []GroupDraft `json:"groups,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}
