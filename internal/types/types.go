// Package types provides common type definitions used throughout filament.
// This package contains shared types to avoid circular dependencies between
// packages.
package types

import "time"

// FileState is the lifecycle tag of a tracked source file.
type FileState string

const (
	// StateIdle means the record exists but nothing has been read yet.
	StateIdle FileState = "idle"
	// StateLoading means the source is being read and parsed.
	StateLoading FileState = "loading"
	// StateParsed means dependency edges are known but the file has not
	// been transpiled or cached yet. Only used during batch processing.
	StateParsed FileState = "parsed"
	// StateReady means the cached artifact on disk is consistent with the
	// current source hash and its imports have been rewritten.
	StateReady FileState = "ready"
	// StateUpdating means a live edit is being reprocessed.
	StateUpdating FileState = "updating"
	// StateFailed means the last parse or transpile attempt errored; the
	// previous artifact, if any, is left untouched on disk.
	StateFailed FileState = "failed"
	// StateDeleted means the backing file has vanished.
	StateDeleted FileState = "deleted"
)

// FileKind classifies the role a source file plays in the project. The kind
// drives how the surrounding dev server reacts to a change; the core engine
// only computes and carries it.
type FileKind string

const (
	KindEntry      FileKind = "entry"
	KindConfig     FileKind = "config"
	KindRoute      FileKind = "route"
	KindController FileKind = "controller"
	KindModule     FileKind = "module"
	// KindTypeOnly marks files with no runtime statements. They are exempt
	// from cycle reporting and from runtime dependent tracking.
	KindTypeOnly FileKind = "type-only"
)

// ReloadLayer is the reload strategy the dev server applies when a file of
// a given kind changes.
type ReloadLayer string

const (
	// LayerRestart requires a full server restart (entry points, config).
	LayerRestart ReloadLayer = "restart"
	// LayerHotSwap allows swapping the module in the running process.
	LayerHotSwap ReloadLayer = "hot-swap"
)

// LayerFor returns the reload strategy for a file kind.
func LayerFor(kind FileKind) ReloadLayer {
	switch kind {
	case KindEntry, KindConfig:
		return LayerRestart
	default:
		return LayerHotSwap
	}
}

// EventType represents the type of file graph event.
type EventType string

const (
	EventTypeReady   EventType = "ready"
	EventTypeFailed  EventType = "failed"
	EventTypeRemoved EventType = "removed"
)

// FileEvent represents a change in the file graph, used for real-time
// notifications to watchers like the dev loop and the serve command.
type FileEvent struct {
	// Type indicates the kind of change (ready, failed, removed)
	Type EventType
	// RelPath is the normalized project-relative path of the file
	RelPath string
	// Kind is the file's classification at event time
	Kind FileKind
	// Layer is the reload strategy derived from Kind
	Layer ReloadLayer
	// Version is the record version after the change
	Version int64
	// Err carries the failure for EventTypeFailed events (nil otherwise)
	Err error
	// Timestamp records when the event occurred for ordering and filtering
	Timestamp time.Time
}
