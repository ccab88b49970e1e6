package types

const (
	ChangeCreated = "created"
	ChangeDeleted = "deleted"
)

// ChangeEvent describes one logical filesystem change inside an owner's
// sandbox. Tree operations emit one event per top-level item, not one per
// syscall.
type ChangeEvent struct {
	Type  string `json:"type"` // "created" or "deleted"
	Owner string `json:"owner"`
	Path  string `json:"path"` // sandbox-relative
	IsDir bool   `json:"isDir,omitempty"`
	Size  int64  `json:"size,omitempty"`
}

// EventSink receives change events for realtime UI updates. Implementations
// must not block; failures are the sink's problem, never the caller's.
type EventSink interface {
	Emit(event *ChangeEvent)
}

// ListingInvalidator drops cached directory listings after a mutation.
type ListingInvalidator interface {
	Invalidate(owner, relPath string)
}
