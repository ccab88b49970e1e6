package types

// TreeOpLimits carries client-requested budgets for a recursive operation.
// Server-side clamps apply regardless of what the client asks for.
type TreeOpLimits struct {
	MaxDepth  int   `json:"maxDepth,omitempty"`
	MaxFiles  int   `json:"maxFiles,omitempty"`
	TimeoutMs int64 `json:"timeoutMs,omitempty"`
}

// TreeOpRequest is the body of copy/move requests.
type TreeOpRequest struct {
	Paths       []string      `json:"paths"`
	Destination string        `json:"destination"`
	Limits      *TreeOpLimits `json:"limits,omitempty"`
}

// MovedEntry records one top-level item that was copied or moved.
type MovedEntry struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type CopyResponse struct {
	Copied   []MovedEntry `json:"copied"`
	Warnings []string     `json:"warnings"`
}

type MoveResponse struct {
	Moved    []MovedEntry `json:"moved"`
	Warnings []string     `json:"warnings"`
}

// DeleteRequest / ZipRequest address a batch of sandbox-relative paths.
type DeleteRequest struct {
	Paths []string `json:"paths"`
}

type DeleteResponse struct {
	Deleted []string `json:"deleted"`
	Errors  []string `json:"errors"`
}

type ZipRequest struct {
	Paths []string `json:"paths"`
	Name  string   `json:"name,omitempty"`
}

// MkdirRequest creates one folder.
type MkdirRequest struct {
	Path string `json:"path"`
}

// Entry is one row of a directory listing.
type Entry struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	IsDir    bool   `json:"isDir"`
	Modified string `json:"modified"`
}
