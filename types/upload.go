package types

// CreateSessionRequest starts a new upload session rooted at TargetPath.
type CreateSessionRequest struct {
	TargetPath string `json:"targetPath"`
}

type CreateSessionResponse struct {
	ID             string        `json:"id"`
	Status         SessionStatus `json:"status"`
	TargetRelative string        `json:"targetRelative"`
}

// RegisterFileEntry declares one file the client intends to upload.
type RegisterFileEntry struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

type RegisterFilesRequest struct {
	Files []RegisterFileEntry `json:"files"`
}

type RegisteredFile struct {
	FileID string `json:"fileId"`
	Path   string `json:"path"`
}

type RegisterFilesResponse struct {
	Files []RegisteredFile `json:"files"`
}

// ChunkResult reports progress after a chunk append.
type ChunkResult struct {
	Received  int64 `json:"received"`
	Completed bool  `json:"completed"`
}

// OffsetStatus answers a resume query for one file task.
type OffsetStatus struct {
	Received int64      `json:"received"`
	Size     int64      `json:"size"`
	Status   FileStatus `json:"status"`
}

// SessionSummary is the list/status view of a session.
type SessionSummary struct {
	ID         string        `json:"id"`
	TargetPath string        `json:"targetPath"`
	Status     SessionStatus `json:"status"`
	CreatedAt  string        `json:"createdAt"`
	Files      []*FileTask   `json:"files"`
}
