package types

import "time"

// SessionStatus is the lifecycle state of an upload session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionPaused    SessionStatus = "paused"
	SessionCompleted SessionStatus = "completed"
	SessionAborted   SessionStatus = "aborted"
)

// Terminal reports whether the session can no longer change state.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionAborted
}

// FileStatus is the lifecycle state of a single file task inside a session.
type FileStatus string

const (
	FilePending   FileStatus = "pending"
	FileUploading FileStatus = "uploading"
	FileCompleted FileStatus = "completed"
	FileError     FileStatus = "error"
	FileAborted   FileStatus = "aborted"
)

// UploadSession groups one or more file uploads sharing a destination folder.
// TargetPath is sandbox-relative and already validated; every FileTask path is
// interpreted relative to it.
type UploadSession struct {
	ID         string               `json:"id"`
	OwnerID    string               `json:"-"`
	TargetPath string               `json:"targetPath"`
	Status     SessionStatus        `json:"status"`
	CreatedAt  time.Time            `json:"createdAt"`
	Files      map[string]*FileTask `json:"-"`
}

// FileTask tracks the byte-level progress of one file within a session.
// ReceivedBytes only ever grows, and a chunk is accepted only when its start
// offset equals ReceivedBytes exactly.
type FileTask struct {
	ID            string     `json:"fileId"`
	SessionID     string     `json:"-"`
	RelativePath  string     `json:"path"`
	DeclaredSize  int64      `json:"size"`
	ReceivedBytes int64      `json:"received"`
	Status        FileStatus `json:"status"`
}
