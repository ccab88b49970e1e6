package upload

import (
	"context"
	"io"
	"path"

	"golang.org/x/sync/semaphore"

	"cabinet/pathguard"
	"cabinet/tool"
	"cabinet/types"
)

// Coordinator drives the upload session lifecycle on top of the SessionStore,
// the ChunkWriter and PathGuard. It owns admission for in-flight chunk bodies
// and is the only place that turns session/file state into disk writes.
type Coordinator struct {
	store      *SessionStore
	writer     *ChunkWriter
	locks      *pathLocks
	streams    *semaphore.Weighted
	maxStreams int

	rootFor func(owner string) string
	sink    types.EventSink
	cache   types.ListingInvalidator
}

func NewCoordinator(store *SessionStore, maxStreams int, rootFor func(owner string) string, sink types.EventSink, cache types.ListingInvalidator) *Coordinator {
	return &Coordinator{
		store:      store,
		writer:     NewChunkWriter(),
		locks:      newPathLocks(),
		streams:    semaphore.NewWeighted(int64(maxStreams)),
		maxStreams: maxStreams,
		rootFor:    rootFor,
		sink:       sink,
		cache:      cache,
	}
}

// CreateSession validates the target folder against the owner's sandbox and
// registers a new active session. Nothing is created on disk yet.
func (co *Coordinator) CreateSession(owner, targetPath string) (types.CreateSessionResponse, error) {
	resolved, err := pathguard.Resolve(co.rootFor(owner), targetPath)
	if err != nil {
		return types.CreateSessionResponse{}, err
	}
	session, err := co.store.Create(owner, resolved.Rel)
	if err != nil {
		return types.CreateSessionResponse{}, err
	}
	tool.DefaultLogger.Infof("[Session] Created %s for owner %s (target=%q)", session.ID, owner, resolved.Rel)
	return types.CreateSessionResponse{
		ID:             session.ID,
		Status:         session.Status,
		TargetRelative: resolved.Rel,
	}, nil
}

func (co *Coordinator) ListSessions(owner string) []types.SessionSummary {
	return co.store.ListByOwner(owner)
}

func (co *Coordinator) Session(owner, id string) (types.SessionSummary, error) {
	return co.store.Snapshot(id, owner)
}

// RegisterFiles validates each declared path against the sandbox before any
// task is created, so a session can never hold an unreachable file.
func (co *Coordinator) RegisterFiles(owner, id string, entries []types.RegisterFileEntry) ([]types.RegisteredFile, error) {
	target, _, err := co.sessionTarget(owner, id)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if _, err := pathguard.Resolve(co.rootFor(owner), path.Join(target, entry.Path)); err != nil {
			return nil, err
		}
	}
	return co.store.RegisterFiles(id, owner, entries)
}

func (co *Coordinator) sessionTarget(owner, id string) (target string, status types.SessionStatus, err error) {
	snap, err := co.store.Snapshot(id, owner)
	if err != nil {
		return "", "", err
	}
	return snap.TargetPath, snap.Status, nil
}

// PutChunk appends one chunk. The order of gates matters: stream admission
// first (cheap reject before reading the body), then path resolution, then
// the per-path write lock, then the offset check under the store lock. The
// offset is re-validated while holding the path lock, so two racing chunks
// for the same file cannot both pass with the same offset.
func (co *Coordinator) PutChunk(ctx context.Context, owner, id, fileID string, offset int64, body io.Reader) (types.ChunkResult, error) {
	if !co.streams.TryAcquire(1) {
		return types.ChunkResult{}, &types.CapacityError{Kind: "streams", Limit: co.maxStreams}
	}
	defer co.streams.Release(1)

	target, rel, err := co.store.TaskMeta(id, fileID, owner)
	if err != nil {
		return types.ChunkResult{}, err
	}
	resolved, err := pathguard.Resolve(co.rootFor(owner), path.Join(target, rel))
	if err != nil {
		return types.ChunkResult{}, err
	}

	release := co.locks.acquire(resolved.Abs)
	defer release()

	declared, err := co.store.AcceptChunk(id, fileID, owner, offset)
	if err != nil {
		return types.ChunkResult{}, err
	}

	// Never write past the declared size. The body is capped at the remaining
	// bytes; anything the client streams beyond that is discarded and logged.
	reader := body
	if declared > 0 {
		reader = io.LimitReader(body, declared-offset)
	}
	written, writeErr := co.writer.AppendAt(ctx, resolved.Abs, offset, reader, func() bool {
		return co.store.SessionActive(id)
	})
	if writeErr == nil && declared > 0 && offset+written == declared {
		var extra [1]byte
		if n, _ := body.Read(extra[:]); n > 0 {
			tool.DefaultLogger.Warnf("[Chunk] %s: body exceeds declared size %d, surplus discarded", resolved.Rel, declared)
		}
	}
	result, err := co.store.AdvanceTask(id, fileID, owner, written, writeErr != nil)
	if err != nil {
		return types.ChunkResult{}, err
	}
	if writeErr != nil {
		tool.DefaultLogger.Errorf("[Chunk] Append to %s failed after %d bytes: %v", resolved.Rel, written, writeErr)
		return result, &types.WriteFailure{Path: resolved.Rel, Err: writeErr}
	}

	if result.Completed {
		co.afterFileLanded(owner, resolved.Rel, result.Received)
	}
	return result, nil
}

// FileOffset answers the resume query for one task.
func (co *Coordinator) FileOffset(owner, id, fileID string) (types.OffsetStatus, error) {
	return co.store.OffsetStatus(id, fileID, owner)
}

// CompleteFile marks a task done regardless of declared size; the client owns
// that call for files whose size was not known up front.
func (co *Coordinator) CompleteFile(owner, id, fileID string) error {
	transitioned, task, err := co.store.CompleteFile(id, fileID, owner)
	if err != nil {
		return err
	}
	if transitioned {
		target, _, terr := co.sessionTarget(owner, id)
		if terr == nil {
			rel := pathguard.CleanRel(path.Join(target, task.RelativePath))
			co.afterFileLanded(owner, rel, task.ReceivedBytes)
		}
	}
	return nil
}

func (co *Coordinator) CompleteSession(owner, id string) error {
	return co.store.CompleteSession(id, owner)
}

func (co *Coordinator) Pause(owner, id string) error {
	return co.store.Pause(id, owner)
}

func (co *Coordinator) Resume(owner, id string) error {
	return co.store.Resume(id, owner)
}

func (co *Coordinator) Abort(owner, id string) error {
	if err := co.store.Abort(id, owner); err != nil {
		return err
	}
	tool.DefaultLogger.Infof("[Session] Aborted %s (owner=%s)", id, owner)
	return nil
}

func (co *Coordinator) RemoveFile(owner, id, fileID string) error {
	return co.store.RemoveFile(id, fileID, owner)
}

// afterFileLanded runs the best-effort side effects of a finished file:
// listing invalidation and one created event. Neither can fail the upload.
func (co *Coordinator) afterFileLanded(owner, rel string, size int64) {
	if co.cache != nil {
		co.cache.Invalidate(owner, pathguard.Parent(rel))
	}
	if co.sink != nil {
		co.sink.Emit(&types.ChangeEvent{
			Type:  types.ChangeCreated,
			Owner: owner,
			Path:  rel,
			Size:  size,
		})
	}
}
