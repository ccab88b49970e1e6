package upload

import (
	"sync"
	"time"

	ttlworker "github.com/FloatTech/ttl"

	"cabinet/tool"
	"cabinet/types"
)

// StoreOptions configure session lifetime and admission ceilings.
type StoreOptions struct {
	SessionTTL     time.Duration
	SweepInterval  time.Duration
	Grace          time.Duration // terminal sessions stay pollable this long
	MaxPerOwner    int
	MaxFilesPerSes int
}

// SessionStore owns every upload session and file task. All mutation goes
// through its methods under one RWMutex; nothing outside the store touches a
// live session. Terminal sessions move into a TTL cache so status polls keep
// answering for a grace window after completion.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*types.UploadSession
	byOwner  map[string]int
	terminal *ttlworker.Cache[string, *types.UploadSession]

	opts StoreOptions
	done chan struct{}
	once sync.Once
}

func NewSessionStore(opts StoreOptions) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*types.UploadSession),
		byOwner:  make(map[string]int),
		terminal: ttlworker.NewCache[string, *types.UploadSession](opts.Grace),
		opts:     opts,
		done:     make(chan struct{}),
	}
}

// Start launches the expiry sweep. Stop cancels it.
func (s *SessionStore) Start() {
	go s.sweepLoop()
}

func (s *SessionStore) Stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *SessionStore) sweepLoop() {
	ticker := time.NewTicker(s.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.sweep(time.Now())
		}
	}
}

// sweep force-aborts and drops any session older than the TTL, whatever its
// status, so abandoned clients cannot pin memory.
func (s *SessionStore) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, session := range s.sessions {
		if now.Sub(session.CreatedAt) < s.opts.SessionTTL {
			continue
		}
		tool.DefaultLogger.Infof("[Sweep] Expiring upload session %s (owner=%s, age=%s)", id, session.OwnerID, now.Sub(session.CreatedAt))
		s.abortLocked(session)
		s.dropLocked(session)
	}
}

func (s *SessionStore) abortLocked(session *types.UploadSession) {
	session.Status = types.SessionAborted
	for _, task := range session.Files {
		if task.Status != types.FileCompleted {
			task.Status = types.FileAborted
		}
	}
}

// dropLocked removes a session from the live map and parks it in the terminal
// cache for the poll grace window.
func (s *SessionStore) dropLocked(session *types.UploadSession) {
	delete(s.sessions, session.ID)
	if s.byOwner[session.OwnerID] > 0 {
		s.byOwner[session.OwnerID]--
	}
	s.terminal.Set(session.ID, session)
}

// Create registers a new active session. The per-owner ceiling counts live
// sessions only; terminal ones in the grace cache do not block new uploads.
func (s *SessionStore) Create(owner, targetRel string) (types.UploadSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.byOwner[owner] >= s.opts.MaxPerOwner {
		return types.UploadSession{}, &types.CapacityError{Kind: "sessions", Limit: s.opts.MaxPerOwner}
	}
	session := &types.UploadSession{
		ID:         tool.GenerateRandomUUID(),
		OwnerID:    owner,
		TargetPath: targetRel,
		Status:     types.SessionActive,
		CreatedAt:  time.Now(),
		Files:      make(map[string]*types.FileTask),
	}
	s.sessions[session.ID] = session
	s.byOwner[owner]++
	return *session, nil
}

// lookupLocked finds a session by id for the given owner. A wrong owner is
// folded into ErrNotFound so probing cannot confirm foreign session ids.
func (s *SessionStore) lookupLocked(id, owner string) (*types.UploadSession, error) {
	session, ok := s.sessions[id]
	if !ok {
		session = s.terminal.Get(id)
		if session == nil {
			return nil, types.ErrNotFound
		}
	}
	if session.OwnerID != owner {
		return nil, types.ErrNotFound
	}
	return session, nil
}

// Snapshot returns a copy of the session with its tasks for read endpoints.
func (s *SessionStore) Snapshot(id, owner string) (types.SessionSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, err := s.lookupLocked(id, owner)
	if err != nil {
		return types.SessionSummary{}, err
	}
	return summarize(session), nil
}

func (s *SessionStore) ListByOwner(owner string) []types.SessionSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.SessionSummary, 0, 4)
	for _, session := range s.sessions {
		if session.OwnerID == owner {
			out = append(out, summarize(session))
		}
	}
	return out
}

func summarize(session *types.UploadSession) types.SessionSummary {
	files := make([]*types.FileTask, 0, len(session.Files))
	for _, task := range session.Files {
		copied := *task
		files = append(files, &copied)
	}
	return types.SessionSummary{
		ID:         session.ID,
		TargetPath: session.TargetPath,
		Status:     session.Status,
		CreatedAt:  session.CreatedAt.Format(time.RFC3339),
		Files:      files,
	}
}

// RegisterFiles creates pending tasks. It touches no disk and rejects the
// whole batch when it would push the session past the file-count ceiling.
func (s *SessionStore) RegisterFiles(id, owner string, entries []types.RegisterFileEntry) ([]types.RegisteredFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, err := s.lookupLocked(id, owner)
	if err != nil {
		return nil, err
	}
	if session.Status.Terminal() {
		return nil, types.ErrWrongState
	}
	if len(session.Files)+len(entries) > s.opts.MaxFilesPerSes {
		return nil, &types.CapacityError{Kind: "files", Limit: s.opts.MaxFilesPerSes}
	}
	out := make([]types.RegisteredFile, 0, len(entries))
	for _, entry := range entries {
		task := &types.FileTask{
			ID:           tool.GenerateRandomUUID(),
			SessionID:    session.ID,
			RelativePath: entry.Path,
			DeclaredSize: entry.Size,
			Status:       types.FilePending,
		}
		session.Files[task.ID] = task
		out = append(out, types.RegisteredFile{FileID: task.ID, Path: entry.Path})
	}
	return out, nil
}

// TaskMeta returns what the chunk path needs before taking the write lock.
func (s *SessionStore) TaskMeta(id, fileID, owner string) (targetPath, relPath string, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, err := s.lookupLocked(id, owner)
	if err != nil {
		return "", "", err
	}
	task, ok := session.Files[fileID]
	if !ok {
		return "", "", types.ErrNotFound
	}
	return session.TargetPath, task.RelativePath, nil
}

// AcceptChunk validates the strict offset contract under the store lock,
// after the caller holds the per-path write lock. Accepting moves the task to
// uploading and returns its declared size.
func (s *SessionStore) AcceptChunk(id, fileID, owner string, offset int64) (declared int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, err := s.lookupLocked(id, owner)
	if err != nil {
		return 0, err
	}
	if session.Status != types.SessionActive {
		return 0, types.ErrWrongState
	}
	task, ok := session.Files[fileID]
	if !ok {
		return 0, types.ErrNotFound
	}
	switch task.Status {
	case types.FileAborted:
		return 0, types.ErrWrongState
	case types.FileCompleted:
		// A retransmission of an already-applied chunk lands here; the
		// expected offset tells the client nothing is missing.
		return 0, &types.OffsetMismatchError{Expected: task.ReceivedBytes, Got: offset}
	}
	if offset != task.ReceivedBytes {
		return 0, &types.OffsetMismatchError{Expected: task.ReceivedBytes, Got: offset}
	}
	task.Status = types.FileUploading
	return task.DeclaredSize, nil
}

// AdvanceTask records written bytes after an append. ReceivedBytes only ever
// grows. A write error marks the task errored but keeps its progress so the
// client can resume from the returned offset.
func (s *SessionStore) AdvanceTask(id, fileID, owner string, written int64, failed bool) (types.ChunkResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, err := s.lookupLocked(id, owner)
	if err != nil {
		return types.ChunkResult{}, err
	}
	task, ok := session.Files[fileID]
	if !ok {
		return types.ChunkResult{}, types.ErrNotFound
	}
	if written > 0 {
		task.ReceivedBytes += written
	}
	if failed {
		task.Status = types.FileError
	} else if task.DeclaredSize > 0 && task.ReceivedBytes >= task.DeclaredSize {
		task.Status = types.FileCompleted
	}
	return types.ChunkResult{
		Received:  task.ReceivedBytes,
		Completed: task.Status == types.FileCompleted,
	}, nil
}

// OffsetStatus answers the resume query.
func (s *SessionStore) OffsetStatus(id, fileID, owner string) (types.OffsetStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, err := s.lookupLocked(id, owner)
	if err != nil {
		return types.OffsetStatus{}, err
	}
	task, ok := session.Files[fileID]
	if !ok {
		return types.OffsetStatus{}, types.ErrNotFound
	}
	return types.OffsetStatus{
		Received: task.ReceivedBytes,
		Size:     task.DeclaredSize,
		Status:   task.Status,
	}, nil
}

// CompleteFile marks one task terminal. Reports whether this call made the
// transition, so the caller emits at most one created event.
func (s *SessionStore) CompleteFile(id, fileID, owner string) (transitioned bool, task types.FileTask, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, err := s.lookupLocked(id, owner)
	if err != nil {
		return false, types.FileTask{}, err
	}
	t, ok := session.Files[fileID]
	if !ok {
		return false, types.FileTask{}, types.ErrNotFound
	}
	if t.Status == types.FileAborted {
		return false, types.FileTask{}, types.ErrWrongState
	}
	transitioned = t.Status != types.FileCompleted
	t.Status = types.FileCompleted
	return transitioned, *t, nil
}

// RemoveFile detaches a task from its session.
func (s *SessionStore) RemoveFile(id, fileID, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, err := s.lookupLocked(id, owner)
	if err != nil {
		return err
	}
	if _, ok := session.Files[fileID]; !ok {
		return types.ErrNotFound
	}
	delete(session.Files, fileID)
	return nil
}

// Pause and Resume flip between the only two chunk-era states.
func (s *SessionStore) Pause(id, owner string) error {
	return s.transition(id, owner, types.SessionActive, types.SessionPaused)
}

func (s *SessionStore) Resume(id, owner string) error {
	return s.transition(id, owner, types.SessionPaused, types.SessionActive)
}

func (s *SessionStore) transition(id, owner string, from, to types.SessionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, err := s.lookupLocked(id, owner)
	if err != nil {
		return err
	}
	if session.Status != from {
		return types.ErrWrongState
	}
	session.Status = to
	return nil
}

// CompleteSession marks the session done and parks it for the grace window.
func (s *SessionStore) CompleteSession(id, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, err := s.lookupLocked(id, owner)
	if err != nil {
		return err
	}
	if session.Status.Terminal() {
		return types.ErrWrongState
	}
	session.Status = types.SessionCompleted
	s.dropLocked(session)
	return nil
}

// Abort cancels the session and every non-completed task. Partial files stay
// on disk for the client to resume into a new session or discard explicitly.
func (s *SessionStore) Abort(id, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, err := s.lookupLocked(id, owner)
	if err != nil {
		return err
	}
	if session.Status.Terminal() {
		return types.ErrWrongState
	}
	s.abortLocked(session)
	s.dropLocked(session)
	return nil
}

// SessionActive reports whether chunks may still arrive; the chunk copy loop
// polls it at buffer boundaries for cooperative cancellation.
func (s *SessionStore) SessionActive(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	return ok && session.Status == types.SessionActive
}
