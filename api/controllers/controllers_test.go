package controllers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"cabinet/api/middlewares"
	"cabinet/listing"
	"cabinet/treeop"
	"cabinet/types"
	"cabinet/upload"
)

// setupRouter wires the controllers the way the server does, against a
// temporary sandbox root.
func setupRouter(t *testing.T) (*gin.Engine, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dataDir := t.TempDir()
	rootFor := func(owner string) string {
		return filepath.Join(dataDir, owner)
	}

	cache := listing.New(time.Minute)
	store := upload.NewSessionStore(upload.StoreOptions{
		SessionTTL:     time.Hour,
		SweepInterval:  time.Hour,
		Grace:          time.Minute,
		MaxPerOwner:    4,
		MaxFilesPerSes: 32,
	})
	coordinator := upload.NewCoordinator(store, 8, rootFor, nil, cache)
	engine := treeop.New(treeop.Clamps{
		MaxDepth:      16,
		MaxFiles:      1000,
		MaxDuration:   10 * time.Second,
		MaxZipEntries: 1000,
	}, rootFor, nil, cache)

	sessionCtrl := NewSessionController(coordinator)
	chunkCtrl := NewChunkController(coordinator)
	filesCtrl := NewFilesController(engine, cache, nil, rootFor)

	router := gin.New()
	v1 := router.Group("/api/fs/v1")
	v1.Use(middlewares.RequireOwner)
	{
		v1.POST("/sessions", sessionCtrl.HandleCreateSession)
		v1.GET("/sessions", sessionCtrl.HandleListSessions)
		v1.GET("/sessions/:id", sessionCtrl.HandleGetSession)
		v1.POST("/sessions/:id/files", sessionCtrl.HandleRegisterFiles)
		v1.GET("/sessions/:id/files/:fileId/offset", chunkCtrl.HandleGetOffset)
		v1.PUT("/sessions/:id/files/:fileId/chunk", chunkCtrl.HandlePutChunk)
		v1.POST("/sessions/:id/files/:fileId/complete", chunkCtrl.HandleCompleteFile)
		v1.POST("/sessions/:id/pause", sessionCtrl.HandlePause)
		v1.POST("/sessions/:id/resume", sessionCtrl.HandleResume)
		v1.POST("/sessions/:id/complete", sessionCtrl.HandleCompleteSession)
		v1.DELETE("/sessions/:id", sessionCtrl.HandleAbortSession)
		v1.GET("/files/list", filesCtrl.HandleList)
		v1.POST("/files/mkdir", filesCtrl.HandleMkdir)
		v1.POST("/files/copy", filesCtrl.HandleCopy)
		v1.POST("/files/move", filesCtrl.HandleMove)
		v1.POST("/files/delete", filesCtrl.HandleDelete)
		v1.POST("/files/zip", filesCtrl.HandleZip)
	}
	return router, dataDir
}

func doJSON(t *testing.T, router *gin.Engine, method, url string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewBuffer(data)
	} else {
		reader = bytes.NewBuffer(nil)
	}
	req, _ := http.NewRequest(method, url, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middlewares.OwnerHeader, "alice")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func doRaw(t *testing.T, router *gin.Engine, method, url string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req, _ := http.NewRequest(method, url, bytes.NewReader(body))
	req.Header.Set(middlewares.OwnerHeader, "alice")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

// Full happy path: create a session targeting docs, register a 10-byte file,
// send one exact chunk, poll the offset.
func TestUploadScenario(t *testing.T) {
	router, dataDir := setupRouter(t)

	w := doJSON(t, router, "POST", "/api/fs/v1/sessions", types.CreateSessionRequest{TargetPath: "docs"})
	if w.Code != http.StatusOK {
		t.Fatalf("create session: %d %s", w.Code, w.Body.String())
	}
	created := decode(t, w)
	sessionID := created["id"].(string)
	if created["targetRelative"] != "docs" || created["status"] != "active" {
		t.Fatalf("create response = %v", created)
	}

	w = doJSON(t, router, "POST", "/api/fs/v1/sessions/"+sessionID+"/files", types.RegisterFilesRequest{
		Files: []types.RegisterFileEntry{{Path: "a.txt", Size: 10}},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("register: %d %s", w.Code, w.Body.String())
	}
	registered := decode(t, w)
	fileID := registered["files"].([]any)[0].(map[string]any)["fileId"].(string)

	w = doRaw(t, router, "PUT", "/api/fs/v1/sessions/"+sessionID+"/files/"+fileID+"/chunk?offset=0", []byte("0123456789"))
	if w.Code != http.StatusOK {
		t.Fatalf("chunk: %d %s", w.Code, w.Body.String())
	}
	result := decode(t, w)
	if result["received"].(float64) != 10 || result["completed"] != true {
		t.Fatalf("chunk result = %v", result)
	}

	w = doJSON(t, router, "GET", "/api/fs/v1/sessions/"+sessionID+"/files/"+fileID+"/offset", nil)
	status := decode(t, w)
	if status["received"].(float64) != 10 || status["size"].(float64) != 10 || status["status"] != "completed" {
		t.Fatalf("offset status = %v", status)
	}

	onDisk, err := os.ReadFile(filepath.Join(dataDir, "alice", "docs", "a.txt"))
	if err != nil || string(onDisk) != "0123456789" {
		t.Fatalf("on disk = %q, err %v", onDisk, err)
	}
}

// A chunk at offset 5 for a fresh file is rejected with the expected offset.
func TestChunkMismatchReturns409(t *testing.T) {
	router, _ := setupRouter(t)

	w := doJSON(t, router, "POST", "/api/fs/v1/sessions", types.CreateSessionRequest{TargetPath: ""})
	sessionID := decode(t, w)["id"].(string)
	w = doJSON(t, router, "POST", "/api/fs/v1/sessions/"+sessionID+"/files", types.RegisterFilesRequest{
		Files: []types.RegisterFileEntry{{Path: "a.txt", Size: 10}},
	})
	fileID := decode(t, w)["files"].([]any)[0].(map[string]any)["fileId"].(string)

	w = doRaw(t, router, "PUT", "/api/fs/v1/sessions/"+sessionID+"/files/"+fileID+"/chunk?offset=5", []byte("xxxxx"))
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
	body := decode(t, w)
	if body["expected"].(float64) != 0 {
		t.Fatalf("body = %v, want expected 0", body)
	}
}

func TestTraversalTargetReturns400(t *testing.T) {
	router, _ := setupRouter(t)
	w := doJSON(t, router, "POST", "/api/fs/v1/sessions", types.CreateSessionRequest{TargetPath: "../bob"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestForeignSessionIsNotFound(t *testing.T) {
	router, _ := setupRouter(t)
	w := doJSON(t, router, "POST", "/api/fs/v1/sessions", types.CreateSessionRequest{TargetPath: ""})
	sessionID := decode(t, w)["id"].(string)

	req, _ := http.NewRequest("GET", "/api/fs/v1/sessions/"+sessionID, nil)
	req.Header.Set(middlewares.OwnerHeader, "mallory")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestMissingPrincipalIsRejected(t *testing.T) {
	router, _ := setupRouter(t)
	req, _ := http.NewRequest("GET", "/api/fs/v1/sessions", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

// One valid path and one already-deleted path: the call succeeds and both
// outcomes are accounted.
func TestDeletePartialAccounting(t *testing.T) {
	router, dataDir := setupRouter(t)
	write := filepath.Join(dataDir, "alice", "gone")
	if err := os.MkdirAll(write, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(write, "a.txt"), []byte("a"), 0o644); err != nil {
		t.Fatal(err)
	}

	w := doJSON(t, router, "POST", "/api/fs/v1/files/delete", types.DeleteRequest{Paths: []string{"gone", "missing"}})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	deleted := body["deleted"].([]any)
	errs := body["errors"].([]any)
	if len(deleted) != 1 || deleted[0] != "gone" {
		t.Fatalf("deleted = %v", deleted)
	}
	if len(errs) != 1 {
		t.Fatalf("errors = %v", errs)
	}
}

func TestListReadThroughAndInvalidation(t *testing.T) {
	router, _ := setupRouter(t)

	w := doJSON(t, router, "POST", "/api/fs/v1/files/mkdir", types.MkdirRequest{Path: "docs"})
	if w.Code != http.StatusOK {
		t.Fatalf("mkdir: %d %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, "GET", "/api/fs/v1/files/list?path=", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list: %d %s", w.Code, w.Body.String())
	}
	entries := decode(t, w)["entries"].([]any)
	if len(entries) != 1 || entries[0].(map[string]any)["name"] != "docs" {
		t.Fatalf("entries = %v", entries)
	}

	// The next mkdir must be visible despite the listing being cached.
	w = doJSON(t, router, "POST", "/api/fs/v1/files/mkdir", types.MkdirRequest{Path: "pics"})
	if w.Code != http.StatusOK {
		t.Fatalf("mkdir pics: %d", w.Code)
	}
	w = doJSON(t, router, "GET", "/api/fs/v1/files/list?path=", nil)
	entries = decode(t, w)["entries"].([]any)
	if len(entries) != 2 {
		t.Fatalf("entries after second mkdir = %v", entries)
	}
}

func TestCopyEndpointSelfNesting(t *testing.T) {
	router, dataDir := setupRouter(t)
	base := filepath.Join(dataDir, "alice")
	if err := os.MkdirAll(filepath.Join(base, "A", "B"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(base, "A", "B", "x.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	w := doJSON(t, router, "POST", "/api/fs/v1/files/copy", types.TreeOpRequest{
		Paths:       []string{"A"},
		Destination: "A/B",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("copy: %d %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	copied := body["copied"].([]any)
	if len(copied) != 1 || copied[0].(map[string]any)["to"] != "A/B/A (copy)" {
		t.Fatalf("copied = %v", copied)
	}
	// Original contents untouched.
	got, err := os.ReadFile(filepath.Join(base, "A", "B", "x.txt"))
	if err != nil || string(got) != "x" {
		t.Fatalf("original = %q, err %v", got, err)
	}
}

func TestZipEndpointStreamsArchive(t *testing.T) {
	router, dataDir := setupRouter(t)
	base := filepath.Join(dataDir, "alice")
	if err := os.MkdirAll(base, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(base, "a.txt"), []byte("a"), 0o644); err != nil {
		t.Fatal(err)
	}

	w := doJSON(t, router, "POST", "/api/fs/v1/files/zip", types.ZipRequest{Paths: []string{"a.txt"}})
	if w.Code != http.StatusOK {
		t.Fatalf("zip: %d %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/zip" {
		t.Fatalf("content-type = %q", ct)
	}
	if w.Body.Len() == 0 {
		t.Fatal("empty archive body")
	}
}

func TestPauseBlocksChunks(t *testing.T) {
	router, _ := setupRouter(t)

	w := doJSON(t, router, "POST", "/api/fs/v1/sessions", types.CreateSessionRequest{TargetPath: ""})
	sessionID := decode(t, w)["id"].(string)
	w = doJSON(t, router, "POST", "/api/fs/v1/sessions/"+sessionID+"/files", types.RegisterFilesRequest{
		Files: []types.RegisterFileEntry{{Path: "a.txt", Size: 2}},
	})
	fileID := decode(t, w)["files"].([]any)[0].(map[string]any)["fileId"].(string)

	if w := doJSON(t, router, "POST", "/api/fs/v1/sessions/"+sessionID+"/pause", nil); w.Code != http.StatusOK {
		t.Fatalf("pause: %d", w.Code)
	}
	if w := doRaw(t, router, "PUT", "/api/fs/v1/sessions/"+sessionID+"/files/"+fileID+"/chunk?offset=0", []byte("ab")); w.Code != http.StatusConflict {
		t.Fatalf("chunk while paused = %d, want 409", w.Code)
	}
	if w := doJSON(t, router, "POST", "/api/fs/v1/sessions/"+sessionID+"/resume", nil); w.Code != http.StatusOK {
		t.Fatalf("resume: %d", w.Code)
	}
	if w := doRaw(t, router, "PUT", "/api/fs/v1/sessions/"+sessionID+"/files/"+fileID+"/chunk?offset=0", []byte("ab")); w.Code != http.StatusOK {
		t.Fatalf("chunk after resume = %d", w.Code)
	}
}

func TestSessionCapReturns429(t *testing.T) {
	gin.SetMode(gin.TestMode)
	dataDir := t.TempDir()
	rootFor := func(owner string) string { return filepath.Join(dataDir, owner) }
	store := upload.NewSessionStore(upload.StoreOptions{
		SessionTTL: time.Hour, SweepInterval: time.Hour, Grace: time.Minute,
		MaxPerOwner: 1, MaxFilesPerSes: 4,
	})
	coordinator := upload.NewCoordinator(store, 8, rootFor, nil, nil)
	sessionCtrl := NewSessionController(coordinator)

	router := gin.New()
	router.POST("/sessions", middlewares.RequireOwner, sessionCtrl.HandleCreateSession)

	first := doJSON(t, router, "POST", "/sessions", types.CreateSessionRequest{TargetPath: ""})
	if first.Code != http.StatusOK {
		t.Fatalf("first create: %d", first.Code)
	}
	second := doJSON(t, router, "POST", "/sessions", types.CreateSessionRequest{TargetPath: ""})
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second create = %d, want 429", second.Code)
	}
	if second.Header().Get("Retry-After") == "" {
		t.Fatal("missing Retry-After hint")
	}
}
