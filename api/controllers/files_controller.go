package controllers

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"cabinet/api/models"
	"cabinet/listing"
	"cabinet/pathguard"
	"cabinet/tool"
	"cabinet/treeop"
	"cabinet/types"
)

type FilesController struct {
	engine  *treeop.Engine
	cache   *listing.Cache
	sink    types.EventSink
	rootFor func(owner string) string
}

func NewFilesController(engine *treeop.Engine, cache *listing.Cache, sink types.EventSink, rootFor func(owner string) string) *FilesController {
	return &FilesController{
		engine:  engine,
		cache:   cache,
		sink:    sink,
		rootFor: rootFor,
	}
}

func (ctrl *FilesController) HandleCopy(c *gin.Context) {
	owner, request, ok := ctrl.treeOpRequest(c)
	if !ok {
		return
	}
	response, err := ctrl.engine.Copy(c.Request.Context(), owner, request.Paths, request.Destination, request.Limits)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	tool.DefaultLogger.Infof("[Copy] owner=%s items=%d warnings=%d", owner, len(response.Copied), len(response.Warnings))
	c.JSON(http.StatusOK, response)
}

func (ctrl *FilesController) HandleMove(c *gin.Context) {
	owner, request, ok := ctrl.treeOpRequest(c)
	if !ok {
		return
	}
	response, err := ctrl.engine.Move(c.Request.Context(), owner, request.Paths, request.Destination, request.Limits)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	tool.DefaultLogger.Infof("[Move] owner=%s items=%d warnings=%d", owner, len(response.Moved), len(response.Warnings))
	c.JSON(http.StatusOK, response)
}

func (ctrl *FilesController) treeOpRequest(c *gin.Context) (string, *types.TreeOpRequest, bool) {
	owner := c.GetString("owner")
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Failed to read request body"))
		return "", nil, false
	}
	request, err := models.ParseTreeOpRequest(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Invalid request body"))
		return "", nil, false
	}
	return owner, request, true
}

func (ctrl *FilesController) HandleDelete(c *gin.Context) {
	owner := c.GetString("owner")
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Failed to read request body"))
		return
	}
	request, err := models.ParseDeleteRequest(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Invalid request body"))
		return
	}
	response, err := ctrl.engine.Delete(c.Request.Context(), owner, request.Paths)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	tool.DefaultLogger.Infof("[Delete] owner=%s deleted=%d errors=%d", owner, len(response.Deleted), len(response.Errors))
	c.JSON(http.StatusOK, response)
}

// HandleZip validates inputs, then streams the archive. Once the first byte
// is out the status is committed, so validation happens inside the engine
// before any write to the response.
func (ctrl *FilesController) HandleZip(c *gin.Context) {
	owner := c.GetString("owner")
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Failed to read request body"))
		return
	}
	request, err := models.ParseZipRequest(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Invalid request body"))
		return
	}

	name := request.Name
	if name == "" {
		name = "download"
	}
	c.Header("Content-Type", "application/zip")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".zip"))

	if err := ctrl.engine.Zip(c.Request.Context(), owner, request.Paths, c.Writer); err != nil {
		// Nothing has been streamed: the engine validates before writing.
		c.Writer.Header().Del("Content-Disposition")
		writeDomainError(c, err)
		return
	}
}

// HandleList serves directory listings read-through the cache.
func (ctrl *FilesController) HandleList(c *gin.Context) {
	owner := c.GetString("owner")
	resolved, err := pathguard.Resolve(ctrl.rootFor(owner), c.Query("path"))
	if err != nil {
		writeDomainError(c, err)
		return
	}

	if entries, ok := ctrl.cache.Get(owner, resolved.Rel); ok {
		c.JSON(http.StatusOK, gin.H{"path": resolved.Rel, "entries": entries})
		return
	}

	dirEntries, err := os.ReadDir(resolved.Abs)
	if err != nil {
		if os.IsNotExist(err) {
			writeDomainError(c, types.ErrNotFound)
			return
		}
		c.JSON(http.StatusInternalServerError, tool.FastReturnError("Failed to read directory"))
		return
	}

	entries := make([]types.Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		info, ierr := de.Info()
		if ierr != nil {
			continue
		}
		entries = append(entries, types.Entry{
			Name:     de.Name(),
			Size:     info.Size(),
			IsDir:    de.IsDir(),
			Modified: info.ModTime().Format(time.RFC3339),
		})
	}
	ctrl.cache.Set(owner, resolved.Rel, entries)
	c.JSON(http.StatusOK, gin.H{"path": resolved.Rel, "entries": entries})
}

func (ctrl *FilesController) HandleMkdir(c *gin.Context) {
	owner := c.GetString("owner")
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Failed to read request body"))
		return
	}
	request, err := models.ParseMkdirRequest(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Invalid request body"))
		return
	}
	resolved, err := pathguard.Resolve(ctrl.rootFor(owner), request.Path)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	if resolved.Rel == "" {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Cannot create the sandbox root"))
		return
	}
	if mkErr := os.MkdirAll(resolved.Abs, 0o755); mkErr != nil {
		c.JSON(http.StatusInternalServerError, tool.FastReturnError("Failed to create directory"))
		return
	}

	ctrl.cache.Invalidate(owner, pathguard.Parent(resolved.Rel))
	if ctrl.sink != nil {
		ctrl.sink.Emit(&types.ChangeEvent{
			Type:  types.ChangeCreated,
			Owner: owner,
			Path:  resolved.Rel,
			IsDir: true,
		})
	}
	c.JSON(http.StatusOK, gin.H{"path": resolved.Rel})
}
