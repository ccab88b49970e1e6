package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"cabinet/tool"
	"cabinet/upload"
)

type ChunkController struct {
	coordinator *upload.Coordinator
}

func NewChunkController(coordinator *upload.Coordinator) *ChunkController {
	return &ChunkController{
		coordinator: coordinator,
	}
}

// HandlePutChunk streams the raw request body into the target file at the
// offset given in the query. The body is never buffered whole; the
// coordinator reads it directly under the per-path write lock.
func (ctrl *ChunkController) HandlePutChunk(c *gin.Context) {
	owner := c.GetString("owner")
	sessionID := c.Param("id")
	fileID := c.Param("fileId")

	offset, err := strconv.ParseInt(c.Query("offset"), 10, 64)
	if err != nil || offset < 0 {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Missing or invalid offset"))
		return
	}

	result, err := ctrl.coordinator.PutChunk(c.Request.Context(), owner, sessionID, fileID, offset, c.Request.Body)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// HandleGetOffset answers the resume query for one file task.
func (ctrl *ChunkController) HandleGetOffset(c *gin.Context) {
	owner := c.GetString("owner")
	status, err := ctrl.coordinator.FileOffset(owner, c.Param("id"), c.Param("fileId"))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (ctrl *ChunkController) HandleCompleteFile(c *gin.Context) {
	owner := c.GetString("owner")
	if err := ctrl.coordinator.CompleteFile(owner, c.Param("id"), c.Param("fileId")); err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, tool.FastReturnSuccess())
}
