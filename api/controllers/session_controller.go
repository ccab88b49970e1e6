package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"cabinet/api/models"
	"cabinet/tool"
	"cabinet/upload"
)

type SessionController struct {
	coordinator *upload.Coordinator
}

func NewSessionController(coordinator *upload.Coordinator) *SessionController {
	return &SessionController{
		coordinator: coordinator,
	}
}

func (ctrl *SessionController) HandleCreateSession(c *gin.Context) {
	owner := c.GetString("owner")

	body, err := c.GetRawData()
	if err != nil {
		tool.DefaultLogger.Errorf("Failed to read create-session request body: %v", err)
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Failed to read request body"))
		return
	}
	request, err := models.ParseCreateSessionRequest(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Invalid request body"))
		return
	}

	response, err := ctrl.coordinator.CreateSession(owner, request.TargetPath)
	if err != nil {
		tool.DefaultLogger.Warnf("[Session] Create failed for owner %s: %v", owner, err)
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

func (ctrl *SessionController) HandleListSessions(c *gin.Context) {
	owner := c.GetString("owner")
	c.JSON(http.StatusOK, tool.FastReturnSuccessWithData(ctrl.coordinator.ListSessions(owner)))
}

func (ctrl *SessionController) HandleGetSession(c *gin.Context) {
	owner := c.GetString("owner")
	summary, err := ctrl.coordinator.Session(owner, c.Param("id"))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (ctrl *SessionController) HandleRegisterFiles(c *gin.Context) {
	owner := c.GetString("owner")
	sessionID := c.Param("id")

	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Failed to read request body"))
		return
	}
	request, err := models.ParseRegisterFilesRequest(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Invalid request body"))
		return
	}

	registered, err := ctrl.coordinator.RegisterFiles(owner, sessionID, request.Files)
	if err != nil {
		tool.DefaultLogger.Warnf("[Session] Register %d files on %s failed: %v", len(request.Files), sessionID, err)
		writeDomainError(c, err)
		return
	}
	tool.DefaultLogger.Infof("[Session] Registered %d files on %s", len(registered), sessionID)
	c.JSON(http.StatusOK, gin.H{"files": registered})
}

func (ctrl *SessionController) HandlePause(c *gin.Context) {
	ctrl.transition(c, ctrl.coordinator.Pause)
}

func (ctrl *SessionController) HandleResume(c *gin.Context) {
	ctrl.transition(c, ctrl.coordinator.Resume)
}

func (ctrl *SessionController) HandleCompleteSession(c *gin.Context) {
	ctrl.transition(c, ctrl.coordinator.CompleteSession)
}

func (ctrl *SessionController) HandleAbortSession(c *gin.Context) {
	ctrl.transition(c, ctrl.coordinator.Abort)
}

func (ctrl *SessionController) transition(c *gin.Context, op func(owner, id string) error) {
	owner := c.GetString("owner")
	if err := op(owner, c.Param("id")); err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, tool.FastReturnSuccess())
}

func (ctrl *SessionController) HandleRemoveFile(c *gin.Context) {
	owner := c.GetString("owner")
	if err := ctrl.coordinator.RemoveFile(owner, c.Param("id"), c.Param("fileId")); err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, tool.FastReturnSuccess())
}
