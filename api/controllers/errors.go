package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"cabinet/tool"
	"cabinet/types"
)

// writeDomainError maps the domain error taxonomy onto HTTP statuses. Owner
// mismatches arrive here already folded into ErrNotFound.
func writeDomainError(c *gin.Context, err error) {
	var offsetErr *types.OffsetMismatchError
	var capErr *types.CapacityError
	var writeErr *types.WriteFailure

	switch {
	case errors.Is(err, types.ErrPathTraversal):
		c.JSON(http.StatusBadRequest, tool.FastReturnError("Invalid path"))
	case errors.Is(err, types.ErrNotFound):
		c.JSON(http.StatusNotFound, tool.FastReturnError("Not found"))
	case errors.Is(err, types.ErrWrongState):
		c.JSON(http.StatusConflict, tool.FastReturnError("Operation not allowed in current state"))
	case errors.As(err, &offsetErr):
		c.JSON(http.StatusConflict, tool.FastReturnErrorWithData("Offset mismatch", map[string]any{
			"expected": offsetErr.Expected,
		}))
	case errors.As(err, &capErr):
		c.Header("Retry-After", "1")
		c.JSON(http.StatusTooManyRequests, tool.FastReturnError(capErr.Error()))
	case errors.As(err, &writeErr):
		c.JSON(http.StatusInternalServerError, tool.FastReturnError("Write failed, resume from reported offset"))
	default:
		c.JSON(http.StatusInternalServerError, tool.FastReturnError("Internal server error"))
	}
}
