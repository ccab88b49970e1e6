package tool

import (
	"maps"

	"github.com/gin-gonic/gin"
)

// FastReturnError is the uniform error payload for handler rejections.
func FastReturnError(msg string) gin.H {
	return gin.H{
		"error": msg,
	}
}

func FastReturnSuccess() gin.H {
	return gin.H{
		"status": "ok",
	}
}

func FastReturnSuccessWithData(data any) gin.H {
	return gin.H{
		"data": data,
	}
}

// FastReturnErrorWithData merges extra fields into the error payload, e.g.
// the expected offset on a chunk conflict.
func FastReturnErrorWithData(msg string, data map[string]any) gin.H {
	resp := gin.H{
		"error": msg,
	}
	maps.Copy(resp, data)
	return resp
}
