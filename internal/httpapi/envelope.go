// Package httpapi exposes the REST surface: user accounts and sessions,
// channels, and the video catalog with its social metadata.
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vibble/vibble/internal/apperr"
)

// envelope is the uniform response body; success mirrors the status class.
type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	Message string      `json:"message"`
}

func respondSuccess(contextGin *gin.Context, status int, data interface{}, message string) {
	if data == nil {
		data = gin.H{}
	}
	contextGin.JSON(status, envelope{Success: true, Data: data, Message: message})
}

func respondError(contextGin *gin.Context, logger *zap.Logger, err error) {
	typed := apperr.From(err)
	if typed.Status >= http.StatusInternalServerError && logger != nil {
		logger.Error("request failed",
			zap.String("path", contextGin.FullPath()),
			zap.Error(err),
		)
	}
	contextGin.AbortWithStatusJSON(typed.Status, envelope{
		Success: false,
		Data:    gin.H{},
		Message: typed.Message,
	})
}
