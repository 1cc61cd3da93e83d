package controllers

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"upload-gateway/middleware"
	"upload-gateway/models"
	"upload-gateway/services"
	"upload-gateway/store"
)

// RegisterRoutes mounts the authenticated upload API.
func RegisterRoutes(router *gin.Engine) {
	api := router.Group("/upload", middleware.RequireAuth())
	api.POST("/init", InitBatch)
	api.POST("/chunk", UploadChunk)
	api.POST("/complete", CompleteUpload)
	api.GET("/status/:batchID", GetBatchStatus)
	api.GET("/download/:uploadID", DownloadFile)
}

func InitBatch(c *gin.Context) {
	var req struct {
		Files       []models.ManifestEntry `json:"files" binding:"required"`
		BatchID     string                 `json:"batch_id"`
		ProjectName string                 `json:"project_name"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	batch, err := services.AppUploadService.InitBatch(c.Request.Context(), middleware.Owner(c), req.Files, req.BatchID, req.ProjectName)
	if err != nil {
		c.JSON(errStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, batch)
}

func UploadChunk(c *gin.Context) {
	var req struct {
		UploadID    string `json:"upload_id" binding:"required"`
		ChunkIndex  int    `json:"chunk_index"`
		ChunkData   string `json:"chunk_data" binding:"required"`
		IsLastChunk bool   `json:"is_last_chunk"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// The chunk's byte length is the decoded size, not the wire size.
	chunk, err := base64.StdEncoding.DecodeString(req.ChunkData)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "chunk_data must be base64 encoded"})
		return
	}

	ack, err := services.AppUploadService.ApplyChunk(c.Request.Context(), middleware.Owner(c), req.UploadID, req.ChunkIndex, chunk, req.IsLastChunk)
	if err != nil {
		c.JSON(errStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, ack)
}

func CompleteUpload(c *gin.Context) {
	var req struct {
		UploadID string `json:"upload_id" binding:"required"`
		Outcome  string `json:"outcome"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	status := models.StatusCompleted
	if req.Outcome != "" {
		parsed, err := models.ParseUploadStatus(req.Outcome)
		if err != nil || (parsed != models.StatusCompleted && parsed != models.StatusError) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "outcome must be completed or error"})
			return
		}
		status = parsed
	}

	sess, err := services.AppUploadService.ConfirmUpload(c.Request.Context(), middleware.Owner(c), req.UploadID, status)
	if err != nil {
		c.JSON(errStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"upload_id": sess.UploadID, "status": sess.Status})
}

func GetBatchStatus(c *gin.Context) {
	batchStatus, err := services.AppUploadService.BatchStatus(c.Request.Context(), middleware.Owner(c), c.Param("batchID"))
	if err != nil {
		c.JSON(errStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, batchStatus)
}

func DownloadFile(c *gin.Context) {
	if !services.AppUploadService.HasSink() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "chunk storage not configured"})
		return
	}

	sess, err := services.AppUploadService.GetSession(c.Request.Context(), middleware.Owner(c), c.Param("uploadID"))
	if err != nil {
		c.JSON(errStatus(err), gin.H{"error": err.Error()})
		return
	}
	if sess.Status != models.StatusCompleted {
		c.JSON(http.StatusConflict, gin.H{"error": "upload not completed"})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", sess.Filename))
	if mimeType, ok := sess.Metadata["mimeType"].(string); ok && mimeType != "" {
		c.Header("Content-Type", mimeType)
	}

	c.Stream(func(w io.Writer) bool {
		if err := services.AppUploadService.AssembleUpload(c.Request.Context(), sess.UploadID, w); err != nil {
			log.Printf("Error when assembling upload: %v", err)
		}
		return false
	})
}

func errStatus(err error) int {
	switch {
	case errors.Is(err, services.ErrEmptyManifest),
		errors.Is(err, services.ErrBatchTooLarge),
		errors.Is(err, services.ErrInvalidManifestEntry),
		errors.Is(err, services.ErrInvalidChunk):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrBatchConflict),
		errors.Is(err, store.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, services.ErrChunkStorage):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
