package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chat-sync/internal/keys"
	"chat-sync/internal/media"
	"chat-sync/internal/middleware"
)

const maxUploadBytes = 32 << 20

// Opener serves stored bytes directly. The in-memory backend implements it.
type Opener interface {
	Open(path string) ([]byte, string, bool)
}

// MediaHandler uploads photos, videos and profile pictures.
type MediaHandler struct {
	uploader media.Uploader
	maxBytes int64
}

func NewMediaHandler(uploader media.Uploader) *MediaHandler {
	return &MediaHandler{uploader: uploader, maxBytes: maxUploadBytes}
}

// Upload stores the multipart file field under the path for :kind and
// returns its URL. Message media use the message_id form field as name.
func (h *MediaHandler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes)

	var path, fallbackType string
	switch c.Param("kind") {
	case "profile":
		path = keys.ProfilePicturePath(middleware.CurrentUser(c).Email)
		fallbackType = "image/png"
	case "photo":
		path = keys.MessagePhotoPath(messageIDFrom(c))
		fallbackType = "image/png"
	case "video":
		path = keys.MessageVideoPath(messageIDFrom(c))
		fallbackType = "video/quicktime"
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown media kind"})
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	f, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file"})
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file"})
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = fallbackType
	}

	url, err := h.uploader.Upload(c.Request.Context(), path, data, contentType)
	if err != nil {
		h.abort(c, err, "failed to upload")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"url": url, "path": path})
}

// URL resolves a stored path to its download URL.
func (h *MediaHandler) URL(c *gin.Context) {
	path := c.Query("path")
	if path == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "path is required"})
		return
	}
	url, err := h.uploader.DownloadURL(c.Request.Context(), path)
	if err != nil {
		h.abort(c, err, "failed to resolve url")
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

// Files serves objects of an Opener below /media/files.
func Files(opener Opener) gin.HandlerFunc {
	return func(c *gin.Context) {
		data, contentType, ok := opener.Open(strings.TrimPrefix(c.Param("path"), "/"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.Data(http.StatusOK, contentType, data)
	}
}

func (h *MediaHandler) abort(c *gin.Context, err error, serverMessage string) {
	switch {
	case errors.Is(err, media.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, media.ErrInvalidPath), errors.Is(err, media.ErrEmpty):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, media.ErrDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": serverMessage})
	}
}

func messageIDFrom(c *gin.Context) string {
	if id := strings.TrimSpace(c.PostForm("message_id")); id != "" {
		return id
	}
	return uuid.NewString()
}
