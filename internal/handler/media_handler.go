package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/testhub/testhub-backend/internal/response"
	"github.com/testhub/testhub-backend/internal/service"
	"github.com/testhub/testhub-backend/internal/storage"
)

// MediaHandler handles media upload endpoints.
type MediaHandler struct {
	mediaService *service.MediaService
	// local is nil when objects live in OSS.
	local *storage.LocalStore
}

// NewMediaHandler creates a new MediaHandler.
func NewMediaHandler(mediaService *service.MediaService, local *storage.LocalStore) *MediaHandler {
	return &MediaHandler{mediaService: mediaService, local: local}
}

// UploadMedia godoc
// POST /api/v1/lecturer/media/upload
// Stores an image and returns its key and a signed preview URL.
func (h *MediaHandler) UploadMedia(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrFileRequired)
		return
	}
	defer file.Close()

	upload, err := h.mediaService.SaveUpload(c.Request.Context(), file, header)
	if err != nil {
		failFromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, upload)
}

// ServeUpload godoc
// GET /uploads/*key?expires=&sig=
// Serves a locally stored object when its signature is valid.
func (h *MediaHandler) ServeUpload(c *gin.Context) {
	if h.local == nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	key := c.Param("key")
	if len(key) > 0 && key[0] == '/' {
		key = key[1:]
	}
	if !h.local.Verify(key, c.Query("expires"), c.Query("sig")) {
		response.Fail(c, http.StatusForbidden, response.ErrForbidden)
		return
	}

	path, err := h.local.Path(key)
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	c.File(path)
}
