package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type exportObjectResponse struct {
	Key          string `json:"key"`
	Size         int64  `json:"size"`
	LastModified string `json:"last_modified,omitempty"`
}

func (h *Handler) createExport(c *gin.Context) {
	res, err := h.exports.Export(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) listExports(c *gin.Context) {
	objects, err := h.exports.List(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}

	resp := make([]exportObjectResponse, len(objects))
	for i, obj := range objects {
		resp[i] = exportObjectResponse{Key: obj.Key, Size: obj.Size}
		if obj.LastModified != nil {
			resp[i].LastModified = obj.LastModified.UTC().Format("2006-01-02T15:04:05Z")
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) exportURL(c *gin.Context) {
	url, err := h.exports.URL(c.Request.Context(), c.Query("key"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

func (h *Handler) purgeExports(c *gin.Context) {
	if err := h.exports.Purge(c.Request.Context()); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
