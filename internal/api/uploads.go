package api

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// readUpload returns the multipart "file" field, enforcing the size limit.
// It renders the error response itself and reports ok=false on failure.
func (s *Server) readUpload(c *gin.Context) (data []byte, name, contentType string, ok bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.MaxUploadBytes+1<<20)
	fh, err := c.FormFile("file")
	if err != nil {
		s.badRequest(c, "No file provided")
		return nil, "", "", false
	}
	if fh.Size > s.MaxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, apiError{
			Code:    "file_too_large",
			Message: fmt.Sprintf("file exceeds %d bytes", s.MaxUploadBytes),
		})
		return nil, "", "", false
	}
	f, err := fh.Open()
	if err != nil {
		s.fail(c, "open upload", err)
		return nil, "", "", false
	}
	defer f.Close()

	data, err = io.ReadAll(io.LimitReader(f, s.MaxUploadBytes))
	if err != nil {
		s.fail(c, "read upload", err)
		return nil, "", "", false
	}
	contentType = fh.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return data, fh.Filename, contentType, true
}

func (s *Server) uploadScreenshot(c *gin.Context) {
	data, name, contentType, ok := s.readUpload(c)
	if !ok {
		return
	}
	if !strings.HasPrefix(contentType, "image/") {
		s.badRequest(c, "Only image files are allowed")
		return
	}
	url, err := s.Blobs.Store(c.Request.Context(), data, contentType, name)
	if err != nil {
		s.fail(c, "store screenshot", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"url":          url,
		"originalName": name,
		"size":         len(data),
		"uploadedAt":   s.now().UTC().Format(time.RFC3339),
		"message":      "Screenshot uploaded successfully",
	})
}

// uploadLegacy serves the older upload route, which accepts any content type.
func (s *Server) uploadLegacy(c *gin.Context) {
	data, name, contentType, ok := s.readUpload(c)
	if !ok {
		return
	}
	url, err := s.Blobs.Store(c.Request.Context(), data, contentType, name)
	if err != nil {
		s.fail(c, "store upload", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}
