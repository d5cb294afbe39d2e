package handlers

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxUploadSize caps an uploaded image at the service's own limit.
const MaxUploadSize = 6 << 20

var allowedImageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/bmp":  ".bmp",
}

type uploadError struct {
	status  int
	message string
}

func (e *uploadError) Error() string { return e.message }

type upload struct {
	data        []byte
	contentType string
}

func (u upload) extension() string {
	return allowedImageTypes[u.contentType]
}

func isMultipart(c *gin.Context) bool {
	mediaType, _, err := mime.ParseMediaType(c.GetHeader("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

// readImage reads the "image" part of a multipart form.
func readImage(c *gin.Context) (*upload, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxUploadSize+1<<20)

	file, err := c.FormFile("image")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, &uploadError{status: http.StatusRequestEntityTooLarge, message: "image exceeds upload limit"}
		}
		return nil, &uploadError{status: http.StatusBadRequest, message: "image file is required"}
	}
	if file.Size > MaxUploadSize {
		return nil, &uploadError{status: http.StatusRequestEntityTooLarge, message: "image exceeds upload limit"}
	}

	src, err := file.Open()
	if err != nil {
		return nil, &uploadError{status: http.StatusBadRequest, message: "unable to open image"}
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, MaxUploadSize+1))
	if err != nil {
		return nil, &uploadError{status: http.StatusInternalServerError, message: "failed to read image"}
	}
	if len(data) > MaxUploadSize {
		return nil, &uploadError{status: http.StatusRequestEntityTooLarge, message: "image exceeds upload limit"}
	}

	contentType := strings.ToLower(strings.TrimSpace(file.Header.Get("Content-Type")))
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = mediaType
	}
	if _, ok := allowedImageTypes[contentType]; !ok {
		return nil, &uploadError{status: http.StatusUnsupportedMediaType, message: "unsupported image type " + contentType}
	}
	return &upload{data: data, contentType: contentType}, nil
}

func writeUploadError(c *gin.Context, err error) {
	var upErr *uploadError
	if errors.As(err, &upErr) {
		c.JSON(upErr.status, gin.H{"error": upErr.message})
		return
	}
	writeError(c, err)
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
