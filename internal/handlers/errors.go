package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/anarcoiris/FaceGUI/internal/blobstore"
	"github.com/anarcoiris/FaceGUI/internal/clients"
	"github.com/anarcoiris/FaceGUI/internal/faceapi"
	"github.com/anarcoiris/FaceGUI/internal/logging"
	"github.com/anarcoiris/FaceGUI/internal/repository"
	"github.com/anarcoiris/FaceGUI/internal/usecase"
)

// statusFor maps an error from the face layer to an HTTP status.
func statusFor(err error) int {
	var cfgErr *clients.ConfigurationError
	var credErr *faceapi.CredentialError
	var reqErr *faceapi.ServiceRequestError
	switch {
	case errors.As(err, &cfgErr), errors.Is(err, usecase.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.As(err, &credErr):
		return http.StatusUnauthorized
	case errors.As(err, &reqErr):
		if reqErr.StatusCode < 400 {
			return http.StatusBadGateway
		}
		return reqErr.StatusCode
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, blobstore.ErrDisabled):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeError(c *gin.Context, err error) {
	body := gin.H{"error": err.Error()}
	if op := logging.OperationOf(err); op != "" {
		body["operation"] = op
	}
	var reqErr *faceapi.ServiceRequestError
	if errors.As(err, &reqErr) && reqErr.Code != "" {
		body["code"] = reqErr.Code
	}
	c.JSON(statusFor(err), body)
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": message})
}
