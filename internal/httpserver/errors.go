package httpserver

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/slipmail/slipmail/internal/model"
)

// Error kinds reported in the "error" field of failed responses.
const (
	kindMalformedInput         = "malformed_input"
	kindPayloadTooLarge        = "payload_too_large"
	kindEmptyBindingSet        = "empty_binding_set"
	kindInvalidRecipient       = "invalid_recipient"
	kindDuplicateRecipient     = "duplicate_recipient"
	kindNotFound               = "not_found"
	kindSplitPersistence       = "split_persistence"
	kindTransportMisconfigured = "transport_misconfigured"
	kindTransport              = "transport_error"
	kindInternal               = "internal"
)

// classify maps an error to an HTTP status and error kind.
func classify(err error) (int, string) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, kindPayloadTooLarge
	case errors.Is(err, model.ErrDuplicateRecipient):
		return http.StatusConflict, kindDuplicateRecipient
	case errors.Is(err, model.ErrMalformedInput):
		return http.StatusBadRequest, kindMalformedInput
	case errors.Is(err, model.ErrEmptyBindingSet):
		return http.StatusBadRequest, kindEmptyBindingSet
	case errors.Is(err, model.ErrInvalidRecipient):
		return http.StatusBadRequest, kindInvalidRecipient
	case errors.Is(err, model.ErrArtifactNotFound),
		errors.Is(err, model.ErrRecipientNotFound),
		errors.Is(err, model.ErrBlobNotFound),
		errors.Is(err, model.ErrDispatchNotFound):
		return http.StatusNotFound, kindNotFound
	case errors.Is(err, model.ErrSplitPersistence):
		return http.StatusInternalServerError, kindSplitPersistence
	case errors.Is(err, model.ErrTransportMisconfigured):
		return http.StatusServiceUnavailable, kindTransportMisconfigured
	default:
		return http.StatusInternalServerError, kindInternal
	}
}

func (s *Server) writeError(c *gin.Context, err error) {
	status, kind := classify(err)
	if status >= http.StatusInternalServerError {
		s.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	c.JSON(status, gin.H{"error": kind, "message": err.Error()})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": kindMalformedInput, "message": message})
}
