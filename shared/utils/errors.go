package utils

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/julis-sh/intranet/shared/apperr"
	"github.com/julis-sh/intranet/shared/validation"
)

// RespondError maps an error to the matching response helper. Collaborator
// and unexpected failures are logged; their details never reach the client.
func RespondError(c *gin.Context, err error) {
	kind := apperr.KindInternal
	message := "Internal server error"
	var e *apperr.Error
	if errors.As(err, &e) {
		kind = e.Kind
		if kind != apperr.KindInternal {
			message = e.Message
		}
	}

	switch kind {
	case apperr.KindNotFound:
		NotFoundResponse(c, message)
	case apperr.KindPermissionDenied:
		ForbiddenResponse(c, message)
	case apperr.KindInvalidState, apperr.KindValidation:
		BadRequestResponse(c, message)
	case apperr.KindUnauthorized:
		UnauthorizedResponse(c, message)
	case apperr.KindUnavailable:
		ServiceUnavailableResponse(c, message)
	case apperr.KindExternalService:
		logrus.WithFields(logrus.Fields{
			"path":  c.FullPath(),
			"error": err.Error(),
		}).Error("External service failure")
		BadGatewayResponse(c, message)
	default:
		logrus.WithFields(logrus.Fields{
			"path":  c.FullPath(),
			"error": err.Error(),
		}).Error("Request failed")
		InternalServerErrorResponse(c, message)
	}
}

// BindJSON binds the request body and converts binding failures into
// validation errors with readable messages
func BindJSON(c *gin.Context, obj interface{}) error {
	if err := c.ShouldBindJSON(obj); err != nil {
		return apperr.Validation("%s", validation.Message(err))
	}
	return nil
}

// ParseUUIDParam reads a uuid path parameter
func ParseUUIDParam(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apperr.Validation("Invalid %s", name)
	}
	return id, nil
}

// ParseUUIDQuery reads an optional uuid query parameter
func ParseUUIDQuery(c *gin.Context, name string) (*uuid.UUID, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, apperr.Validation("Invalid %s", name)
	}
	return &id, nil
}

// Pagination reads skip and limit, clamping limit to [1, max]
func Pagination(c *gin.Context, defaultLimit, max int) (skip, limit int) {
	skip, _ = strconv.Atoi(c.DefaultQuery("skip", "0"))
	if skip < 0 {
		skip = 0
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultLimit)))
	if err != nil || limit < 1 {
		limit = defaultLimit
	}
	if limit > max {
		limit = max
	}
	return skip, limit
}
