// Package routeutil holds the request helpers and error mapping shared by the
// /v1 route packages.
package routeutil

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"
	registryattach "github.com/chirino/weave-service/internal/registry/attach"
	registrystore "github.com/chirino/weave-service/internal/registry/store"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// HandleError writes the JSON error response for err. Unknown errors are
// logged and reported as 500 without detail.
func HandleError(c *gin.Context, err error) {
	var notFound *registrystore.NotFoundError
	var gone *registrystore.GoneError
	var validation *registrystore.ValidationError
	var conflict *registrystore.ConflictError
	var forbidden *registrystore.ForbiddenError
	var tooLarge *registryattach.TooLargeError

	switch {
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "error": err.Error()})
	case errors.As(err, &gone):
		c.JSON(http.StatusGone, gin.H{"code": "gone", "error": err.Error()})
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": err.Error(), "field": validation.Field})
	case errors.As(err, &conflict):
		code := conflict.Code
		if code == "" {
			code = "conflict"
		}
		c.JSON(http.StatusConflict, gin.H{"code": code, "error": err.Error()})
	case errors.As(err, &forbidden):
		c.JSON(http.StatusForbidden, gin.H{"code": "forbidden", "error": err.Error()})
	case errors.As(err, &tooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"code": "too_large", "error": err.Error()})
	default:
		log.Error("Request failed", "method", c.Request.Method, "path", c.Request.URL.Path, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": "internal", "error": "internal server error"})
	}
}

// BadRequest writes a 400 validation error for a malformed request.
func BadRequest(c *gin.Context, field, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"code": "validation_error", "error": message, "field": field})
}

// QueryInt parses an integer query parameter, returning def when it is absent
// or malformed.
func QueryInt(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

// QueryIntClamped is QueryInt bounded to [lo, hi].
func QueryIntClamped(c *gin.Context, key string, def, lo, hi int) int {
	return Clamp(QueryInt(c, key, def), lo, hi)
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ParamUUID parses a path parameter as a UUID. A malformed id answers 404 for
// the named resource and returns false.
func ParamUUID(c *gin.Context, name, resource string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		HandleError(c, &registrystore.NotFoundError{Resource: resource, ID: c.Param(name)})
		return uuid.Nil, false
	}
	return id, true
}

// QueryUUID parses a required UUID query parameter, answering 400 when it is
// missing or malformed.
func QueryUUID(c *gin.Context, key string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Query(key))
	if err != nil {
		BadRequest(c, key, key+" must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}
