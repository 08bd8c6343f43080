package postgres

import registrystore "github.com/chirino/weave-service/internal/registry/store"

type NotFoundError = registrystore.NotFoundError
type GoneError = registrystore.GoneError
type ValidationError = registrystore.ValidationError
type ConflictError = registrystore.ConflictError
type ForbiddenError = registrystore.ForbiddenError
