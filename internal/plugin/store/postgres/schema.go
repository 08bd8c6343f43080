package postgres

import _ "embed"

//go:embed db/schema.sql
var schemaSQL string

// ForceImport can be referenced to make sure this package's init() runs.
var ForceImport = 0
