package store

import (
	"embed"
)

// migrationFiles embeds the schema migrations applied idempotently at
// store.Open(). Mirrors the teacher's go:embed usage for shipping static
// assets inside the binary.
//
//go:embed migrations/*.sql
var migrationFiles embed.FS
