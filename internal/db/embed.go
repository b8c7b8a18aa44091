package db

import "embed"

// EmbedMigrations holds the schema migrations compiled into the binary,
// so a server or test needs nothing on disk to create its store.
//
//go:embed migrations/*.sql
var EmbedMigrations embed.FS
