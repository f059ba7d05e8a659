package db

import "embed"

// sqlSchemas embeds the SQL migration files so a deployed binary carries its
// own schema.
//
//go:embed migrations/*.sql
var sqlSchemas embed.FS
