package database

import "embed"

// Migration files are embedded at compile time; RunMigrations applies them
// on startup.
//
//go:embed migrations
var migrationsFS embed.FS
