package main

import (
	"monkeymoney/internal/config" // Custom import path (Config)
	"monkeymoney/internal/db"     // Custom import path (Database)
)

// Main entry point for migration and admin seeding
func main() {
	cfg := config.LoadConfig() // Load configuration

	// Database Source Name (DSN) for MySQL connection
	dsn := cfg.DBUser + ":" + cfg.DBPassword + "@tcp(" + cfg.DBHost + ":" + cfg.DBPort + ")/" + cfg.DBName + "?parseTime=true"
	conn := db.Migrate(dsn)

	// Ensure the configured admin account exists
	db.SeedAdmin(conn, cfg.AdminUsername, cfg.AdminEmail, cfg.AdminPassword)
}
