package database

import (
	"context"
	"fmt"
	"time"
)

// Info describes the connected server and database.
type Info struct {
	Database   string    `json:"database"`
	User       string    `json:"user"`
	Version    string    `json:"version"`
	ServerTime time.Time `json:"server_time"`
	Size       string    `json:"size"`
}

// QueryInfo reads connection details from the server.
func QueryInfo(ctx context.Context, db DBTX) (*Info, error) {
	const query = `
		SELECT current_database(),
			current_user,
			version(),
			now(),
			pg_size_pretty(pg_database_size(current_database()))`

	var info Info
	if err := db.QueryRow(ctx, query).Scan(&info.Database, &info.User, &info.Version, &info.ServerTime, &info.Size); err != nil {
		return nil, fmt.Errorf("failed to query database info: %w", err)
	}
	return &info, nil
}
