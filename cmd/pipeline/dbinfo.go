package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/helixir/paper-etl/internal/database"
	"github.com/helixir/paper-etl/internal/repository"
)

func init() {
	rootCmd.AddCommand(dbInfoCmd)
}

var dbInfoCmd = &cobra.Command{
	Use:   "db-info",
	Short: "Print database connection details",
	Long: `Connect to the configured database and print the current database,
user, server version, server time, database size and papers row count
as JSON.`,
	Args: cobra.NoArgs,
	RunE: runDBInfo,
}

type dbInfoOutput struct {
	*database.Info
	Table       string `json:"table"`
	TableExists bool   `json:"table_exists"`
	Rows        *int64 `json:"rows,omitempty"`
}

func runDBInfo(cmd *cobra.Command, _ []string) error {
	a, err := newApp("db-info")
	if err != nil {
		return err
	}

	ctx, stop := commandContext(cmd)
	defer stop()

	db, err := a.connect(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	info, err := database.QueryInfo(ctx, db)
	if err != nil {
		return err
	}

	out := dbInfoOutput{Info: info, Table: a.cfg.Database.Table}
	papers := repository.NewPgPaperRepository(db, a.cfg.Database.Table)
	if out.TableExists, err = papers.TableExists(ctx); err != nil {
		return err
	}
	if out.TableExists {
		n, err := papers.Count(ctx)
		if err != nil {
			return err
		}
		out.Rows = &n
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
