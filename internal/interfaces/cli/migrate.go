package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/turtacn/toda-franchise/internal/config"
	"github.com/turtacn/toda-franchise/internal/infrastructure/database/postgres"
	"github.com/turtacn/toda-franchise/internal/infrastructure/monitoring/logging"
)

// Migrator applies the embedded schema migrations.
type Migrator interface {
	Up() error
	Down(steps int) error
	Status() (version uint, dirty bool, err error)
	Force(version int) error
	Files() ([]string, error)
}

type postgresMigrator struct {
	dsn string
}

func newPostgresMigrator(cfg *config.Config) Migrator {
	return postgresMigrator{dsn: postgres.BuildDSN(cfg.Database.Postgres)}
}

func (m postgresMigrator) Up() error                   { return postgres.RunMigrations(m.dsn) }
func (m postgresMigrator) Down(steps int) error        { return postgres.RollbackMigration(m.dsn, steps) }
func (m postgresMigrator) Status() (uint, bool, error) { return postgres.MigrationStatus(m.dsn) }
func (m postgresMigrator) Force(version int) error     { return postgres.ForceMigrationVersion(m.dsn, version) }
func (m postgresMigrator) Files() ([]string, error)    { return postgres.MigrationFiles() }

// MigrationState is the output of migrate status.
type MigrationState struct {
	Version uint     `json:"version"`
	Dirty   bool     `json:"dirty"`
	Files   []string `json:"files"`
}

func (s MigrationState) String() string {
	state := "clean"
	if s.Dirty {
		state = "dirty"
	}
	return fmt.Sprintf("version %d (%s), %d migration file(s) embedded", s.Version, state, len(s.Files))
}

func (s MigrationState) TableHeaders() []string { return []string{"VERSION", "DIRTY", "FILES"} }

func (s MigrationState) TableRows() [][]string {
	return [][]string{{strconv.FormatUint(uint64(s.Version), 10), strconv.FormatBool(s.Dirty), strconv.Itoa(len(s.Files))}}
}

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
		Long:  "Apply, roll back or inspect the embedded PostgreSQL migrations using the configured database.",
	}
	cmd.AddCommand(newMigrateUpCmd(), newMigrateDownCmd(), newMigrateStatusCmd(), newMigrateForceCmd())
	return cmd
}

func newMigrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			if err := cc.Migrator.Up(); err != nil {
				return err
			}
			version, dirty, err := cc.Migrator.Status()
			if err != nil {
				return err
			}
			cc.Logger.Info("migrations applied", logging.Int64("version", int64(version)))
			return PrintResult(cmd, MigrationState{Version: version, Dirty: dirty, Files: mustFiles(cc)})
		},
	}
}

func newMigrateDownCmd() *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back applied migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if steps < 1 {
				return fmt.Errorf("--steps must be at least 1, got %d", steps)
			}
			cc, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			if err := cc.Migrator.Down(steps); err != nil {
				return err
			}
			version, dirty, err := cc.Migrator.Status()
			if err != nil {
				return err
			}
			cc.Logger.Info("migrations rolled back", logging.Int("steps", steps))
			return PrintResult(cmd, MigrationState{Version: version, Dirty: dirty, Files: mustFiles(cc)})
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	return cmd
}

func newMigrateStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			version, dirty, err := cc.Migrator.Status()
			if err != nil {
				return err
			}
			return PrintResult(cmd, MigrationState{Version: version, Dirty: dirty, Files: mustFiles(cc)})
		},
	}
}

func newMigrateForceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "force <version>",
		Short: "Mark the schema as being at version without running migrations",
		Long:  "Clears a dirty flag left by a failed migration. Fix the schema by hand first.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil || version < 0 {
				return fmt.Errorf("invalid version %q", args[0])
			}
			cc, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			if err := cc.Migrator.Force(version); err != nil {
				return err
			}
			cc.Logger.Warn("migration version forced", logging.Int("version", version))
			return PrintResult(cmd, MigrationState{Version: uint(version), Files: mustFiles(cc)})
		},
	}
}

// mustFiles lists embedded migrations; a listing failure only hides the count.
func mustFiles(cc *CLIContext) []string {
	files, err := cc.Migrator.Files()
	if err != nil {
		cc.Logger.Warn("cannot list migration files", logging.Err(err))
		return []string{}
	}
	return files
}
