// Package cli implements franchisectl, the operator tool for the franchise
// service. Lifecycle commands go through the HTTP API; migrate talks to
// PostgreSQL directly.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/toda-franchise/internal/config"
	"github.com/turtacn/toda-franchise/internal/domain/calendar"
	"github.com/turtacn/toda-franchise/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/toda-franchise/pkg/client"
	"github.com/turtacn/toda-franchise/pkg/errors"
)

// Build-time variables injected via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// cliContextKey is the context key for CLIContext.
type cliContextKey struct{}

// RootOptions holds global CLI flags.
type RootOptions struct {
	ConfigPath   string
	LogLevel     string
	OutputFormat string
	Verbose      bool
	Timeout      time.Duration
	ServerAddr   string
	MemberID     int64
	Role         string
}

// CLIContext carries initialized dependencies through the command tree.
type CLIContext struct {
	Config       *config.Config
	Logger       logging.Logger
	Client       *client.Client
	Migrator     Migrator
	Calendar     calendar.Calendar
	Clock        calendar.Clock
	OutputFormat string
	Timeout      time.Duration
}

// Dependencies lets callers replace the collaborators franchisectl builds
// from configuration. Zero fields fall back to the production wiring.
type Dependencies struct {
	NewMigrator func(cfg *config.Config) Migrator
	Clock       calendar.Clock
}

// NewRootCommand creates the root command with production dependencies.
func NewRootCommand() *cobra.Command {
	return NewRootCommandWithDeps(Dependencies{})
}

// NewRootCommandWithDeps creates the root command and registers every
// subcommand.
func NewRootCommandWithDeps(deps Dependencies) *cobra.Command {
	if deps.NewMigrator == nil {
		deps.NewMigrator = newPostgresMigrator
	}
	if deps.Clock == nil {
		deps.Clock = calendar.SystemClock()
	}
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "franchisectl",
		Short: "Operate the TODA tricycle franchise service",
		Long: "franchisectl manages the franchise database schema and drives franchise\n" +
			"and renewal records through the approval workflow via the HTTP API.",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return persistentPreRun(cmd, opts, deps)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.ConfigPath, "config", "c", "", "config file path (default: ./franchise.yaml)")
	pf.StringVar(&opts.LogLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	pf.StringVarP(&opts.OutputFormat, "output", "o", "text", "output format (text, json, table)")
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "enable debug logging")
	pf.DurationVar(&opts.Timeout, "timeout", 30*time.Second, "per-command timeout")
	pf.StringVar(&opts.ServerAddr, "server", "", "API base URL (default: from server config)")
	pf.Int64Var(&opts.MemberID, "member-id", 1, "office member id sent to the API")
	pf.StringVar(&opts.Role, "role", "admin", "office role sent to the API (member, admin, treasurer)")

	cmd.AddCommand(
		newMigrateCmd(),
		newStatusCmd(),
		newRatesCmd(),
		newTransitionCmd(),
		newPayCmd(),
		newWindowCmd(),
		newVersionCmd(),
	)
	return cmd
}

// persistentPreRun initializes config, logger and client, then stores CLIContext.
func persistentPreRun(cmd *cobra.Command, opts *RootOptions, deps Dependencies) error {
	switch strings.ToLower(opts.OutputFormat) {
	case "text", "json", "table":
	default:
		return fmt.Errorf("unsupported output format %q", opts.OutputFormat)
	}

	logger, err := initLogger(opts)
	if err != nil {
		return fmt.Errorf("logger initialization failed: %w", err)
	}

	cfg, err := initConfig(opts, logger)
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	cal, err := calendar.Load(cfg.Franchise.Timezone)
	if err != nil {
		return fmt.Errorf("calendar initialization failed: %w", err)
	}

	apiClient, err := initClient(cfg, opts, logger)
	if err != nil {
		logger.Warn("API client initialization failed, API commands will not work", logging.Err(err))
	}

	cliCtx := &CLIContext{
		Config:       cfg,
		Logger:       logger,
		Client:       apiClient,
		Migrator:     deps.NewMigrator(cfg),
		Calendar:     cal,
		Clock:        deps.Clock,
		OutputFormat: strings.ToLower(opts.OutputFormat),
		Timeout:      opts.Timeout,
	}

	cmd.SetContext(context.WithValue(cmd.Context(), cliContextKey{}, cliCtx))
	return nil
}

// configSearchPaths are tried in order when --config is not given.
var configSearchPaths = []string{
	"./franchise.yaml",
	"/etc/toda-franchise/config.yaml",
}

// initConfig loads configuration with priority: flag file > search path >
// environment. Without a usable source the defaults apply, which is enough
// for the API and window commands.
func initConfig(opts *RootOptions, logger logging.Logger) (*config.Config, error) {
	if opts.ConfigPath != "" {
		return config.Load(opts.ConfigPath)
	}

	for _, p := range configSearchPaths {
		if _, statErr := os.Stat(p); statErr == nil {
			return config.Load(p)
		}
	}

	cfg, err := config.LoadFromEnv()
	if err == nil {
		return cfg, nil
	}
	logger.Warn("no usable configuration found, using defaults", logging.Err(err))

	cfg = &config.Config{}
	config.ApplyDefaults(cfg)
	return cfg, nil
}

// initLogger creates a console logger on stderr so stdout stays parseable.
func initLogger(opts *RootOptions) (logging.Logger, error) {
	level := strings.ToLower(opts.LogLevel)
	if opts.Verbose {
		level = "debug"
	}
	return logging.NewLogger(logging.LogConfig{
		Level:            level,
		Format:           "console",
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	})
}

func initClient(cfg *config.Config, opts *RootOptions, logger logging.Logger) (*client.Client, error) {
	addr := opts.ServerAddr
	if addr == "" {
		host := cfg.Server.Host
		if host == "" || host == "0.0.0.0" {
			host = "localhost"
		}
		addr = fmt.Sprintf("http://%s:%d", host, cfg.Server.Port)
	}
	return client.NewClient(addr, opts.MemberID, opts.Role,
		client.WithLogger(clientLogger{logger.Named("client")}),
		client.WithUserAgent("franchisectl/"+Version),
	)
}

// clientLogger adapts logging.Logger to the SDK's printf-style Logger.
type clientLogger struct {
	l logging.Logger
}

func (c clientLogger) Debugf(format string, args ...interface{}) { c.l.Debug(fmt.Sprintf(format, args...)) }
func (c clientLogger) Infof(format string, args ...interface{})  { c.l.Info(fmt.Sprintf(format, args...)) }
func (c clientLogger) Errorf(format string, args ...interface{}) { c.l.Error(fmt.Sprintf(format, args...)) }

// GetCLIContext extracts CLIContext from a cobra command's context.
func GetCLIContext(cmd *cobra.Command) (*CLIContext, error) {
	ctx := cmd.Context()
	if ctx == nil {
		return nil, errors.Validation("command context is nil")
	}
	cliCtx, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok || cliCtx == nil {
		return nil, errors.Validation("CLIContext not found in command context")
	}
	return cliCtx, nil
}

// apiClient returns the API client or an error explaining why there is none.
func (c *CLIContext) apiClient() (*client.Client, error) {
	if c.Client == nil {
		return nil, errors.New(errors.ErrCodeServiceUnavailable, "API client is not configured; pass --server")
	}
	return c.Client, nil
}

// commandContext bounds a command by the --timeout flag.
func (c *CLIContext) commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	if c.Timeout <= 0 {
		return context.WithCancel(cmd.Context())
	}
	return context.WithTimeout(cmd.Context(), c.Timeout)
}

// Execute is the main entry point for the CLI application.
func Execute() error {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		PrintError(rootCmd, err)
		return err
	}
	return nil
}

// PrintResult outputs data in the format specified by CLIContext.
func PrintResult(cmd *cobra.Command, data interface{}) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return printJSON(cmd, data)
	}

	switch cliCtx.OutputFormat {
	case "json":
		return printJSON(cmd, data)
	case "table":
		return printTable(cmd, data)
	default:
		return printText(cmd, data)
	}
}

func printJSON(cmd *cobra.Command, data interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func printText(cmd *cobra.Command, data interface{}) error {
	switch v := data.(type) {
	case string:
		fmt.Fprintln(cmd.OutOrStdout(), v)
	case fmt.Stringer:
		fmt.Fprintln(cmd.OutOrStdout(), v.String())
	default:
		fmt.Fprintf(cmd.OutOrStdout(), "%+v\n", v)
	}
	return nil
}

// tableProvider is implemented by results that render as rows.
type tableProvider interface {
	TableHeaders() []string
	TableRows() [][]string
}

// printTable falls back to text for results that are not tabular.
func printTable(cmd *cobra.Command, data interface{}) error {
	if tp, ok := data.(tableProvider); ok {
		fmt.Fprint(cmd.OutOrStdout(), FormatTable(tp.TableHeaders(), tp.TableRows()))
		return nil
	}
	return printText(cmd, data)
}

// PrintError writes a formatted error message to stderr.
func PrintError(cmd *cobra.Command, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", err.Error())
}

// FormatTable renders headers and rows as an aligned ASCII table.
func FormatTable(headers []string, rows [][]string) string {
	if len(headers) == 0 {
		return ""
	}

	colWidths := make([]int, len(headers))
	for i, h := range headers {
		colWidths[i] = len(h)
	}
	for _, row := range rows {
		for i := 0; i < len(row) && i < len(colWidths); i++ {
			if len(row[i]) > colWidths[i] {
				colWidths[i] = len(row[i])
			}
		}
	}

	var sb strings.Builder
	writeRow := func(cells []string) {
		for i := range headers {
			if i > 0 {
				sb.WriteString("  ")
			}
			val := ""
			if i < len(cells) {
				val = cells[i]
			}
			sb.WriteString(padRight(val, colWidths[i]))
		}
		sb.WriteString("\n")
	}

	writeRow(headers)
	sep := make([]string, len(colWidths))
	for i, w := range colWidths {
		sep[i] = strings.Repeat("-", w)
	}
	writeRow(sep)
	for _, row := range rows {
		writeRow(row)
	}
	return sb.String()
}

// padRight pads s with spaces to the given width.
func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}
