// Package cli wires the shield commands.
package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	"shield/config"
	"shield/db"
	"shield/telemetry"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("shield/cli")

var (
	loadConfig    = config.Load
	connectDB     = db.Connect
	initTelemetry = telemetry.Init
)

// Version is set via -ldflags.
var Version = "dev"

func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "shield",
		Short: "Role and permission tooling for the admin panel",
		Long: TitleStyle.Render("shield") + SubtitleStyle.Render(" - role and permission tooling") + `

shield introspects the roles and permissions stored in the database and
generates a seeder program that recreates them in another environment.

` + SubtitleStyle.Render("Examples:") + `
  shield generate --all     Create permissions for every configured entity
  shield seeder             Generate database/seeders/shield_seeder.go
  shield seeder --force     Regenerate the seeder, overwriting the old one`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")

	root.AddCommand(newSeederCommand())
	root.AddCommand(newGenerateCommand())
	return root
}

// Execute runs the command line and returns the process status.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := NewRootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err != nil {
		var exitErr *ExitError
		if !errors.As(err, &exitErr) || !exitErr.reported {
			fmt.Fprintln(stderr, ErrorStyle.Render("Error:"), err.Error())
		}
	}
	return ExitCode(err)
}

// runtime holds what every command needs once configuration is loaded.
type runtime struct {
	cfg      config.Config
	logger   *log.Logger
	shutdown telemetry.ShutdownFunc
	conn     *sql.DB
}

func newRuntime(cmd *cobra.Command) (*runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	logger := newLogger(cmd.ErrOrStderr(), cfg.LogLevel, verbose)

	shutdown, err := initTelemetry(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	return &runtime{cfg: cfg, logger: logger, shutdown: shutdown}, nil
}

// database connects on first use, so checks that need no connection run first.
func (r *runtime) database(ctx context.Context) (*sql.DB, error) {
	if r.conn != nil {
		return r.conn, nil
	}
	conn, err := connectDB(ctx, r.cfg.DB)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("connected to database", "host", r.cfg.DB.Host, "name", r.cfg.DB.Name)
	r.conn = conn
	return conn, nil
}

func (r *runtime) Close(ctx context.Context) {
	if r.conn != nil {
		if err := r.conn.Close(); err != nil {
			r.logger.Warn("close database", "error", err)
		}
	}
	if r.shutdown != nil {
		if err := r.shutdown(ctx); err != nil {
			r.logger.Warn("telemetry shutdown", "error", err)
		}
	}
}

func newLogger(w io.Writer, level string, verbose bool) *log.Logger {
	logger := log.NewWithOptions(w, log.Options{Prefix: "shield"})
	parsed, err := log.ParseLevel(level)
	if err != nil {
		parsed = log.InfoLevel
	}
	if verbose {
		parsed = log.DebugLevel
	}
	logger.SetLevel(parsed)
	return logger
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
