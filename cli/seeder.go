package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"shield/snapshot"
	"shield/store"
	"shield/stub"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type seederOptions struct {
	generate bool
	force    bool
}

func newSeederCommand() *cobra.Command {
	var opts seederOptions

	cmd := &cobra.Command{
		Use:   "seeder",
		Short: "Create a seeder file from the existing roles and permissions",
		Long: `Read every role with its permissions, plus the permissions not granted to
any role, and write a seeder program that recreates them.`,
		Example: `  shield seeder
  shield seeder --generate
  shield seeder --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			rt, err := newRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close(context.WithoutCancel(cmd.Context()))

			ctx, span := tracer.Start(cmd.Context(), "cli.seeder")
			defer func() { finishSpan(span, err) }()

			return runSeeder(ctx, rt, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&opts.generate, "generate", false, "generate permissions for every entity before creating the seeder")
	cmd.Flags().BoolVarP(&opts.force, "force", "F", false, "overwrite the seeder if it already exists")

	return cmd
}

func runSeeder(ctx context.Context, rt *runtime, opts seederOptions, out io.Writer) error {
	path := rt.cfg.Seeder.OutputPath

	if !opts.force {
		if err := stub.CheckForCollision(path); err != nil {
			if errors.Is(err, stub.ErrCollision) {
				fmt.Fprintln(out, ErrorStyle.Render(path+" already exists, aborting."))
				return invalid(err)
			}
			return err
		}
	}

	if opts.generate {
		all := generateOptions{manifestPath: rt.cfg.Seeder.ManifestPath}
		all.selection.All = true
		if err := runGenerate(ctx, rt, all, out); err != nil {
			return err
		}
	}

	conn, err := rt.database(ctx)
	if err != nil {
		return err
	}

	snap, err := snapshot.Collect(ctx, store.NewPostgresStore(conn, rt.cfg.DB.Tables))
	if errors.Is(err, snapshot.ErrNothingToSeed) {
		fmt.Fprintln(out, WarningStyle.Render(" There are no roles or permissions to create the seeder. Please first run `shield generate --all`"))
		return invalid(err)
	}
	if err != nil {
		return err
	}

	renderer := stub.Renderer{
		StubPath:      rt.cfg.Seeder.StubPath,
		RuntimeImport: rt.cfg.Seeder.RuntimeImport,
		Tables:        rt.cfg.DB.Tables,
	}
	content, err := renderer.Render(snap)
	if err != nil {
		return err
	}
	if err := stub.Write(path, content); err != nil {
		return err
	}

	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("shield.seeder.path", path),
		attribute.Int("shield.seeder.roles", len(snap.RolePermissions)),
		attribute.Int("shield.seeder.direct_permissions", len(snap.DirectPermissions)),
	)
	rt.logger.Debug("seeder written", "path", path, "roles", len(snap.RolePermissions), "direct", len(snap.DirectPermissions))

	fmt.Fprintln(out, " "+SuccessStyle.Render("ShieldSeeder")+" generated successfully.")
	fmt.Fprintln(out, " Now you can use it in your deploy script. i.e:")
	fmt.Fprintln(out, "  "+CmdStyle.Render("go run "+runnable(path)))
	fmt.Fprintln(out, SubtitleStyle.Render(" It connects with DATABASE_URL, or the DB_* variables when that is unset."))
	return nil
}

// runnable formats path the way `go run` expects a file argument.
func runnable(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return "./" + filepath.ToSlash(filepath.Clean(path))
}
