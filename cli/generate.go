package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"shield/generator"
	"shield/store"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
)

type generateOptions struct {
	selection    generator.Selection
	manifestPath string
	// manifestRequired is set when the manifest path was given explicitly.
	manifestRequired bool
}

func newGenerateCommand() *cobra.Command {
	var opts generateOptions

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Create the permissions for the entities in the manifest",
		Long: `Create the permissions for the resources, pages and widgets listed in the
manifest. Existing permissions are left untouched.`,
		Example: `  shield generate --all
  shield generate --resource PostResource,CategoryResource
  shield generate --all --exclude --widget StatsOverview`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			opts.manifestRequired = cmd.Flags().Changed("manifest")

			rt, err := newRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close(context.WithoutCancel(cmd.Context()))

			ctx, span := tracer.Start(cmd.Context(), "cli.generate")
			defer func() { finishSpan(span, err) }()

			return runGenerate(ctx, rt, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&opts.selection.All, "all", false, "generate permissions for every entity in the manifest")
	cmd.Flags().StringSliceVar(&opts.selection.Resources, "resource", nil, "resources to generate permissions for")
	cmd.Flags().StringSliceVar(&opts.selection.Pages, "page", nil, "pages to generate permissions for")
	cmd.Flags().StringSliceVar(&opts.selection.Widgets, "widget", nil, "widgets to generate permissions for")
	cmd.Flags().BoolVar(&opts.selection.Exclude, "exclude", false, "skip the named entities instead of selecting them")
	cmd.Flags().StringVar(&opts.manifestPath, "manifest", "", "manifest path (default $SHIELD_MANIFEST or shield.yaml)")

	return cmd
}

func runGenerate(ctx context.Context, rt *runtime, opts generateOptions, out io.Writer) error {
	path := opts.manifestPath
	if path == "" {
		path = rt.cfg.Seeder.ManifestPath
	}

	manifest, err := generator.LoadManifest(path, opts.manifestRequired)
	if err != nil {
		return err
	}

	plan, err := generator.Plan(manifest, opts.selection)
	if errors.Is(err, generator.ErrNoSelection) || errors.Is(err, generator.ErrUnknownEntity) {
		fmt.Fprintln(out, ErrorStyle.Render(err.Error()))
		return invalid(err)
	}
	if err != nil {
		return err
	}

	conn, err := rt.database(ctx)
	if err != nil {
		return err
	}

	report, err := generator.Apply(ctx, plan, manifest.GuardName, store.NewPostgresStore(conn, rt.cfg.DB.Tables))
	if err != nil {
		return err
	}
	rt.logger.Info("permissions generated", "entities", len(report.Entities), "created", report.Created())

	fmt.Fprintln(out, summaryTable(report))
	fmt.Fprintf(out, " %s %d permission(s) created.\n", SuccessStyle.Render("Done."), report.Created())
	return nil
}

func summaryTable(report generator.Report) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(SubtitleStyle).
		Headers("Type", "Entity", "Created", "Existing").
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return TitleStyle.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})

	for _, entity := range report.Entities {
		t.Row(
			string(entity.Kind),
			entity.Name,
			strconv.Itoa(entity.Created),
			strconv.Itoa(entity.Existing),
		)
	}
	return t.String()
}
