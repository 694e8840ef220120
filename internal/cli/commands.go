package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jkdp/printshop-migrate/config"
	"github.com/jkdp/printshop-migrate/internal/app"
	"github.com/jkdp/printshop-migrate/internal/migrations"
)

func newUpCommand(r *runtime) *cobra.Command {
	var to string

	cmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Long:  `Applies every migration above the database version, up to --to (default: latest).`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			target := 0
			if to != "" {
				var err error
				if target, err = migrations.ParseVersion(to); err != nil {
					return fmt.Errorf("invalid --to: %w", err)
				}
			}
			return r.withApp(cmd, func(ctx context.Context, a app.AppInterface) error {
				result, err := a.Migrate(ctx, target)
				if result != nil {
					for _, applied := range result.Applied {
						printf(cmd, "applied %s  %s (%s)\n",
							migrations.FormatVersion(applied.Version), applied.Description, applied.Duration.Round(time.Millisecond))
					}
				}
				if err != nil {
					return err
				}
				if len(result.Applied) == 0 {
					printf(cmd, "database is up to date at %s\n", migrations.FormatVersion(result.ToVersion))
					return nil
				}
				printf(cmd, "database migrated from %s to %s\n",
					migrations.FormatVersion(result.FromVersion), migrations.FormatVersion(result.ToVersion))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&to, "to", "", "Target version, e.g. v4 (default: latest)")
	return cmd
}

func newStatusCommand(r *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the database version and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withApp(cmd, func(ctx context.Context, a app.AppInterface) error {
				status, err := a.Status(ctx)
				if err != nil {
					return err
				}

				plan := status.Plan
				current := migrations.FormatVersion(plan.CurrentVersion)
				if !plan.VersionExists {
					current += " (never migrated)"
				}
				printf(cmd, "database version: %s\n", current)
				printf(cmd, "latest version:   %s\n", migrations.FormatVersion(plan.LatestVersion))

				out := cmd.OutOrStdout()
				if len(status.History) > 0 {
					printf(cmd, "\napplied:\n")
					tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
					for _, h := range status.History {
						note := h.Duration.String()
						if h.Baseline {
							note = "baseline"
						}
						fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n",
							migrations.FormatVersion(h.Version), h.Description, h.AppliedAt.Format(time.RFC3339), note)
					}
					if err := tw.Flush(); err != nil {
						return err
					}
				}

				if len(plan.Pending) == 0 {
					printf(cmd, "\nno pending migrations\n")
					return nil
				}
				printf(cmd, "\npending:\n")
				for _, m := range plan.Pending {
					printf(cmd, "  %s  %s\n", migrations.FormatVersion(m.GetVersion()), m.Description())
				}
				return nil
			})
		},
	}
}

func newBaselineCommand(r *runtime) *cobra.Command {
	var flag string

	cmd := &cobra.Command{
		Use:   "baseline",
		Short: "Record a version as applied without running it",
		Long: `Marks every migration up to --version as applied. Use it to adopt a
database whose schema was brought to that version by hand.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := migrations.ParseVersion(flag)
			if err != nil {
				return fmt.Errorf("invalid --version: %w", err)
			}
			return r.withApp(cmd, func(ctx context.Context, a app.AppInterface) error {
				if err := a.Baseline(ctx, version); err != nil {
					return err
				}
				printf(cmd, "database baselined at %s\n", migrations.FormatVersion(version))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&flag, "version", "", "Version to record, e.g. v6")
	_ = cmd.MarkFlagRequired("version")
	return cmd
}

func newImportCommand(r *runtime) *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load a document-store export into the legacy tables",
		Long: `Loads a JSON export ({collection: {id: document}}) from a local path or an
s3://bucket/key location. Documents whose id is already present are skipped.
Importing is refused once identifiers were converted to UUIDs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withApp(cmd, func(ctx context.Context, a app.AppInterface) error {
				result, err := a.Import(ctx, source)
				if err != nil {
					return err
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "COLLECTION\tTABLE\tDOCUMENTS\tINSERTED\tSKIPPED\tINVALID")
				for _, c := range result.Collections {
					if c.Documents == 0 {
						continue
					}
					fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\n",
						c.Collection, c.Table, c.Documents, c.Inserted, c.Skipped, c.InvalidValues)
				}
				if err := tw.Flush(); err != nil {
					return err
				}
				for _, name := range result.Unknown {
					printf(cmd, "ignored unknown collection %s\n", name)
				}
				printf(cmd, "%d rows inserted, %d values stored as NULL\n", result.Inserted(), result.InvalidValues())
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&source, "source", "s", "", "Export path or s3://bucket/key")
	_ = cmd.MarkFlagRequired("source")
	return cmd
}

func newVerifyCommand(r *runtime) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Run the consistency checks",
		Long:  `Runs the verification catalogue and exits non-zero when any check fails.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withApp(cmd, func(ctx context.Context, a app.AppInterface) error {
				report, err := a.Verify(ctx)
				if err != nil {
					return err
				}
				if asJSON {
					err = report.WriteJSON(cmd.OutOrStdout())
				} else {
					err = report.WriteText(cmd.OutOrStdout())
				}
				if err != nil {
					return err
				}
				return report.Err()
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			printf(cmd, "printshop-migrate %s\n", config.VERSION)
			return nil
		},
	}
}
