package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"faims3/conductor/pkg/cli"
	"faims3/conductor/pkg/notebook"
	"faims3/conductor/pkg/notebook/export"
	"faims3/conductor/pkg/telemetry/logging"
)

var exportFlags struct {
	notebookID string
	view       string
	outputPath string
	output     string
	progress   bool
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the records of a notebook form",
	Long: `Export the records of one notebook form as CSV, their attachments as a
ZIP archive, or their location and map fields as GeoJSON or KML. The full
archive holds the attachments, both spatial files and an RO-Crate metadata
file. Output goes to a file (default "<notebook>-<view>.<format>", or
"<notebook>-<view>-full.zip") or to stdout with -o -.

Examples:
  # Export the Survey form of notebook p1 as CSV
  conductor export csv --notebook p1 --view Survey

  # Stream the attachments to stdout
  conductor export zip --notebook p1 --view Survey -o - > survey.zip

  # Export survey locations for a GIS
  conductor export geojson --notebook p1 --view Survey

  # Archive everything about the Survey form
  conductor export full --notebook p1 --view Survey`,
}

var exportCSVCmd = &cobra.Command{
	Use:   "csv",
	Short: "Export a form as CSV",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExport(cmd.Context(), "csv")
	},
}

var exportZipCmd = &cobra.Command{
	Use:   "zip",
	Short: "Export the attachments of a form as ZIP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExport(cmd.Context(), "zip")
	},
}

var exportGeoJSONCmd = &cobra.Command{
	Use:   "geojson",
	Short: "Export the geometries of a form as GeoJSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExport(cmd.Context(), "geojson")
	},
}

var exportKMLCmd = &cobra.Command{
	Use:   "kml",
	Short: "Export the geometries of a form as KML",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExport(cmd.Context(), "kml")
	},
}

var exportFullCmd = &cobra.Command{
	Use:   "full",
	Short: "Export attachments, geometries and metadata of a form as ZIP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExport(cmd.Context(), "full")
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.AddCommand(exportCSVCmd, exportZipCmd, exportGeoJSONCmd, exportKMLCmd, exportFullCmd)

	flags := exportCmd.PersistentFlags()
	flags.StringVarP(&exportFlags.notebookID, "notebook", "n", "", "notebook (project) id")
	flags.StringVar(&exportFlags.view, "view", "", "form (viewset) to export")
	flags.StringVarP(&exportFlags.outputPath, "out", "o", "", `output file, "-" for stdout`)
	flags.StringVar(&exportFlags.output, "output", "text", "summary format (text, json)")
	flags.BoolVar(&exportFlags.progress, "progress", false, "report records read on stderr")
	exportCmd.MarkPersistentFlagRequired("notebook")
	exportCmd.MarkPersistentFlagRequired("view")
}

func runExport(ctx context.Context, format string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := cli.SetupSignalHandler(ctx)
	defer stop()

	env, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	id, view := exportFlags.notebookID, exportFlags.view
	ctx = logging.WithForm(logging.WithNotebook(ctx, id), view)

	it, err := env.repo.Records(ctx, id, view)
	if err != nil {
		return cli.NewCommandError("export", err)
	}

	path := exportFlags.outputPath
	switch {
	case path != "":
	case format == "full":
		path = fmt.Sprintf("%s-%s-full.zip", id, view)
	default:
		path = fmt.Sprintf("%s-%s.%s", id, view, format)
	}
	out, err := createOutput(path)
	if err != nil {
		return err
	}

	var records notebook.RecordIterator = it
	if exportFlags.progress {
		progress := cli.NewProgressReporter(os.Stderr, "records")
		progress.Start(0)
		records = &progressIterator{RecordIterator: it, progress: progress}
		defer progress.Finish()
	}

	opts := []export.ExportOption{
		export.WithNotebookID(id),
		export.WithForm(view),
		export.WithHRIDField(it.HRIDField()),
	}

	var stats export.ExportStats
	switch format {
	case "csv":
		stats, err = export.NewCSVExporter(env.cfg.Export, env.metrics).Export(ctx, it.Spec(), view, records, out, opts...)
	case "zip":
		stats, err = export.NewZipExporter(env.cfg.Export, env.metrics).Export(ctx, records, out, opts...)
	case "full":
		opts = append(opts, export.WithFullArchive(it.Spec()))
		stats, err = export.NewZipExporter(env.cfg.Export, env.metrics).Export(ctx, records, out, opts...)
	case "geojson", "kml":
		stats, err = export.NewSpatialExporter(env.metrics).Export(ctx, it.Spec(), view, records, out, export.SpatialFormat(format), opts...)
	}
	if err != nil {
		out.Discard()
		return cli.NewCommandError("export", err)
	}
	if format == "zip" && stats.Entries == 0 {
		// Nothing was archived; leave no empty file behind.
		out.Discard()
		fmt.Fprintf(os.Stderr, "No attachments to export for %s/%s\n", id, view)
		return nil
	}
	if err := out.Commit(); err != nil {
		return cli.NewCommandError("export", err)
	}

	return printResult(exportFlags.output, stats)
}

// progressIterator reports every record it yields.
type progressIterator struct {
	notebook.RecordIterator
	progress cli.ProgressReporter
	n        int64
}

func (p *progressIterator) Next(ctx context.Context) (*notebook.Record, bool, error) {
	rec, done, err := p.RecordIterator.Next(ctx)
	switch {
	case err != nil:
		p.progress.Error(err)
	case !done:
		p.n++
		p.progress.Update(p.n)
	}
	return rec, done, err
}
