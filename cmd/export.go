package cmd

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/metal-toolbox/devicesync/internal/export"
	"github.com/metal-toolbox/devicesync/internal/model"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type exportFlags struct {
	servers  string
	all      bool
	coverage bool
	format   string
	output   string
	summary  bool
}

var exportArgs = &exportFlags{}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Collect, enrich and export the devices of one or more management servers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runExport(cmd, exportArgs)
	},
}

func runExport(cmd *cobra.Command, flags *exportFlags) error {
	if !flags.all && strings.TrimSpace(flags.servers) == "" {
		return errors.Wrap(model.ErrValidation, "one of --servers or --all is required")
	}

	ctx, a, err := bootstrap(cmd.Context(), args)
	if err != nil {
		return err
	}
	defer a.shutdown()

	token, err := a.token(ctx)
	if err != nil {
		return err
	}

	c := a.collector()

	// the server listing doubles as the name lookup for assignments
	servers, err := c.Servers(ctx, token)
	if err != nil {
		return err
	}

	lookup := model.NewServerLookup(servers)

	var scopes []string

	if flags.all {
		for _, s := range servers {
			scopes = append(scopes, s.ID)
		}
	} else {
		selection := model.ParseSelection(flags.servers)

		switch selection.Kind {
		case model.SelectionCancelled:
			slog.Info("No servers selected, nothing to export")
			return nil
		case model.SelectionInvalid:
			return selection.Err()
		}

		scopes = selection.IDs
	}

	slog.Info("Collecting devices", "servers", len(scopes))

	refs, err := c.Collect(ctx, token, scopes)
	if err != nil {
		return err
	}

	slog.Info("Enriching devices", "devices", refs.Len(), "coverage", flags.coverage)

	result, err := a.pipeline().Enrich(ctx, token, refs, lookup, flags.coverage)
	if err != nil {
		return err
	}

	out, closeFn, err := openOutput(flags.output)
	if err != nil {
		return err
	}

	if err := export.Write(out, flags.format, result.Records, a.config.Export.ListSeparator); err != nil {
		_ = closeFn()
		return err
	}

	if err := closeFn(); err != nil {
		return errors.Wrap(err, flags.output)
	}

	slog.Info("Export complete", result.AsLogFields()...)

	if flags.summary {
		return export.Summarize(result.Records).WriteText(os.Stderr)
	}

	return nil
}

// openOutput returns the file at path, or stdout when path is empty or "-".
func openOutput(path string) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return os.Stdout, func() error { return nil }, nil
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "open output")
	}

	return f, f.Close, nil
}

func init() {
	flags := exportCmd.Flags()
	flags.StringVar(&exportArgs.servers, "servers", "", "management server ids to export, comma separated")
	flags.BoolVar(&exportArgs.all, "all", false, "export the devices of every management server")
	flags.BoolVar(&exportArgs.coverage, "coverage", false, "include AppleCare coverage entries")
	flags.StringVar(&exportArgs.format, "format", export.FormatJSON, "output format - json, yaml, csv")
	flags.StringVarP(&exportArgs.output, "output", "o", "", "output file, stdout when empty")
	flags.BoolVar(&exportArgs.summary, "summary", false, "print device counts per family, model, status and server")

	exportCmd.MarkFlagsMutuallyExclusive("servers", "all")

	rootCmd.AddCommand(exportCmd)
}
