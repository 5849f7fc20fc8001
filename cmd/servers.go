package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var serversFormat string

var serversCmd = &cobra.Command{
	Use:   "servers",
	Short: "List the device management servers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, a, err := bootstrap(cmd.Context(), args)
		if err != nil {
			return err
		}
		defer a.shutdown()

		token, err := a.token(ctx)
		if err != nil {
			return err
		}

		servers, err := a.collector().Servers(ctx, token)
		if err != nil {
			return err
		}

		switch serversFormat {
		case "json":
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")

			return enc.Encode(servers)
		case "text":
			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME")

			for _, s := range servers {
				fmt.Fprintf(tw, "%s\t%s\n", s.ID, s.Name)
			}

			return tw.Flush()
		default:
			return errors.Errorf("unsupported format %q", serversFormat)
		}
	},
}

func init() {
	serversCmd.Flags().StringVar(&serversFormat, "format", "text", "output format - text, json")

	rootCmd.AddCommand(serversCmd)
}
