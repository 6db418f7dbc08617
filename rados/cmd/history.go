package cmd

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/structs"
	"github.com/sarchlab/rados/datarecording"
	"github.com/sarchlab/rados/tracing"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history FILE",
	Short: "Print the events stored in a recording.",
	Long: "`history` reads a recording made with --record. Tables: " +
		strings.Join(tracing.Tables(), ", ") + ".",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := cmd.Flags().GetString("table")
		if err != nil {
			return err
		}

		filter, err := historyFilter(cmd)
		if err != nil {
			return err
		}

		reader, err := datarecording.NewReader(args[0])
		if err != nil {
			return err
		}
		defer reader.Close()

		return printHistory(cmd, tracing.NewTraceReader(reader), table, filter)
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().String("table", tracing.TableAllocations,
		"Table to print")
	historyCmd.Flags().Int("pid", 0, "Only print the events of this process")
	historyCmd.Flags().Int("limit", 0, "Print at most this many events")
	historyCmd.Flags().Int("offset", 0, "Skip this many events")
	historyCmd.Flags().Bool("newest", false, "Print the newest events first")
}

func historyFilter(cmd *cobra.Command) (tracing.Filter, error) {
	f := tracing.Filter{}

	var err error
	flags := cmd.Flags()

	if f.PID, err = flags.GetInt("pid"); err != nil {
		return f, err
	}

	if f.Limit, err = flags.GetInt("limit"); err != nil {
		return f, err
	}

	if f.Offset, err = flags.GetInt("offset"); err != nil {
		return f, err
	}

	f.Newest, err = flags.GetBool("newest")

	return f, err
}

func printHistory(
	cmd *cobra.Command,
	reader *tracing.TraceReader,
	table string,
	filter tracing.Filter,
) error {
	sample, ok := tracing.Sample(table)
	if !ok {
		return fmt.Errorf("unknown table %q, use one of %s",
			table, strings.Join(tracing.Tables(), ", "))
	}

	events, total, err := reader.Events(cmd.Context(), table, filter)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if err := writeEntries(w, sample, events); err != nil {
		return err
	}

	fmt.Fprintf(w, "%d of %d events\n", len(events), total)

	return nil
}

func writeEntries(w io.Writer, sample any, entries []any) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(structs.Names(sample), "\t"))

	for _, e := range entries {
		values := structs.Values(e)

		cells := make([]string, len(values))
		for i, v := range values {
			cells[i] = fmt.Sprint(v)
		}

		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}

	return tw.Flush()
}
