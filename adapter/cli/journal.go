package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/felixgeelhaar/moosbridge/internal/journal"
	"github.com/felixgeelhaar/moosbridge/pkg/config"
	"github.com/spf13/cobra"
)

var journalLimit int

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Inspect the journal of mail batches and reports",
}

var journalTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print the latest journal entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := getConfig()
		if err != nil {
			return err
		}
		if c.Journal == config.JournalNone {
			return fmt.Errorf("journal disabled: set MOOSBRIDGE_JOURNAL to sqlite or postgres")
		}

		store, err := openJournal(cmd.Context(), c)
		if err != nil {
			return err
		}
		defer store.Close()

		entries, err := store.Latest(cmd.Context(), journalLimit)
		if err != nil {
			return err
		}
		return printEntries(cmd.OutOrStdout(), entries)
	},
}

func printEntries(out io.Writer, entries []journal.Entry) error {
	if len(entries) == 0 {
		fmt.Fprintln(out, "No journal entries")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tRECORDED\tKIND\tAPP\tSUMMARY")
	for _, e := range entries {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			e.ID,
			e.RecordedAt.Local().Format(time.DateTime),
			e.Kind,
			e.App,
			summarize(e),
		)
	}
	return w.Flush()
}

func summarize(e journal.Entry) string {
	switch e.Kind {
	case journal.KindMail:
		mail, err := e.Mail()
		if err != nil {
			return err.Error()
		}
		if len(mail) == 0 {
			return "empty batch"
		}
		summary := ""
		for i, env := range mail {
			if i == 3 {
				summary += fmt.Sprintf(" (+%d more)", len(mail)-i)
				break
			}
			if i > 0 {
				summary += " "
			}
			if env.IsNumeric() {
				summary += fmt.Sprintf("%s=%g", env.Name, env.Numeric)
			} else {
				summary += fmt.Sprintf("%s=%q", env.Name, env.Text)
			}
		}
		return summary
	case journal.KindReport:
		report, err := e.Report()
		if err != nil {
			return err.Error()
		}
		return fmt.Sprintf("iteration %d, uptime %.1fs, %d published",
			report.Iteration, report.Uptime, len(report.Published))
	default:
		return string(e.Payload)
	}
}

func init() {
	journalTailCmd.Flags().IntVarP(&journalLimit, "limit", "n", journal.DefaultLimit, "number of entries to print")
	journalCmd.AddCommand(journalTailCmd)
	rootCmd.AddCommand(journalCmd)
}
