package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/lazypower/memoria/internal/classify"
	"github.com/lazypower/memoria/internal/store"
	"github.com/lazypower/memoria/internal/summary"
	"github.com/spf13/cobra"
)

var (
	noteUser   string
	noteLabels string
	noteAt     string

	sumUser string
	sumDate string
	sumLang string
)

var noteCmd = &cobra.Command{
	Use:   "note <text>",
	Short: "Log a text entry, labelled automatically unless --labels is given",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runNote,
}

var summarizeCmd = &cobra.Command{
	Use:   "summarize",
	Short: "Generate daily summaries",
	Long: "Generates the summary of --date (YYYY-MM-DD, default yesterday) for --user, " +
		"or for every user with activity that day when --user is omitted.",
	RunE: runSummarize,
}

func init() {
	noteCmd.Flags().StringVar(&noteUser, "user", "", "owner user id")
	noteCmd.Flags().StringVar(&noteLabels, "labels", "", "comma-separated labels")
	noteCmd.Flags().StringVar(&noteAt, "at", "", "entry time (RFC3339, default now)")

	summarizeCmd.Flags().StringVar(&sumUser, "user", "", "user id (default: all active users)")
	summarizeCmd.Flags().StringVar(&sumDate, "date", "", "day to summarize, YYYY-MM-DD")
	summarizeCmd.Flags().StringVar(&sumLang, "lang", "", "summary language (ar, en; default from config)")

	rootCmd.AddCommand(noteCmd, summarizeCmd)
}

func runNote(cmd *cobra.Command, args []string) error {
	if noteUser == "" {
		return fmt.Errorf("--user is required")
	}
	e := store.Entry{
		UserID:     noteUser,
		Type:       store.EntryText,
		Transcript: strings.TrimSpace(strings.Join(args, " ")),
		Labels:     store.CleanLabels(strings.Split(noteLabels, ",")),
	}
	if noteAt != "" {
		t, err := time.Parse(time.RFC3339, noteAt)
		if err != nil {
			return fmt.Errorf("invalid --at: %w", err)
		}
		e.Timestamp = t
	}
	if len(e.Labels) == 0 && e.Transcript != "" {
		e.Labels, e.Metadata = classify.Annotate(e.Transcript, nil)
	}

	return withDB(func(db *store.DB) error {
		created, err := db.CreateEntry(cmd.Context(), e)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Logged %s [%s]\n", created.ID, strings.Join(created.Labels, ", "))
		return nil
	})
}

func runSummarize(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	lang := sumLang
	if lang == "" {
		lang = cfg.Summary.Language
	}
	if lang != "ar" && lang != "en" {
		return fmt.Errorf("unknown --lang %q (supported: ar, en)", lang)
	}

	return withConfigDB(cfg, func(db *store.DB) error {
		gen := summary.New(db, summary.WithLanguage(lang))

		day := time.Now().AddDate(0, 0, -1)
		if sumDate != "" {
			if day, err = gen.ParseDate(sumDate); err != nil {
				return err
			}
		}

		out := cmd.OutOrStdout()
		if sumUser == "" {
			n, err := gen.RunDay(cmd.Context(), day)
			fmt.Fprintf(out, "Generated %d summaries for %s\n", n, day.Format(summary.DateLayout))
			return err
		}
		s, err := gen.ForUser(cmd.Context(), sumUser, day)
		if err != nil {
			return err
		}
		printSummary(out, s)
		return nil
	})
}

func printSummary(w io.Writer, s store.DailySummary) {
	fmt.Fprintf(w, "%s  %s\n\n%s\n", s.UserID, s.Date, s.Summary)
	if len(s.KeyEvents) > 0 {
		fmt.Fprintln(w)
		for _, ev := range s.KeyEvents {
			fmt.Fprintf(w, "  %s  [%s] %s\n", ev.Time, ev.Label, ev.Description)
		}
	}
	if len(s.Recommendations) > 0 {
		fmt.Fprintln(w)
		for _, r := range s.Recommendations {
			fmt.Fprintf(w, "  - %s\n", r)
		}
	}
}
