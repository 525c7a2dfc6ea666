package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/lazypower/memoria/internal/client"
	"github.com/lazypower/memoria/internal/config"
	"github.com/lazypower/memoria/internal/reminder"
	"github.com/lazypower/memoria/internal/store"
	"github.com/spf13/cobra"
)

var (
	remUser   string
	remTitle  string
	remDesc   string
	remLabel  string
	remTime   string
	remFreq   string
	remDays   string
	remMethod string
	remLang   string
	remWhen   string
)

var remindersCmd = &cobra.Command{
	Use:     "reminders",
	Aliases: []string{"rem"},
	Short:   "Manage reminders in the local database",
}

var remListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a user's reminders with their next trigger",
	RunE:  runRemList,
}

var remAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a reminder",
	RunE:  runRemAdd,
}

var remDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a reminder",
	Args:  cobra.ExactArgs(1),
	RunE:  runRemDelete,
}

var remToggleCmd = &cobra.Command{
	Use:   "toggle <id>",
	Short: "Activate or deactivate a reminder",
	Args:  cobra.ExactArgs(1),
	RunE:  runRemToggle,
}

var remDueCmd = &cobra.Command{
	Use:   "due",
	Short: "Show which active reminders would fire at a given time",
	Long: "Evaluates every active reminder at --at (RFC3339, default now) without " +
		"firing anything. Useful for checking schedules.",
	RunE: runRemDue,
}

func init() {
	remindersCmd.PersistentFlags().StringVar(&remUser, "user", "", "owner user id")

	remAddCmd.Flags().StringVar(&remTitle, "title", "", "reminder title")
	remAddCmd.Flags().StringVar(&remDesc, "desc", "", "longer description")
	remAddCmd.Flags().StringVar(&remLabel, "label", "", "label, e.g. medication or emergency")
	remAddCmd.Flags().StringVar(&remTime, "time", "", "time of day, HH:MM")
	remAddCmd.Flags().StringVar(&remFreq, "freq", "daily", "once, daily, weekly or monthly")
	remAddCmd.Flags().StringVar(&remDays, "days", "", "weekly days, comma-separated 0-6 (0 = Sunday)")
	remAddCmd.Flags().StringVar(&remMethod, "method", reminder.MethodBoth, "sound, text or both")
	remListCmd.Flags().StringVar(&remLang, "lang", "en", "language for descriptions (en, ar)")
	remDueCmd.Flags().StringVar(&remWhen, "at", "", "evaluation time (RFC3339)")

	remindersCmd.AddCommand(remListCmd, remAddCmd, remDeleteCmd, remToggleCmd, remDueCmd)
}

func requireUser() error {
	if remUser == "" {
		return fmt.Errorf("--user is required")
	}
	return nil
}

func withDB(fn func(db *store.DB) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return withConfigDB(cfg, fn)
}

func withConfigDB(cfg *config.Config, fn func(db *store.DB) error) error {
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db)
}

// liveClient returns a client for the configured server if one is answering.
// Writes go through it so the running engine sees them immediately.
func liveClient(ctx context.Context, cfg *config.Config) *client.Client {
	c := client.New(cfg.ListenAddr(), remUser)
	if !c.Healthy(ctx) {
		return nil
	}
	return c
}

// writeReminder sends a change through the running server when there is
// one, and straight to the database otherwise.
func writeReminder(cmd *cobra.Command, viaAPI func(*client.Client) error, viaDB func(*store.DB) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if c := liveClient(cmd.Context(), cfg); c != nil {
		return viaAPI(c)
	}
	if err := withConfigDB(cfg, viaDB); err != nil {
		return err
	}
	fmt.Fprintln(cmd.ErrOrStderr(), "(server not running; change applies when it starts)")
	return nil
}

func runRemList(cmd *cobra.Command, args []string) error {
	if err := requireUser(); err != nil {
		return err
	}
	return withDB(func(db *store.DB) error {
		defs, err := db.ListReminders(cmd.Context(), remUser)
		if err != nil {
			return err
		}
		if len(defs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No reminders.")
			return nil
		}
		return printReminders(cmd.OutOrStdout(), defs, time.Now(), remLang)
	})
}

func printReminders(w io.Writer, defs []reminder.Definition, now time.Time, lang string) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tREMINDER\tACTIVE\tNEXT")
	for _, def := range defs {
		next := "-"
		if def.IsActive {
			t, err := reminder.NextTrigger(def, now)
			if err != nil {
				next = "error: " + err.Error()
			} else if t != nil {
				next = t.Format("Mon 2006-01-02 15:04")
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", def.ID, reminder.Format(def, lang), def.IsActive, next)
	}
	return tw.Flush()
}

func runRemAdd(cmd *cobra.Command, args []string) error {
	if err := requireUser(); err != nil {
		return err
	}
	days, err := parseDays(remDays)
	if err != nil {
		return err
	}

	def := reminder.Definition{
		UserID:             remUser,
		Title:              remTitle,
		Description:        remDesc,
		Label:              remLabel,
		ScheduleTime:       remTime,
		Frequency:          reminder.Frequency(strings.ToLower(remFreq)),
		DaysOfWeek:         days,
		NotificationMethod: remMethod,
		IsActive:           true,
	}

	report := func(created reminder.Definition) {
		fmt.Fprintf(cmd.OutOrStdout(), "Created %s: %s\n", created.ID, reminder.Format(created, "en"))
	}
	return writeReminder(cmd,
		func(c *client.Client) error {
			created, err := c.CreateReminder(cmd.Context(), def)
			if err != nil {
				return err
			}
			report(created)
			return nil
		},
		func(db *store.DB) error {
			created, err := db.CreateReminder(cmd.Context(), def)
			if err != nil {
				return err
			}
			report(created)
			return nil
		})
}

func parseDays(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var days []int
	for _, part := range strings.Split(s, ",") {
		d, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid day %q: %w", part, err)
		}
		days = append(days, d)
	}
	return days, nil
}

func runRemDelete(cmd *cobra.Command, args []string) error {
	if err := requireUser(); err != nil {
		return err
	}
	id := args[0]
	err := writeReminder(cmd,
		func(c *client.Client) error { return c.DeleteReminder(cmd.Context(), id) },
		func(db *store.DB) error { return db.DeleteReminder(cmd.Context(), id, remUser) })
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", id)
	return nil
}

func runRemToggle(cmd *cobra.Command, args []string) error {
	if err := requireUser(); err != nil {
		return err
	}
	var def reminder.Definition
	err := writeReminder(cmd,
		func(c *client.Client) error {
			var err error
			def, err = c.ToggleReminder(cmd.Context(), args[0])
			return err
		},
		func(db *store.DB) error {
			got, err := db.ToggleReminder(cmd.Context(), args[0], remUser)
			if err != nil {
				return err
			}
			def = *got
			return nil
		})
	if err != nil {
		return err
	}

	state := "inactive"
	if def.IsActive {
		state = "active"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", def.ID, state)
	return nil
}

func runRemDue(cmd *cobra.Command, args []string) error {
	now := time.Now()
	if remWhen != "" {
		t, err := time.Parse(time.RFC3339, remWhen)
		if err != nil {
			return fmt.Errorf("parse --at: %w", err)
		}
		now = t
	}

	return withDB(func(db *store.DB) error {
		defs, err := db.ListActiveReminders(cmd.Context())
		if err != nil {
			return err
		}
		due := dueAt(defs, now, remUser)
		if len(due) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "Nothing due at %s\n", now.Format(time.RFC3339))
			return nil
		}
		for _, def := range due {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", def.ID, def.UserID, reminder.Format(def, "en"))
		}
		return nil
	})
}

// dueAt returns the reminders eligible at now, optionally limited to userID.
// Reminders that fail to evaluate are skipped.
func dueAt(defs []reminder.Definition, now time.Time, userID string) []reminder.Definition {
	var out []reminder.Definition
	for _, def := range defs {
		if userID != "" && def.UserID != userID {
			continue
		}
		ok, err := reminder.ShouldTrigger(def, now)
		if err != nil || !ok {
			continue
		}
		out = append(out, def)
	}
	return out
}
