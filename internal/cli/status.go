package cli

import (
	"fmt"

	"github.com/lazypower/memoria/internal/client"
	"github.com/spf13/cobra"
)

var statusUser string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the server is running and a user's trigger stats",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusUser, "user", "", "user id for stats and unread notifications")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	c := client.New(cfg.ListenAddr(), statusUser)
	if !c.Healthy(cmd.Context()) {
		fmt.Fprintf(out, "server: not running (%s)\n", cfg.ListenAddr())
		return nil
	}
	fmt.Fprintf(out, "server: running (%s)\n", cfg.ListenAddr())

	if statusUser == "" {
		return nil
	}
	stats, err := c.Stats(cmd.Context())
	if err != nil {
		return err
	}
	unread, err := c.Notifications(cmd.Context(), true, 100)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "active reminders: %d\n", stats.ActiveReminders)
	fmt.Fprintf(out, "triggered today:  %d\n", stats.TriggeredToday)
	fmt.Fprintf(out, "unread:           %d\n", len(unread))
	return nil
}
