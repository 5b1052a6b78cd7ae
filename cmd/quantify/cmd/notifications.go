package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MuhibNayem/quantify-go/notify"
	"github.com/MuhibNayem/quantify-go/pkg/bus"
)

var notificationsCmd = &cobra.Command{
	Use:   "notifications",
	Short: "List or watch notifications",
}

var notificationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Fetch and print the newest notifications",
	RunE:  runNotificationsList,
}

var notificationsWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream live notifications until interrupted",
	Long: `Open the live notification channel and print every event as it arrives.
The channel reconnects automatically when the connection drops. Stop with
Ctrl+C.`,
	RunE: runNotificationsWatch,
}

func init() {
	notificationsCmd.AddCommand(notificationsListCmd)
	notificationsCmd.AddCommand(notificationsWatchCmd)
	rootCmd.AddCommand(notificationsCmd)
}

func newChannel(a *app) *notify.Channel {
	opts := []notify.Option{
		notify.WithLogger(a.logger),
		notify.WithBackoff(a.cfg.ReconnectDelay()),
	}
	if a.cfg.Notifications.SocketURL != "" {
		opts = append(opts, notify.WithSocketURL(a.cfg.Notifications.SocketURL))
	}
	return notify.NewChannel(a.client, bus.New(), opts...)
}

func runNotificationsList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	if !a.sessions.Current().IsAuthenticated {
		return fmt.Errorf("not logged in (run: quantify login)")
	}

	ch := newChannel(a)
	ch.Start()
	defer ch.Close()

	ch.Refresh(cmd.Context())
	feed := ch.Feed()
	if feed.Error != "" {
		return fmt.Errorf("fetch notifications: %s", feed.Error)
	}

	fmt.Printf("%d unread\n", feed.UnreadCount)
	for _, n := range feed.Items {
		printNotification(n)
	}
	return nil
}

func runNotificationsWatch(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	if !a.sessions.Current().IsAuthenticated {
		return fmt.Errorf("not logged in (run: quantify login)")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ch := newChannel(a)
	seen := make(map[uint]bool)
	unsubscribe := ch.Subscribe(func(s notify.FeedState) {
		for i := len(s.Items) - 1; i >= 0; i-- {
			n := s.Items[i]
			if !seen[n.ID] {
				seen[n.ID] = true
				printNotification(n)
			}
		}
	})
	defer unsubscribe()

	ch.Start()
	defer ch.Close()

	fmt.Fprintln(os.Stderr, "watching notifications, Ctrl+C to stop")
	<-ctx.Done()
	return nil
}

func printNotification(n notify.Notification) {
	marker := " "
	if !n.IsRead {
		marker = "*"
	}
	fmt.Printf("%s [%d] %s  %s  %s\n", marker, n.ID, n.TriggeredAt.Format("2006-01-02 15:04"), n.Type, n.Title)
}
