package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/sgacop30/sga/core/notification"
)

func (cli *commandLine) sendRemindersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sendreminders",
		Short: "Notify users about favorited events starting soon",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := cli.notificationSvc.SendEventReminders(context.Background())
			if err != nil {
				return err
			}
			cli.printf("reminders: %d created, %d skipped, %d pushed", res.Created, res.Skipped, res.Pushed)
			return nil
		},
	}
}

func (cli *commandLine) cleanupNotificationsCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "cleanupnotifications",
		Short: "Delete old and expired notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := cli.notificationSvc.Cleanup(context.Background(), dryRun)
			if err != nil {
				return err
			}
			verb := "deleted"
			if dryRun {
				verb = "would delete"
			}
			cli.printf("%s %d notifications (read: %d, unread: %d, expired: %d)",
				verb, res.Total(), res.ReadOld, res.UnreadOld, res.Expired)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "only count what would be deleted")
	return cmd
}

func (cli *commandLine) addAnnouncementCmd() *cobra.Command {
	var (
		na        notification.NewAnnouncement
		expiresIn time.Duration
	)
	cmd := &cobra.Command{
		Use:   "addannouncement",
		Short: "Publish an announcement",
		RunE: func(cmd *cobra.Command, args []string) error {
			if na.Title == "" || na.Message == "" {
				return usageErr(cmd, args)
			}
			if expiresIn > 0 {
				exp := cli.clock.Now().UTC().Add(expiresIn)
				na.ExpiresAt = &exp
			}
			if err := na.Validate(cli.validate); err != nil {
				return err
			}
			a, err := cli.notificationSvc.CreateAnnouncement(context.Background(), na, nil)
			if err != nil {
				return err
			}
			cli.printf("announcement %d published", a.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&na.Title, "title", "", "the announcement title")
	cmd.Flags().StringVar(&na.Message, "message", "", "the announcement text")
	cmd.Flags().StringVar(&na.Level, "level", notification.LevelInfo, "info|alerta|critico")
	cmd.Flags().BoolVar(&na.Pinned, "pinned", false, "pin it on top")
	cmd.Flags().DurationVar(&expiresIn, "expires-in", 0, "hide it after this long")
	return cmd
}
