package main

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/sgacop30/sga/core/agenda"
)

var eventTimeLayouts = []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02 15:04"}

// parseEventTime reads a timestamp; values without an offset are taken as UTC.
func parseEventTime(value string) (time.Time, error) {
	for _, layout := range eventTimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errors.Errorf("invalid time %q (want YYYY-MM-DD HH:MM or RFC3339)", value)
}

func (cli *commandLine) addEventCmd() *cobra.Command {
	var (
		ne         agenda.NewEvent
		start, end string
		lat, lng   float64
	)
	cmd := &cobra.Command{
		Use:   "addevent",
		Short: "Add an event to the agenda",
		RunE: func(cmd *cobra.Command, args []string) error {
			if ne.Title == "" || ne.Location == "" || start == "" || end == "" {
				return usageErr(cmd, args)
			}
			var err error
			if ne.StartTime, err = parseEventTime(start); err != nil {
				return err
			}
			if ne.EndTime, err = parseEventTime(end); err != nil {
				return err
			}
			if cmd.Flags().Changed("lat") && cmd.Flags().Changed("lng") {
				ne.Latitude, ne.Longitude = &lat, &lng
			}
			if err := ne.Validate(cli.validate); err != nil {
				return err
			}

			evt, err := cli.agendaSvc.CreateEvent(context.Background(), ne, nil)
			if err != nil {
				return err
			}
			cli.printf("event %d created: %s", evt.ID, evt.Title)
			return nil
		},
	}
	cmd.Flags().StringVar(&ne.Title, "title", "", "the event title")
	cmd.Flags().StringVar(&ne.Location, "location", "", "where it happens")
	cmd.Flags().StringVar(&start, "start", "", "start time (YYYY-MM-DD HH:MM, UTC)")
	cmd.Flags().StringVar(&end, "end", "", "end time (YYYY-MM-DD HH:MM, UTC)")
	cmd.Flags().StringVar(&ne.Speaker, "speaker", "", "who speaks")
	cmd.Flags().StringVar(&ne.Description, "description", "", "a longer description")
	cmd.Flags().StringVar(&ne.Tags, "tags", agenda.DefaultTags, "comma separated tags")
	cmd.Flags().BoolVar(&ne.Important, "important", false, "flag the event as important")
	cmd.Flags().Float64Var(&lat, "lat", 0, "latitude")
	cmd.Flags().Float64Var(&lng, "lng", 0, "longitude")
	return cmd
}
