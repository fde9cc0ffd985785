package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/admetry-labs/admetry/common/events"
	"github.com/admetry-labs/admetry/common/logging"
	"github.com/admetry-labs/admetry/common/messaging"
	natsclient "github.com/admetry-labs/admetry/common/messaging/nats"
)

var quarantineLimit int

var quarantineCmd = &cobra.Command{
	Use:   "quarantine",
	Short: "Inspect and purge quarantined messages",
}

var quarantineListCmd = &cobra.Command{
	Use:   "list <source>",
	Short: "List quarantined messages for a source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source := events.Source(args[0])
		if !source.Valid() {
			return fmt.Errorf("unknown source %q", args[0])
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		js, err := connect()
		if err != nil {
			return err
		}
		defer js.Close()

		msgs, err := js.QuarantinedMessages(ctx, messaging.QuarantineSubject(source), quarantineLimit)
		if err != nil {
			return err
		}

		if len(msgs) == 0 {
			fmt.Println("No quarantined messages")
			return nil
		}

		for i, msg := range msgs {
			fmt.Printf("--- message %d ---\n", i+1)
			fmt.Printf("correlation-id: %s\n", msg.CorrelationID())
			fmt.Printf("origin:         %s\n", msg.Metadata["Origin-Subject"])
			fmt.Printf("attempts:       %s\n", msg.Metadata["Attempts"])
			fmt.Printf("last-error:     %s\n", msg.Metadata["Last-Error"])
			fmt.Printf("body:           %s\n", msg.Data)
		}
		fmt.Printf("%d quarantined message(s)\n", len(msgs))
		return nil
	},
}

var quarantinePurgeCmd = &cobra.Command{
	Use:   "purge <source>",
	Short: "Drop all quarantined messages for a source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source := events.Source(args[0])
		if !source.Valid() {
			return fmt.Errorf("unknown source %q", args[0])
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		js, err := connect()
		if err != nil {
			return err
		}
		defer js.Close()

		purged, err := js.PurgeQuarantine(ctx, messaging.QuarantineSubject(source))
		if err != nil {
			return err
		}

		fmt.Printf("Purged %d message(s)\n", purged)
		return nil
	},
}

func connect() (*natsclient.JetStreamClient, error) {
	logger := logging.New(slog.LevelWarn, "text")
	return natsclient.NewJetStreamClient(natsclient.Config{
		URL:           natsURL,
		Name:          "evctl",
		MaxReconnects: 1,
		ReconnectWait: time.Second,
		Timeout:       5 * time.Second,
	}, logger)
}

func init() {
	quarantineListCmd.Flags().IntVar(&quarantineLimit, "limit", 50, "maximum messages to list")
	quarantineCmd.AddCommand(quarantineListCmd)
	quarantineCmd.AddCommand(quarantinePurgeCmd)
	rootCmd.AddCommand(quarantineCmd)
}
