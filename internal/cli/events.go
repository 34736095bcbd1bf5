package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/platform/logging"
	"github.com/Ramsey-B/fern/pkg/kafka"
)

// tailedEvent is one line of events tail output.
type tailedEvent struct {
	Partition int          `json:"partition"`
	Offset    int64        `json:"offset"`
	Key       string       `json:"key"`
	Event     *kafka.Event `json:"event"`
}

var errTailDone = errors.New("tail limit reached")

func newEventsCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect the identity event stream",
	}

	var (
		fromStart bool
		limit     int
	)
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Print identity events as they arrive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(flags.envFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logger, sync, err := logging.New(logging.Config{AppName: cfg.AppName, Level: cfg.LogLevel, PrettyLogs: cfg.PrettyLogs})
			if err != nil {
				return err
			}
			defer func() { _ = sync() }()

			seen := 0
			consumer := kafka.NewConsumer(kafka.ConsumerConfig{
				Brokers:       cfg.KafkaBrokers,
				Topic:         cfg.KafkaOutputTopic,
				ConsumerGroup: cfg.KafkaConsumerGroup,
				FromStart:     fromStart,
			}, logger, func(_ context.Context, msg *kafka.IncomingMessage) error {
				if err := writeJSON(cmd, tailedEvent{Partition: msg.Partition, Offset: msg.Offset, Key: msg.Key, Event: msg.Event}); err != nil {
					return err
				}
				seen++
				if limit > 0 && seen >= limit {
					// the last event stays uncommitted and is delivered again on the next tail
					return errTailDone
				}
				return nil
			})
			if err := consumer.Run(cmd.Context()); err != nil && !errors.Is(err, errTailDone) {
				return err
			}
			return nil
		},
	}
	tail.Flags().BoolVar(&fromStart, "from-start", false, "Read from the oldest retained event")
	tail.Flags().IntVar(&limit, "limit", 0, "Stop after this many events, 0 runs until interrupted")

	cmd.AddCommand(tail)
	return cmd
}
