package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/lsm/fnsdk/internal/kafka"
)

// publisher is an interface that allows mocking the Kafka publisher for testing.
type publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
	Close() error
}

// newPublisherFunc creates the Kafka publisher. Tests replace it.
var newPublisherFunc = func(brokers []string) (publisher, error) {
	return kafka.NewPublisher(&kafka.ClusterConfig{Brokers: brokers, ClientID: "fnsdk-cli"})
}

const produceUsage = `Usage: fnsdk produce --topic <name> [--file <path>] [--count <n>] [--rate <duration>] [--brokers <addrs>] [codec flags]

Encodes JSON event lines and produces the wire messages to a Kafka topic, for
feeding a stream-triggered runtime.

Flags:
  --topic     Topic name (required)
  --file      JSON lines file (default: stdin)
  --count     Times to produce each message (default: 1)
  --rate      Delay between produces (e.g. 100ms). Default: none
  --brokers   Kafka broker addresses (default: localhost:9092)
` + codecFlagsHelp + `

Examples:
  fnsdk decode --file captured.bin | fnsdk produce --topic orders
  fnsdk produce --topic orders --batch --keys raw --file events.jsonl`

// RunProduce encodes events and produces them to Kafka.
func RunProduce(args []string, in io.Reader, out io.Writer) error {
	if isHelp(args) {
		_, _ = fmt.Fprintln(out, produceUsage)
		return nil
	}

	topic, err := parseStringFlag(args, "--topic")
	if err != nil {
		return err
	}
	if topic == "" {
		return fmt.Errorf("--topic flag is required")
	}
	count, err := parseIntFlag(args, "--count", 1)
	if err != nil {
		return err
	}
	var rate time.Duration
	if rateStr, _ := parseStringFlag(args, "--rate"); rateStr != "" {
		if rate, err = time.ParseDuration(rateStr); err != nil {
			return fmt.Errorf("invalid rate duration: %w", err)
		}
	}
	brokers := []string{"localhost:9092"}
	if brokersStr, _ := parseStringFlag(args, "--brokers"); brokersStr != "" {
		brokers = strings.Split(brokersStr, ",")
		for i, b := range brokers {
			brokers[i] = strings.TrimSpace(b)
		}
	}

	opts, err := parseCodecFlags(args)
	if err != nil {
		return err
	}
	events, err := readEvents(args, in)
	if err != nil {
		return err
	}
	msgs, err := encodeEvents(opts, events)
	if err != nil {
		return err
	}

	pub, err := newPublisherFunc(brokers)
	if err != nil {
		return fmt.Errorf("create kafka publisher: %w", err)
	}
	defer func() { _ = pub.Close() }()

	ctx := context.Background()
	produced := 0
	for round := 0; round < count; round++ {
		for i, m := range msgs {
			if produced > 0 && rate > 0 {
				time.Sleep(rate)
			}
			if err := pub.Publish(ctx, topic, nil, m, nil); err != nil {
				return fmt.Errorf("publish message %d: %w", i+1, err)
			}
			produced++
		}
	}

	_, _ = fmt.Fprintf(out, "Produced %d message(s) carrying %d event(s) to %s\n", produced, len(events)*count, topic)
	return nil
}
