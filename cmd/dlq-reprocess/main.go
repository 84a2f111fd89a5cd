package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/afmurillo/checkout-payments/internal/messaging/kafka"
)

const (
	defaultReplayLimit = 100
	defaultIdleTimeout = 2 * time.Second
)

type config struct {
	brokers     []string
	sourceTopic string
	targetTopic string
	limit       int
	execute     bool
	idleTimeout time.Duration
}

// replayCandidate — одно DLQ-сообщение, пригодное к повторной публикации.
type replayCandidate struct {
	key     []byte
	value   []byte
	topic   string
	headers []*sarama.RecordHeader
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	cfg, err := readConfig()
	if err != nil {
		fail("%v", err)
	}

	if err := run(context.Background(), cfg); err != nil {
		fail("dlq replay failed: %v", err)
	}
}

func readConfig() (config, error) {
	var (
		brokersRaw string
		cfg        config
	)

	flag.StringVar(&brokersRaw, "brokers", "", "Kafka brokers as comma-separated list (fallback: CHECKOUT_KAFKA_BROKERS)")
	flag.StringVar(&cfg.sourceTopic, "source-topic", kafka.TopicDeadLetterQueue, "DLQ source topic")
	flag.StringVar(&cfg.targetTopic, "target-topic", "", "override target topic; default is each message's original topic")
	flag.IntVar(&cfg.limit, "limit", defaultReplayLimit, "max number of messages to scan/replay")
	flag.BoolVar(&cfg.execute, "execute", false, "execute replay; default is dry-run")
	flag.DurationVar(&cfg.idleTimeout, "idle-timeout", defaultIdleTimeout, "idle timeout per partition")
	flag.Parse()

	if strings.TrimSpace(brokersRaw) == "" {
		brokersRaw = os.Getenv("CHECKOUT_KAFKA_BROKERS")
	}
	cfg.brokers = parseBrokers(brokersRaw)
	if len(cfg.brokers) == 0 {
		return config{}, fmt.Errorf("kafka brokers are required (-brokers or CHECKOUT_KAFKA_BROKERS)")
	}
	if strings.TrimSpace(cfg.sourceTopic) == "" {
		return config{}, fmt.Errorf("source-topic is required")
	}
	if cfg.limit <= 0 {
		return config{}, fmt.Errorf("limit must be > 0")
	}
	if cfg.idleTimeout <= 0 {
		return config{}, fmt.Errorf("idle-timeout must be > 0")
	}

	return cfg, nil
}

func parseBrokers(raw string) []string {
	chunks := strings.Split(raw, ",")
	brokers := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		broker := strings.TrimSpace(chunk)
		if broker == "" {
			continue
		}
		brokers = append(brokers, broker)
	}
	return brokers
}

func run(ctx context.Context, cfg config) error {
	logger := log.WithField("component", "dlq-reprocess")
	logger.WithFields(log.Fields{
		"source_topic": cfg.sourceTopic,
		"limit":        cfg.limit,
		"execute":      cfg.execute,
	}).Info("starting DLQ scan")

	consumerConfig := sarama.NewConfig()
	consumerConfig.Consumer.Return.Errors = true

	consumer, err := sarama.NewConsumer(cfg.brokers, consumerConfig)
	if err != nil {
		return fmt.Errorf("create kafka consumer: %w", err)
	}
	defer consumer.Close()

	candidates, err := collectCandidates(ctx, consumer, cfg)
	if err != nil {
		return err
	}
	logger.WithField("messages", len(candidates)).Info("DLQ scan complete")

	if !cfg.execute {
		for _, c := range candidates {
			logger.WithFields(log.Fields{
				"key":          string(c.key),
				"target_topic": c.topic,
			}).Info("dry-run: would replay")
		}
		logger.Info("dry-run finished, pass -execute to replay")
		return nil
	}

	producer, err := kafka.NewProducer(cfg.brokers)
	if err != nil {
		return fmt.Errorf("create kafka producer: %w", err)
	}
	defer producer.Close()

	replayed := 0
	for _, c := range candidates {
		headers := make([]sarama.RecordHeader, 0, len(c.headers))
		for _, h := range c.headers {
			// При replay сбрасываем retry-историю DLQ.
			name := string(h.Key)
			if name == kafka.HeaderRetryCount || name == kafka.HeaderOriginalTopic ||
				name == kafka.HeaderErrorMessage || name == kafka.HeaderFailedAt {
				continue
			}
			headers = append(headers, *h)
		}
		if err := producer.PublishRaw(c.topic, string(c.key), c.value, headers); err != nil {
			return fmt.Errorf("replay message to %s: %w", c.topic, err)
		}
		replayed++
	}

	logger.WithField("replayed", replayed).Info("DLQ replay complete")
	return nil
}

// collectCandidates вычитывает до limit сообщений из всех партиций DLQ-топика.
func collectCandidates(ctx context.Context, consumer sarama.Consumer, cfg config) ([]replayCandidate, error) {
	partitions, err := consumer.Partitions(cfg.sourceTopic)
	if err != nil {
		return nil, fmt.Errorf("list partitions for %s: %w", cfg.sourceTopic, err)
	}

	candidates := make([]replayCandidate, 0, cfg.limit)
	for _, partition := range partitions {
		if len(candidates) >= cfg.limit {
			break
		}

		pc, err := consumer.ConsumePartition(cfg.sourceTopic, partition, sarama.OffsetOldest)
		if err != nil {
			return nil, fmt.Errorf("consume partition %d: %w", partition, err)
		}

		collected, err := drainPartition(ctx, pc, cfg, cfg.limit-len(candidates))
		closeErr := pc.Close()
		if err != nil {
			return nil, err
		}
		if closeErr != nil {
			return nil, fmt.Errorf("close partition consumer %d: %w", partition, closeErr)
		}
		candidates = append(candidates, collected...)
	}

	return candidates, nil
}

func drainPartition(ctx context.Context, pc sarama.PartitionConsumer, cfg config, limit int) ([]replayCandidate, error) {
	candidates := make([]replayCandidate, 0, limit)
	idle := time.NewTimer(cfg.idleTimeout)
	defer idle.Stop()

	for len(candidates) < limit {
		select {
		case <-ctx.Done():
			return candidates, ctx.Err()
		case <-idle.C:
			return candidates, nil
		case err := <-pc.Errors():
			return nil, fmt.Errorf("partition consumer error: %w", err)
		case msg, ok := <-pc.Messages():
			if !ok {
				return candidates, nil
			}
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(cfg.idleTimeout)

			target := cfg.targetTopic
			if target == "" {
				target = kafka.OriginalTopic(msg.Headers)
			}
			if target == "" {
				log.WithField("key", string(msg.Key)).Warn("skipping DLQ message without original topic")
				continue
			}
			candidates = append(candidates, replayCandidate{
				key:     msg.Key,
				value:   msg.Value,
				topic:   target,
				headers: msg.Headers,
			})
		}
	}

	return candidates, nil
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
