package app

import (
	"context"
	"strings"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/afmurillo/checkout-payments/internal/messaging/kafka"
)

// initKafkaProducer создаёт Kafka producer, если задан список брокеров.
// Сервис работает и без Kafka: ошибка подключения не фатальна.
func initKafkaProducer(brokers string, logger *log.Entry) *kafka.Producer {
	if brokers == "" {
		return nil
	}

	brokerList := strings.Split(brokers, ",")
	producer, err := kafka.NewProducer(brokerList)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil
	}

	logger.WithField("brokers", brokerList).Info("kafka producer initialized")
	return producer
}

// initAuditConsumer подписывает consumer group на поток платёжных событий
// для журнала аудита. Сообщения, которые не удалось разобрать, после
// повторов уходят в DLQ через тот же producer.
func initAuditConsumer(cfg Config, dlq *kafka.Producer, logger *log.Entry) *kafka.Consumer {
	auditLogger := logger.WithField("component", "payment-audit")
	consumer, err := kafka.NewConsumerWithDLQ(
		strings.Split(cfg.KafkaBrokers, ","),
		cfg.KafkaConsumerGroup,
		[]string{kafka.TopicPaymentEvents},
		auditEventHandler(auditLogger),
		dlq,
		3,
	)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka consumer, audit log disabled")
		return nil
	}

	auditLogger.WithField("group", cfg.KafkaConsumerGroup).Info("payment audit consumer initialized")
	return consumer
}

// auditEventHandler пишет каждое событие платёжного цикла в журнал аудита.
func auditEventHandler(logger *log.Entry) kafka.MessageHandler {
	return func(_ context.Context, message *sarama.ConsumerMessage) error {
		event, err := kafka.ParsePaymentEvent(message.Value)
		if err != nil {
			return err
		}

		logger.WithFields(log.Fields{
			"event_type":     event.EventType,
			"transaction_id": event.TransactionID,
			"timestamp":      event.Timestamp,
		}).Info("payment event")
		return nil
	}
}

// closeKafka закрывает producer, если он был создан.
func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
		return
	}
	logger.Info("kafka producer closed")
}
