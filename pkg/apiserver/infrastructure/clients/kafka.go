package clients

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"k8s.io/klog/v2"

	"calcbridge/pkg/apiserver/config"
)

var (
	kafkaMu     sync.Mutex
	kafkaDialer *kafka.Dialer
)

// EnsureKafka validates the Kafka brokers connectivity and returns the shared dialer.
// The health check asks one reachable broker for the cluster controller.
func EnsureKafka(cfg config.KafkaConfig) (*kafka.Dialer, error) {
	kafkaMu.Lock()
	defer kafkaMu.Unlock()
	if kafkaDialer != nil {
		return kafkaDialer, nil
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers cannot be empty")
	}

	dialer := &kafka.Dialer{
		ClientID:  cfg.ClientID,
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := CheckKafkaHealth(ctx, dialer, cfg.Brokers); err != nil {
		return nil, err
	}
	kafkaDialer = dialer
	return dialer, nil
}

// CheckKafkaHealth performs a health check on the Kafka cluster
// by attempting to fetch cluster metadata.
func CheckKafkaHealth(ctx context.Context, dialer *kafka.Dialer, brokers []string) error {
	if len(brokers) == 0 {
		return fmt.Errorf("no brokers configured")
	}
	var lastErr error
	for _, broker := range brokers {
		conn, err := dialer.DialContext(ctx, "tcp", broker)
		if err != nil {
			lastErr = err
			klog.V(4).Infof("failed to connect to kafka broker %s: %v", broker, err)
			continue
		}
		_, err = conn.Controller()
		_ = conn.Close()
		if err != nil {
			lastErr = err
			continue
		}
		klog.V(2).Infof("kafka reachable through broker: %s", broker)
		return nil
	}
	return fmt.Errorf("unable to connect to any kafka broker: %w", lastErr)
}

// GetKafkaDialer returns the initialized Kafka dialer or nil if not initialized.
func GetKafkaDialer() *kafka.Dialer {
	kafkaMu.Lock()
	defer kafkaMu.Unlock()
	return kafkaDialer
}
