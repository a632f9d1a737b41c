package kafka

import "time"

// Config конфигурация подключения координатора к Kafka
type Config struct {
	// Brokers список брокеров через запятую:
	//   - локальная разработка (go run): localhost:19092
	//   - запуск в Docker: kafka:9092
	// Без envDefault: дефолт зависит от окружения и заполняется до разбора env.
	Brokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	// OrderTopic канал событий заказа (OrderCreated/OrderCancelled)
	OrderTopic string `env:"KAFKA_ORDER_TOPIC" envDefault:"order-events"`
	// PaymentTopic канал результатов оплаты
	PaymentTopic string `env:"KAFKA_PAYMENT_TOPIC" envDefault:"payment-events"`
	// DLQTopic топик для ядовитых сообщений. Пусто: <топик consumer-а>.dlq
	DLQTopic string `env:"KAFKA_DLQ_TOPIC"`
	// ConsumerGroup consumer group. Пусто: значение по умолчанию сервиса
	ConsumerGroup string `env:"KAFKA_CONSUMER_GROUP"`
	// MaxAttempts число попыток обработки за один раунд
	MaxAttempts int `env:"KAFKA_CONSUMER_MAX_ATTEMPTS" envDefault:"3"`
	// BackoffBase база экспоненциального backoff между попытками
	BackoffBase time.Duration `env:"KAFKA_CONSUMER_BACKOFF_BASE" envDefault:"1s"`
}

// DefaultConfig возвращает конфигурацию для локальной разработки
func DefaultConfig() Config {
	return Config{
		Brokers:      []string{"localhost:19092"},
		OrderTopic:   "order-events",
		PaymentTopic: "payment-events",
		MaxAttempts:  3,
		BackoffBase:  time.Second,
	}
}

// DLQTopicFor возвращает DLQ топик для consumer-а указанного топика
func (c Config) DLQTopicFor(topic string) string {
	if c.DLQTopic != "" {
		return c.DLQTopic
	}
	return topic + ".dlq"
}
