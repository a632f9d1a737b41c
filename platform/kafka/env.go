package kafka

import (
	"github.com/caarlos0/env/v10"
)

// LoadEnv дополняет конфигурацию значениями из переменных окружения (caarlos0/env).
// Поля без envDefault сохраняют заранее заполненные значения, если переменная не задана.
func LoadEnv(cfg *Config) error {
	return env.Parse(cfg)
}
