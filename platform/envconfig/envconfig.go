// Package envconfig общие помощники для конфигов координаторов.
// Сами переменные окружения разбираются caarlos0/env по struct-тегам.
package envconfig

import (
	"fmt"
	"net/url"
	"os"
)

// Env окружение приложения
type Env string

const (
	// EnvLocal запуск на хосте (go run)
	EnvLocal Env = "local"
	// EnvDocker запуск в контейнерах
	EnvDocker Env = "docker"
)

// AppEnv читает APP_ENV (default local)
func AppEnv() (Env, error) {
	v := Env(os.Getenv("APP_ENV"))
	if v == "" {
		return EnvLocal, nil
	}
	if v != EnvLocal && v != EnvDocker {
		return "", fmt.Errorf("invalid APP_ENV: %s (must be 'local' or 'docker')", v)
	}
	return v, nil
}

// ByEnv выбирает дефолт по окружению
func ByEnv(env Env, local, docker string) string {
	if env == EnvDocker {
		return docker
	}
	return local
}

// MaskDSN скрывает пароль в DSN для логов
func MaskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	if _, ok := u.User.Password(); !ok {
		return dsn
	}
	// url.String экранирует "*", собираем строку сами
	return fmt.Sprintf("%s://%s:***@%s%s%s", u.Scheme, u.User.Username(), u.Host, u.Path, query(u))
}

func query(u *url.URL) string {
	if u.RawQuery == "" {
		return ""
	}
	return "?" + u.RawQuery
}
