package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar — переменная с путём к YAML-файлу.
const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultConfigPaths — где искать файл, если CONFIG_PATH не задан.
var DefaultConfigPaths = []string{
	"./deviart.yaml",
	"./config/deviart.yaml",
}

// envMappings — переменные окружения и соответствующие ключи koanf.
var envMappings = map[string]string{
	"db_url":              "database.url",
	"db_max_conns":        "database.max_conns",
	"db_worker_max_conns": "database.worker_max_conns",

	"da_api_base_url":  "deviantart.api_base_url",
	"da_auth_url":      "deviantart.auth_url",
	"da_token_url":     "deviantart.token_url",
	"da_client_id":     "deviantart.client_id",
	"da_client_secret": "deviantart.client_secret",
	"da_redirect_url":  "deviantart.redirect_url",
	"da_scopes":        "deviantart.scopes",
	"da_username":      "deviantart.username",

	"http_timeout":             "http.timeout",
	"http_max_retries":         "http.max_retries",
	"http_base_delay":          "http.base_delay",
	"http_max_backoff":         "http.max_backoff",
	"http_default_delay":       "http.default_delay",
	"http_retryable_statuses":  "http.retryable_statuses",
	"http_enable_retry":        "http.enable_retry",
	"http_requests_per_second": "http.requests_per_second",

	"broadcast_min_delay":      "worker.broadcast_min_delay",
	"broadcast_max_delay":      "worker.broadcast_max_delay",
	"fave_min_delay":           "worker.fave_min_delay",
	"fave_max_delay":           "worker.fave_max_delay",
	"worker_idle_delay":        "worker.idle_delay",
	"worker_stop_timeout":      "worker.stop_timeout",
	"max_consecutive_failures": "worker.max_consecutive_failures",
	"worker_max_attempts":      "worker.max_attempts",

	"api_port":            "server.port",
	"static_dir":          "server.static_dir",
	"cors_origins":        "server.cors_origins",
	"rate_limit_requests": "server.rate_limit_requests",
	"rate_limit_window":   "server.rate_limit_window",

	"mq_enabled": "mq.enabled",
	"amqp_url":   "mq.url",

	"sched_port":           "scheduler.port",
	"feed_collect_cron":    "scheduler.feed_collect_cron",
	"comment_collect_cron": "scheduler.comment_collect_cron",
	"stats_sync_cron":      "scheduler.stats_sync_cron",
	"comment_source":       "scheduler.comment_source",
	"collect_max_pages":    "scheduler.max_pages",
}

// sliceConfigPaths — ключи, которые в env задаются через запятую.
var sliceConfigPaths = []string{
	"deviantart.scopes",
	"server.cors_origins",
}

// intSliceConfigPaths — числовые списки через запятую.
var intSliceConfigPaths = []string{
	"http.retryable_statuses",
}

// Load загружает конфигурацию: defaults → YAML → env.
func Load() (*Config, error) {
	k := koanf.New(".")

	// Слой 1: значения по умолчанию
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	// Слой 2: файл (опционально)
	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// Слой 3: переменные окружения
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// envTransformFunc переводит имя переменной окружения в ключ koanf.
// Неизвестные переменные отбрасываются (пустой ключ).
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}

// findConfigFile возвращает путь к первому найденному файлу или "".
func findConfigFile() string {
	if path := os.Getenv(ConfigPathEnvVar); path != "" {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// processSliceFields разбивает строки "a,b,c" из env на списки.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		raw, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		if err := k.Set(path, splitList(raw)); err != nil {
			return fmt.Errorf("set %s: %w", path, err)
		}
	}

	for _, path := range intSliceConfigPaths {
		raw, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		parts := splitList(raw)
		values := make([]int, 0, len(parts))
		for _, p := range parts {
			n, err := strconv.Atoi(p)
			if err != nil {
				return fmt.Errorf("parse %s: %w", path, err)
			}
			values = append(values, n)
		}
		if err := k.Set(path, values); err != nil {
			return fmt.Errorf("set %s: %w", path, err)
		}
	}

	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
