/*
Copyright 2024 Caravel Rentals Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"

	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT = "5001"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	Secure    bool   `json:"secure" envconfig:"CARAVEL_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"CARAVEL_SERVER_SECRET_KEY"`
	Port      string `json:"port" envconfig:"CARAVEL_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"CARAVEL_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"CARAVEL_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"CARAVEL_REDIS_SKIP_TLS_VERIFY"`
}

type QueueConfig struct {
	NotificationQueue string `json:"notification_queue" envconfig:"CARAVEL_QUEUE_NOTIFICATION"`
	RetrySweepQueue   string `json:"retry_sweep_queue" envconfig:"CARAVEL_QUEUE_RETRY_SWEEP"`
	// Cron spec for the periodic due-retry sweep, e.g. "*/5 * * * *".
	RetrySweepSchedule string `json:"retry_sweep_schedule" envconfig:"CARAVEL_QUEUE_RETRY_SWEEP_SCHEDULE"`
	RetrySweepLimit    int    `json:"retry_sweep_limit" envconfig:"CARAVEL_QUEUE_RETRY_SWEEP_LIMIT"`
}

// WebhookRetryConfig governs the retry/dead-letter engine backoff policy.
type WebhookRetryConfig struct {
	MaxAttempts        int `json:"max_attempts" envconfig:"CARAVEL_WEBHOOK_MAX_ATTEMPTS"`
	BaseBackoffSeconds int `json:"base_backoff_seconds" envconfig:"CARAVEL_WEBHOOK_BASE_BACKOFF_SECONDS"`
	MaxBackoffSeconds  int `json:"max_backoff_seconds" envconfig:"CARAVEL_WEBHOOK_MAX_BACKOFF_SECONDS"`
}

type ProviderConfig struct {
	BaseURL        string `json:"base_url"`
	APIKey         string `json:"api_key"`
	WebhookSecret  string `json:"webhook_secret"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url"`
}

type EmailConfig struct {
	Url     string            `json:"url"`
	Headers map[string]string `json:"headers"`
	// Maximum sends per recipient per hour, enforced through a shared Redis
	// counter so the limit holds across replicas.
	MaxPerRecipientPerHour int `json:"max_per_recipient_per_hour" envconfig:"CARAVEL_EMAIL_MAX_PER_RECIPIENT_PER_HOUR"`
}

type Notification struct {
	Slack SlackWebhook `json:"slack"`
	Email EmailConfig  `json:"email"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"CARAVEL_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"CARAVEL_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"CARAVEL_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type Configuration struct {
	ProjectName     string             `json:"project_name" envconfig:"CARAVEL_PROJECT_NAME"`
	EnableTelemetry bool               `json:"enable_telemetry" envconfig:"CARAVEL_ENABLE_TELEMETRY"`
	Server          ServerConfig       `json:"server"`
	DataSource      DataSourceConfig   `json:"data_source"`
	Redis           RedisConfig        `json:"redis"`
	Queue           QueueConfig        `json:"queue"`
	WebhookRetry    WebhookRetryConfig `json:"webhook_retry"`
	Payment         ProviderConfig     `json:"payment"`
	Contract        ProviderConfig     `json:"contract"`
	Notification    Notification       `json:"notification"`
	RateLimit       RateLimitConfig    `json:"rate_limit"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}
	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("caravel", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called caravel.json with your config")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Caravel Server"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)

	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	if cnf.Queue.NotificationQueue == "" {
		cnf.Queue.NotificationQueue = "new:notification"
	}
	if cnf.Queue.RetrySweepQueue == "" {
		cnf.Queue.RetrySweepQueue = "new:retry_sweep"
	}
	if cnf.Queue.RetrySweepSchedule == "" {
		cnf.Queue.RetrySweepSchedule = "*/5 * * * *"
	}
	if cnf.Queue.RetrySweepLimit <= 0 {
		cnf.Queue.RetrySweepLimit = 50
	}

	if cnf.WebhookRetry.MaxAttempts <= 0 {
		cnf.WebhookRetry.MaxAttempts = 5
	}
	if cnf.WebhookRetry.BaseBackoffSeconds <= 0 {
		cnf.WebhookRetry.BaseBackoffSeconds = 30
	}
	if cnf.WebhookRetry.MaxBackoffSeconds <= 0 {
		cnf.WebhookRetry.MaxBackoffSeconds = 3600
	}

	if cnf.Payment.TimeoutSeconds <= 0 {
		cnf.Payment.TimeoutSeconds = 15
	}
	if cnf.Contract.TimeoutSeconds <= 0 {
		cnf.Contract.TimeoutSeconds = 15
	}

	if cnf.Notification.Email.MaxPerRecipientPerHour <= 0 {
		cnf.Notification.Email.MaxPerRecipientPerHour = 10
	}

	// Rate limiting is disabled by default (when both RPS and Burst are nil)
	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.Burst == nil {
		defaultBurst := 2 * int(*cnf.RateLimit.RequestsPerSecond)
		cnf.RateLimit.Burst = &defaultBurst
		log.Printf("Warning: Rate limit burst not specified. Setting default value: %d", defaultBurst)
	}
	if cnf.RateLimit.RequestsPerSecond == nil && cnf.RateLimit.Burst != nil {
		defaultRPS := float64(*cnf.RateLimit.Burst) / 2
		cnf.RateLimit.RequestsPerSecond = &defaultRPS
		log.Printf("Warning: Rate limit RPS not specified. Setting default value: %.2f", defaultRPS)
	}
	if cnf.RateLimit.CleanupIntervalSec == nil {
		defaultCleanup := 10800 // 3 hours in seconds
		cnf.RateLimit.CleanupIntervalSec = &defaultCleanup
	}

	return nil
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	mockConfig.applyTestDefaults()
	ConfigStore.Store(mockConfig)
}

func (cnf *Configuration) applyTestDefaults() {
	if cnf.WebhookRetry.MaxAttempts <= 0 {
		cnf.WebhookRetry.MaxAttempts = 5
	}
	if cnf.WebhookRetry.BaseBackoffSeconds <= 0 {
		cnf.WebhookRetry.BaseBackoffSeconds = 30
	}
	if cnf.WebhookRetry.MaxBackoffSeconds <= 0 {
		cnf.WebhookRetry.MaxBackoffSeconds = 3600
	}
	if cnf.Queue.RetrySweepLimit <= 0 {
		cnf.Queue.RetrySweepLimit = 50
	}
	if cnf.Notification.Email.MaxPerRecipientPerHour <= 0 {
		cnf.Notification.Email.MaxPerRecipientPerHour = 10
	}
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
