package config

import (
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	DatabaseURL string `mapstructure:"database_url"`
	RedisURL    string `mapstructure:"redis_url"`
	Port        string `mapstructure:"port"`
	Debug       bool   `mapstructure:"debug"`
	// IANA zone for quiet hours and the digest time, "Local" for the host zone
	Timezone string `mapstructure:"timezone"`

	// Session
	JWTSecret         string `mapstructure:"jwt_secret"`
	AdminUser         string `mapstructure:"admin_user"`
	AdminPasswordHash string `mapstructure:"admin_password_hash"`

	// Managed environment file of the n8n deployment
	EnvFile       string `mapstructure:"env_file"`
	EnvSchemaFile string `mapstructure:"env_schema_file"`
	EnvBackupDir  string `mapstructure:"env_backup_dir"`
	DockerHost    string `mapstructure:"docker_host"`

	Log      LogConfig      `mapstructure:"log"`
	Backup   BackupConfig   `mapstructure:"backup"`
	Ntfy     NtfyConfig     `mapstructure:"ntfy"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	SendGrid SendGridConfig `mapstructure:"sendgrid"`
	SMTP     SMTPConfig     `mapstructure:"smtp"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Firebase FirebaseConfig `mapstructure:"firebase"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
}

type LogConfig struct {
	Dir   string `mapstructure:"dir"`
	Level string `mapstructure:"level"`
}

type BackupConfig struct {
	DataDir string `mapstructure:"data_dir"`
	Dir     string `mapstructure:"dir"`
}

type NtfyConfig struct {
	URL   string `mapstructure:"url"`
	Token string `mapstructure:"token"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

type SendGridConfig struct {
	APIKey    string `mapstructure:"api_key"`
	FromEmail string `mapstructure:"from_email"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
}

type FirebaseConfig struct {
	CredentialsFile string `mapstructure:"credentials_file"`
}

type DispatchConfig struct {
	Workers   int `mapstructure:"workers"`
	QueueSize int `mapstructure:"queue_size"`
	// Outbound sends per second, per channel type
	RatePerSecond int `mapstructure:"rate_per_second"`
}

// Location resolves the configured timezone.
func (c Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// App holds the global config instance
var App Config

// LoadConfig loads configuration from file and environment variables
func LoadConfig(path string) error {
	// Local development convenience, missing .env is fine
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded .env file")
	}

	v := viper.New()

	v.SetDefault("port", "8080")
	v.SetDefault("timezone", "Local")
	v.SetDefault("admin_user", "admin")
	v.SetDefault("log.dir", "./logs")
	v.SetDefault("log.level", "info")
	v.SetDefault("env_file", "/opt/n8n/.env")
	v.SetDefault("env_schema_file", "./config/env-schema.yaml")
	v.SetDefault("env_backup_dir", "./data/env-backups")
	v.SetDefault("docker_host", "unix:///var/run/docker.sock")
	v.SetDefault("backup.data_dir", "/opt/n8n/data")
	v.SetDefault("backup.dir", "./data/backups")
	v.SetDefault("ntfy.url", "https://ntfy.sh")
	v.SetDefault("kafka.topic", "system-events")
	v.SetDefault("kafka.group_id", "n8n-console")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("dispatch.workers", 4)
	v.SetDefault("dispatch.queue_size", 500)
	v.SetDefault("dispatch.rate_per_second", 5)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		v.SetConfigName("console")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("console")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Standard names used by the docker-compose deployment
	_ = v.BindEnv("database_url", "DATABASE_URL")
	_ = v.BindEnv("redis_url", "REDIS_URL")
	_ = v.BindEnv("port", "PORT")
	_ = v.BindEnv("debug", "CONSOLE_DEBUG")
	_ = v.BindEnv("jwt_secret", "JWT_SECRET")
	_ = v.BindEnv("admin_user", "ADMIN_USER")
	_ = v.BindEnv("admin_password_hash", "ADMIN_PASSWORD_HASH")
	_ = v.BindEnv("env_file", "N8N_ENV_FILE")
	_ = v.BindEnv("docker_host", "DOCKER_HOST")
	_ = v.BindEnv("ntfy.url", "NTFY_URL")
	_ = v.BindEnv("ntfy.token", "NTFY_TOKEN")
	_ = v.BindEnv("kafka.brokers", "KAFKA_BROKERS")
	_ = v.BindEnv("sendgrid.api_key", "SENDGRID_API_KEY")
	_ = v.BindEnv("sendgrid.from_email", "ALERT_FROM_EMAIL")
	_ = v.BindEnv("telegram.bot_token", "TELEGRAM_BOT_TOKEN")
	_ = v.BindEnv("firebase.credentials_file", "GOOGLE_APPLICATION_CREDENTIALS")

	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No config file found, using defaults and environment variables")
		} else {
			return err
		}
	} else {
		log.Printf("Loaded config from: %s", v.ConfigFileUsed())
	}

	if err := v.Unmarshal(&App); err != nil {
		return err
	}

	// KAFKA_BROKERS arrives as a comma separated string
	if len(App.Kafka.Brokers) == 1 && strings.Contains(App.Kafka.Brokers[0], ",") {
		App.Kafka.Brokers = strings.Split(App.Kafka.Brokers[0], ",")
	}

	return nil
}
