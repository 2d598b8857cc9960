package environments

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Chat     ChatConfig
	Schedule ScheduleConfig
	Session  SessionConfig
	Auth     AuthConfig
}

type ServerConfig struct {
	Port string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// ChatConfig points at the chat platform's Web API. The bot token authorizes
// message posting, updating and channel lookups.
type ChatConfig struct {
	BaseURL  string
	BotToken string
	Timeout  time.Duration
}

type ScheduleConfig struct {
	// Timezone is the single reference timezone for all schedule math.
	Timezone string
	// DeliveryTimeout bounds one delivery attempt against the chat platform.
	DeliveryTimeout time.Duration
}

type SessionConfig struct {
	TTL time.Duration
}

type AuthConfig struct {
	MessagesAPIKey  string
	SchedulerAPIKey string
	EventsAPIKey    string
}

func Load() *Config {
	// Local development keeps secrets in .env; absence is fine in production.
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port: GetEnv("SERVER_PORT", "8080"),
		},
		Database: DatabaseConfig{
			Host:     GetEnv("DB_HOST", "localhost"),
			Port:     GetEnv("DB_PORT", "3306"),
			User:     GetEnv("DB_USER", "catbot"),
			Password: GetEnv("DB_PASSWORD", "catbot123"),
			DBName:   GetEnv("DB_NAME", "catbot_messages"),
		},
		Redis: RedisConfig{
			Host:     GetEnv("REDIS_HOST", "localhost"),
			Port:     GetEnv("REDIS_PORT", "6379"),
			Password: GetEnv("REDIS_PASSWORD", ""),
			DB:       GetEnvAsInt("REDIS_DB", 0),
		},
		Chat: ChatConfig{
			BaseURL:  GetEnv("CHAT_API_URL", "https://slack.com/api"),
			BotToken: GetEnv("CHAT_BOT_TOKEN", ""),
			Timeout:  GetEnvAsDuration("CHAT_TIMEOUT", 30*time.Second),
		},
		Schedule: ScheduleConfig{
			Timezone:        GetEnv("SCHEDULE_TIMEZONE", "America/New_York"),
			DeliveryTimeout: GetEnvAsDuration("DELIVERY_TIMEOUT", 30*time.Second),
		},
		Session: SessionConfig{
			TTL: GetEnvAsDuration("SESSION_TTL", 30*time.Minute),
		},
		Auth: AuthConfig{
			MessagesAPIKey:  GetEnv("MESSAGES_API_KEY", ""),
			SchedulerAPIKey: GetEnv("SCHEDULER_API_KEY", ""),
			EventsAPIKey:    GetEnv("EVENTS_API_KEY", ""),
		},
	}
}

func GetEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func GetEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func GetEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func GetEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
