package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port          string
	DBPath        string
	APISecret     string
	// APISubjects limits which token subjects may use the scheduler API.
	// Empty admits any subject.
	APISubjects   []string
	TokenTTL      time.Duration
	CORSOrigins   []string
	MigrationsDir string

	// TimerProfile is a YAML file with the beep timer profile. Empty means
	// the built-in profile.
	TimerProfile    string
	MinUptime       time.Duration
	ResponseTimeout time.Duration

	MQTTBroker   string
	MQTTClientID string
	SummaryCron  string
	Notifier     string
}

func Load() Config {
	return Config{
		Port:            getEnv("PORT", "8080"),
		DBPath:          getEnv("DB_PATH", "./data/beeper.db"),
		APISecret:       getEnv("API_SECRET", "change-this-secret"),
		APISubjects:     getEnvList("API_SUBJECTS", nil),
		TokenTTL:        time.Duration(getEnvInt("TOKEN_TTL_HOURS", 72)) * time.Hour,
		CORSOrigins:     getEnvList("CORS_ORIGINS", []string{"http://localhost:5173", "http://127.0.0.1:5173"}),
		MigrationsDir:   getEnv("MIGRATIONS_DIR", "./migrations"),
		TimerProfile:    getEnv("TIMER_PROFILE", ""),
		MinUptime:       getEnvDuration("MIN_UPTIME_SECONDS", 60*time.Second),
		ResponseTimeout: getEnvDuration("RESPONSE_TIMEOUT_SECONDS", 5*time.Minute),
		MQTTBroker:      getEnv("MQTT_BROKER", ""),
		MQTTClientID:    getEnv("MQTT_CLIENT_ID", "beeper"),
		SummaryCron:     getEnv("SUMMARY_CRON", "55 23 * * *"),
		Notifier:        strings.ToLower(getEnv("NOTIFIER", "log")),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// getEnvDuration reads a whole number of seconds. Negative values fall back.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	seconds := getEnvInt(key, -1)
	if seconds < 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

func getEnvList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	if len(items) == 0 {
		return fallback
	}
	return items
}
