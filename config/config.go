package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// NodeConfig describes one audio node in the pool file.
type NodeConfig struct {
	Name       string   `json:"name"`
	Host       string   `json:"host"`
	Port       int      `json:"port"`
	Password   string   `json:"password"`
	SSL        bool     `json:"ssl"`
	Region     string   `json:"region,omitempty"`
	Latitude   float64  `json:"latitude,omitempty"`
	Longitude  float64  `json:"longitude,omitempty"`
	SearchOnly bool     `json:"searchOnly,omitempty"`
	Managed    bool     `json:"managed,omitempty"`
	Sources    []string `json:"sources,omitempty"`
}

// Config stores the application configuration.
type Config struct {
	BotID     int64  // identity of the bot account the players act for
	NodesFile string // path to the JSON node pool definition

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	StatusAddr string // diagnostics HTTP listen address, empty disables

	// Player behaviour knobs.
	MaxVolume            int
	AlonePauseAfter      time.Duration
	AloneDisconnectAfter time.Duration
	EmptyQueueDCAfter    time.Duration
	AutoTaskInterval     time.Duration

	LogLevel  string
	LogPath   string
	QueryTTL  time.Duration // redis query cache lifetime
	ReadyWait time.Duration // default WaitUntilReady bound for the daemon
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvInt64 gets an environment variable as int64 or returns a default value.
func getEnvInt64(key string, fallback int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvDuration gets an environment variable as a duration in seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load will not override variables already set in the environment.
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}

	return &Config{
		BotID:     getEnvInt64("BOT_ID", 0),
		NodesFile: getEnv("NODES_FILE", "nodes.json"),

		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     getEnv("DB_NAME", "linkfm"),

		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		StatusAddr: getEnv("STATUS_ADDR", ""),

		MaxVolume:            getEnvInt("MAX_VOLUME", 1000),
		AlonePauseAfter:      getEnvDuration("ALONE_PAUSE_SECONDS", 60*time.Second),
		AloneDisconnectAfter: getEnvDuration("ALONE_DC_SECONDS", 300*time.Second),
		EmptyQueueDCAfter:    getEnvDuration("EMPTY_QUEUE_DC_SECONDS", 300*time.Second),
		AutoTaskInterval:     getEnvDuration("AUTO_TASK_INTERVAL_SECONDS", 5*time.Second),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogPath:   getEnv("LOG_PATH", ""),
		QueryTTL:  getEnvDuration("QUERY_CACHE_TTL_SECONDS", 600*time.Second),
		ReadyWait: getEnvDuration("READY_WAIT_SECONDS", 60*time.Second),
	}
}

// LoadNodes reads the node pool definition file.
func LoadNodes(path string) ([]NodeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read nodes file %s: %w", path, err)
	}

	var nodes []NodeConfig
	if err := json.Unmarshal(data, &nodes); err != nil {
		return nil, fmt.Errorf("failed to parse nodes file %s: %w", path, err)
	}
	return nodes, nil
}
