package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	AppName            string `mapstructure:"APP_NAME"`
	LogLevel           string `mapstructure:"LOG_LEVEL"`
	PrettyLogs         bool   `mapstructure:"PRETTY_LOGS"`
	StartupMaxAttempts int    `mapstructure:"STARTUP_MAX_ATTEMPTS"`

	// PostgreSQL (canonical store)
	DatabaseDriver                string        `mapstructure:"DB_DRIVER"`
	DatabaseHost                  string        `mapstructure:"DB_HOST"`
	DatabasePort                  string        `mapstructure:"DB_PORT"`
	DatabaseUserName              string        `mapstructure:"DB_USER_NAME"`
	DatabasePassword              string        `mapstructure:"DB_PASSWORD"`
	DatabaseName                  string        `mapstructure:"DB_NAME"`
	DatabaseSSLMode               string        `mapstructure:"DB_SSL_MODE"`
	DatabaseMaxOpenConns          int           `mapstructure:"DB_MAX_OPEN_CONNS"`
	DatabaseMaxIdleConns          int           `mapstructure:"DB_MAX_IDLE_CONNS"`
	DatabaseConnMaxLifetime       time.Duration `mapstructure:"DB_CONN_MAX_LIFETIME"`
	DatabaseMigrationFolderPath   string        `mapstructure:"DB_MIGRATION_FOLDER_PATH"`
	DatabaseMigrationVersion      int           `mapstructure:"DB_MIGRATION_VERSION"`
	DatabaseMigrationForce        int           `mapstructure:"DB_MIGRATION_FORCE"`
	DatabaseMigrationAutoRollback bool          `mapstructure:"DB_MIGRATION_AUTO_ROLLBACK"`

	// Graph Database (Memgraph) merge projection
	GraphProjectionEnabled bool   `mapstructure:"GRAPH_PROJECTION_ENABLED"`
	GraphDBHost            string `mapstructure:"GRAPH_DB_HOST"`
	GraphDBPort            int    `mapstructure:"GRAPH_DB_PORT"`
	GraphDBUser            string `mapstructure:"GRAPH_DB_USER"`
	GraphDBPassword        string `mapstructure:"GRAPH_DB_PASSWORD"`

	// Kafka event stream
	KafkaProducerEnabled bool     `mapstructure:"KAFKA_PRODUCER_ENABLED"`
	KafkaBrokers         []string `mapstructure:"KAFKA_BROKERS"`
	KafkaOutputTopic     string   `mapstructure:"KAFKA_OUTPUT_TOPIC"`
	KafkaBatchSize       int      `mapstructure:"KAFKA_BATCH_SIZE"`
	KafkaBatchTimeout    int      `mapstructure:"KAFKA_BATCH_TIMEOUT_MS"`
	KafkaRequiredAcks    int      `mapstructure:"KAFKA_REQUIRED_ACKS"`
	KafkaCompression     string   `mapstructure:"KAFKA_COMPRESSION"`
	KafkaConsumerGroup   string   `mapstructure:"KAFKA_CONSUMER_GROUP"`

	// Tracing
	OTLPEndpoint     string  `mapstructure:"OTLP_ENDPOINT"`
	OTLPProtocol     string  `mapstructure:"OTLP_PROTOCOL"`
	TraceSampleRatio float64 `mapstructure:"TRACE_SAMPLE_RATIO"`

	// Matching
	MatchLinkThreshold      float64 `mapstructure:"MATCH_LINK_THRESHOLD"`
	MatchReviewFloor        float64 `mapstructure:"MATCH_REVIEW_FLOOR"`
	MatchNearExactThreshold float64 `mapstructure:"MATCH_NEAR_EXACT_THRESHOLD"`
	MatchMaxCandidates      int     `mapstructure:"MATCH_MAX_CANDIDATES"`

	// Migration
	MigrationWorkerCount int `mapstructure:"MIGRATION_WORKER_COUNT"`
}

// Default returns the configuration used when the environment is silent.
func Default() Config {
	return Config{
		AppName:                       "fern",
		LogLevel:                      "info",
		StartupMaxAttempts:            5,
		DatabaseDriver:                "postgres",
		DatabaseHost:                  "localhost",
		DatabasePort:                  "5432",
		DatabaseName:                  "fern",
		DatabaseSSLMode:               "disable",
		DatabaseMaxOpenConns:          25,
		DatabaseMaxIdleConns:          10,
		DatabaseConnMaxLifetime:       10 * time.Second,
		DatabaseMigrationFolderPath:   "db/pg",
		DatabaseMigrationAutoRollback: true,
		GraphDBHost:                   "localhost",
		GraphDBPort:                   7687,
		KafkaBrokers:                  []string{"localhost:9092"},
		KafkaOutputTopic:              "identity-events",
		KafkaBatchSize:                100,
		KafkaBatchTimeout:             100,
		KafkaRequiredAcks:             1,
		KafkaCompression:              "snappy",
		KafkaConsumerGroup:            "fern-tail",
		OTLPProtocol:                  "grpc",
		TraceSampleRatio:              1.0,
		MatchLinkThreshold:            0.85,
		MatchReviewFloor:              0.5,
		MatchNearExactThreshold:       0.92,
		MatchMaxCandidates:            10,
		MigrationWorkerCount:          4,
	}
}

// Load reads an optional .env file and resolves every field from the
// environment, falling back to Default.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, file := range envFiles {
		// a missing file is fine, the environment still applies
		_ = godotenv.Load(file)
	}

	var defaults map[string]any
	if err := mapstructure.Decode(Default(), &defaults); err != nil {
		return nil, fmt.Errorf("failed to encode config defaults: %w", err)
	}

	v := viper.New()
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	cfg := &Config{}
	err := v.Unmarshal(cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		stringToListHook(),
	)))
	if err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// stringToListHook splits comma separated env values and trims each entry.
func stringToListHook() mapstructure.DecodeHookFuncType {
	return func(from, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String || to != reflect.TypeOf([]string(nil)) {
			return data, nil
		}
		return splitList(data.(string)), nil
	}
}

func splitList(raw string) []string {
	out := []string{}
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
