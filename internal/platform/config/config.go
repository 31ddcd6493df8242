package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures configuration for the accession query service.
type Server struct {
	Addr        string
	MetricsAddr string
	PostgresDSN string
	RedisURL    string
}

// Job captures configuration shared by the clustering and release batch jobs.
type Job struct {
	PostgresDSN       string
	RedisURL          string
	KafkaBrokers      []string
	OperationTopic    string
	AssemblyAccession string
	AssemblyReport    string
	FastaPath         string
	FastaIndexPath    string
	OutputReport      string
	ContigNaming      string
	ChunkSize         int
}

// RedisConfig tunes the shared Redis client.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// ServerFromEnv builds a Server config from environment variables so main
// stays lean.
func ServerFromEnv() Server {
	return Server{
		Addr:        envOr("VARREG_ADDR", ":8080"),
		MetricsAddr: envOr("VARREG_METRICS_ADDR", ":9102"),
		PostgresDSN: os.Getenv("VARREG_POSTGRES_DSN"),
		RedisURL:    os.Getenv("VARREG_REDIS_URL"),
	}
}

// JobFromEnv builds the batch-job config. Empty values mean the corresponding
// collaborator is disabled (e.g. no Kafka brokers disables the operation feed).
func JobFromEnv() Job {
	return Job{
		PostgresDSN:       os.Getenv("VARREG_POSTGRES_DSN"),
		RedisURL:          os.Getenv("VARREG_REDIS_URL"),
		KafkaBrokers:      splitNonEmpty(os.Getenv("VARREG_KAFKA_BROKERS")),
		OperationTopic:    envOr("VARREG_OPERATION_TOPIC", "variant-operations"),
		AssemblyAccession: os.Getenv("VARREG_ASSEMBLY"),
		AssemblyReport:    os.Getenv("VARREG_ASSEMBLY_REPORT"),
		FastaPath:         os.Getenv("VARREG_FASTA"),
		FastaIndexPath:    os.Getenv("VARREG_FASTA_INDEX"),
		OutputReport:      os.Getenv("VARREG_OUTPUT_REPORT"),
		ContigNaming:      envOr("VARREG_CONTIG_NAMING", "SEQUENCE_NAME"),
		ChunkSize:         envIntOr("VARREG_CHUNK_SIZE", 1000),
	}
}

// RedisFromEnv builds the Redis client config with conservative timeouts.
func RedisFromEnv() RedisConfig {
	return RedisConfig{
		URL:          os.Getenv("VARREG_REDIS_URL"),
		PoolSize:     envIntOr("VARREG_REDIS_POOL_SIZE", 10),
		MinIdleConns: envIntOr("VARREG_REDIS_MIN_IDLE", 2),
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
