package config

import (
	_ "embed"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

//go:embed thresholds.yaml
var thresholdsYAML []byte

type Config struct {
	Database   DatabaseConfig
	FaceAPI    FaceAPIConfig
	Storage    StorageConfig
	Worker     WorkerConfig
	Thresholds ThresholdsConfig
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

// FaceAPIConfig configures the external face recognition service.
// The service detects faces in an image and returns one signature vector
// per face; it never makes grant decisions.
type FaceAPIConfig struct {
	URL            string // base URL of the face service (e.g. http://localhost:8000)
	TimeoutSeconds int    // per-request timeout (default 30)
	MaxAttempts    int    // bounded retry attempts on transient failure (default 4)
	BackoffMillis  int    // initial backoff, doubled per attempt (default 500)
	SignatureDim   int    // dimensionality of returned signatures (default 512)
}

// StorageConfig configures the S3-compatible object store holding content bytes.
// Works with AWS S3, MinIO, DigitalOcean Spaces, etc.
type StorageConfig struct {
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	Endpoint  string // optional, for S3-compatible services
}

type WorkerConfig struct {
	BatchSize          int // change-feed records pulled per poll (default 100)
	PollIntervalMillis int // idle sleep between polls (default 1000)
	RetryDelayMillis   int // initial per-record retry delay (default 200)
}

// ThresholdsConfig comes from the embedded thresholds.yaml.
type ThresholdsConfig struct {
	Matching MatchingThresholds `yaml:"matching"`
	Pipeline PipelineThresholds `yaml:"pipeline"`
}

type MatchingThresholds struct {
	GrantThreshold    int `yaml:"grant_threshold"`
	IdentityThreshold int `yaml:"identity_threshold"`
	CandidateLimit    int `yaml:"candidate_limit"`
	MaxImageSize      int `yaml:"max_image_size"`
}

type PipelineThresholds struct {
	RecordAttempts      int `yaml:"record_attempts"`
	IngestAttempts      int `yaml:"ingest_attempts"`
	RetroAttempts       int `yaml:"retro_attempts"`
	ClaimTimeoutSeconds int `yaml:"claim_timeout_seconds"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

func Load() *Config {
	var thresholds ThresholdsConfig
	if err := yaml.Unmarshal(thresholdsYAML, &thresholds); err != nil {
		// This is an embedded file so this error should never happen in practice.
		panic("failed to unmarshal embedded thresholds.yaml: " + err.Error())
	}

	return &Config{
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		FaceAPI: FaceAPIConfig{
			URL:            os.Getenv("FACE_API_URL"),
			TimeoutSeconds: envInt("FACE_API_TIMEOUT_SECONDS", 30),
			MaxAttempts:    envInt("FACE_API_MAX_ATTEMPTS", 4),
			BackoffMillis:  envInt("FACE_API_BACKOFF_MILLIS", 500),
			SignatureDim:   envInt("FACE_API_SIGNATURE_DIM", 512),
		},
		Storage: StorageConfig{
			Region:    os.Getenv("S3_REGION"),
			Bucket:    os.Getenv("S3_BUCKET"),
			AccessKey: os.Getenv("S3_ACCESS_KEY"),
			SecretKey: os.Getenv("S3_SECRET_KEY"),
			Endpoint:  os.Getenv("S3_ENDPOINT"),
		},
		Worker: WorkerConfig{
			BatchSize:          envInt("WORKER_BATCH_SIZE", 100),
			PollIntervalMillis: envInt("WORKER_POLL_INTERVAL_MILLIS", 1000),
			RetryDelayMillis:   envInt("WORKER_RETRY_DELAY_MILLIS", 200),
		},
		Thresholds: thresholds,
	}
}
