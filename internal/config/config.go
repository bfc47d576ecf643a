package config

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env        string     `yaml:"env" env:"ENV" env-default:"production"`
	Log        Log        `yaml:"log"`
	HTTPServer HTTPServer `yaml:"http_server"`
	JWTSecret  string     `yaml:"jwt_secret" env:"JWT_SECRET" env-default:"super_secret_key"`
	PGSQL      PQSQL      `yaml:"pgsql"`
	Redis      Redis      `yaml:"redis"`
	Storage    Storage    `yaml:"storage"`
	Blob       Blob       `yaml:"blob"`
	Transcoder Transcoder `yaml:"transcoder"`
	Upload     Upload     `yaml:"upload"`
	Merge      Merge      `yaml:"merge"`
}

type Log struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}

type HTTPServer struct {
	Address         string        `yaml:"address" env:"HTTP_ADDRESS" env-default:"localhost:8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env-default:"60s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env-default:"30s"`
}

type PQSQL struct {
	Host     string `yaml:"host" env:"PG_HOST" env-default:"localhost"`
	Port     string `yaml:"port" env:"PG_PORT" env-default:"5432"`
	User     string `yaml:"user" env:"PG_USER" env-default:"postgres"`
	Password string `yaml:"password" env:"PG_PASSWORD" env-default:"password"`
	DBName   string `yaml:"dbname" env:"PG_DBNAME" env-default:"statements_db"`
	SSLMode  string `yaml:"sslmode" env:"PG_SSLMODE" env-default:"disable"`
}

// DSN builds a lib/pq connection string.
func (p PQSQL) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode)
}

// Redis is optional; an empty address disables quotas and the status mirror.
type Redis struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

type Storage struct {
	// Driver is one of memory, sqlite, postgres.
	Driver     string `yaml:"driver" env:"STORAGE_DRIVER" env-default:"memory"`
	SQLitePath string `yaml:"sqlite_path" env:"STORAGE_SQLITE_PATH" env-default:"data/sessions.db"`
}

type Blob struct {
	// Driver is one of local, minio, s3.
	Driver       string        `yaml:"driver" env:"BLOB_DRIVER" env-default:"local"`
	Bucket       string        `yaml:"bucket" env:"BLOB_BUCKET" env-default:"statements"`
	SignedURLTTL time.Duration `yaml:"signed_url_ttl" env-default:"24h"`
	Local        LocalBlob     `yaml:"local"`
	MinIO        MinIO         `yaml:"minio"`
	S3           S3            `yaml:"s3"`
}

type LocalBlob struct {
	Root    string `yaml:"root" env:"BLOB_LOCAL_ROOT" env-default:"data/blobs"`
	BaseURL string `yaml:"base_url" env:"BLOB_LOCAL_BASE_URL" env-default:"http://localhost:8080/blobs"`
}

type MinIO struct {
	Endpoint  string `yaml:"endpoint" env:"MINIO_ENDPOINT" env-default:"localhost:9000"`
	AccessKey string `yaml:"access_key" env:"MINIO_ACCESS_KEY"`
	SecretKey string `yaml:"secret_key" env:"MINIO_SECRET_KEY"`
	UseSSL    bool   `yaml:"use_ssl" env:"MINIO_USE_SSL" env-default:"false"`
}

type S3 struct {
	Region       string `yaml:"region" env:"AWS_REGION" env-default:"us-east-1"`
	Endpoint     string `yaml:"endpoint" env:"S3_ENDPOINT"`
	UsePathStyle bool   `yaml:"use_path_style" env:"S3_USE_PATH_STYLE" env-default:"false"`
}

type Transcoder struct {
	FFmpegPath  string `yaml:"ffmpeg_path" env:"FFMPEG_PATH" env-default:"ffmpeg"`
	FFprobePath string `yaml:"ffprobe_path" env:"FFPROBE_PATH" env-default:"ffprobe"`
}

type Upload struct {
	ChunkSize          int64         `yaml:"chunk_size" env:"UPLOAD_CHUNK_SIZE" env-default:"5242880"`
	MaxFileSize        int64         `yaml:"max_file_size" env:"UPLOAD_MAX_FILE_SIZE" env-default:"524288000"`
	AllowedMimeTypes   []string      `yaml:"allowed_mime_types" env:"UPLOAD_ALLOWED_MIME_TYPES" env-separator:"," env-default:"video/mp4,video/quicktime,video/webm,video/x-matroska"`
	ChunkDir           string        `yaml:"chunk_dir" env:"UPLOAD_CHUNK_DIR" env-default:"data/chunks"`
	CompletedDir       string        `yaml:"completed_dir" env:"UPLOAD_COMPLETED_DIR" env-default:"data/uploads"`
	SessionTTL         time.Duration `yaml:"session_ttl" env:"UPLOAD_SESSION_TTL" env-default:"24h"`
	CompletedRetention time.Duration `yaml:"completed_retention" env-default:"72h"`
	SweepInterval      time.Duration `yaml:"sweep_interval" env-default:"5m"`
	LockPath           string        `yaml:"lock_path" env-default:"data/sweeper.lock"`
	InitiateCapacity   int64         `yaml:"initiate_capacity" env-default:"30"`
	InitiateRefill     int64         `yaml:"initiate_refill_per_minute" env-default:"30"`
	// Upper bound on chunks per session; per-chunk bookkeeping grows with it.
	MaxChunks int `yaml:"max_chunks" env:"UPLOAD_MAX_CHUNKS" env-default:"10000"`
}

type Merge struct {
	GroupSize        int                      `yaml:"group_size" env-default:"3"`
	MaxGroupDuration float64                  `yaml:"max_group_duration_seconds" env-default:"180"`
	WorkDir          string                   `yaml:"work_dir" env:"MERGE_WORK_DIR" env-default:"data/merge"`
	MaxConcurrent    int64                    `yaml:"max_concurrent" env:"MERGE_MAX_CONCURRENT" env-default:"2"`
	TargetFramerate  float64                  `yaml:"target_framerate" env-default:"30"`
	ProbeTimeout     time.Duration            `yaml:"probe_timeout" env-default:"30s"`
	NormalizeTimeout time.Duration            `yaml:"normalize_timeout" env-default:"5m"`
	ConcatTimeout    time.Duration            `yaml:"concat_timeout" env-default:"5m"`
	CompressTimeout  time.Duration            `yaml:"compress_timeout" env-default:"10m"`
	AutoMerge        bool                     `yaml:"auto_merge" env:"MERGE_AUTO" env-default:"true"`
	DefaultPreset    string                   `yaml:"default_preset" env-default:"medium"`
	DeleteSources    bool                     `yaml:"delete_sources" env-default:"true"`
	InitiateCapacity int64                    `yaml:"initiate_capacity" env-default:"10"`
	InitiateRefill   int64                    `yaml:"initiate_refill_per_minute" env-default:"10"`
	Presets          map[string]QualityPreset `yaml:"presets"`
}

// QualityPreset bundles the compression parameters selected by name.
type QualityPreset struct {
	MaxBitrate   string `yaml:"max_bitrate" json:"max_bitrate"`
	EncoderSpeed string `yaml:"encoder_speed" json:"encoder_speed"`
	CRF          int    `yaml:"crf" json:"crf"`
	AudioBitrate string `yaml:"audio_bitrate" json:"audio_bitrate"`
}

// DefaultPresets are used when the config file names none.
func DefaultPresets() map[string]QualityPreset {
	return map[string]QualityPreset{
		"low":    {MaxBitrate: "1000k", EncoderSpeed: "veryfast", CRF: 30, AudioBitrate: "96k"},
		"medium": {MaxBitrate: "2500k", EncoderSpeed: "medium", CRF: 26, AudioBitrate: "128k"},
		"high":   {MaxBitrate: "5000k", EncoderSpeed: "slow", CRF: 22, AudioBitrate: "192k"},
	}
}

// Preset resolves a named quality preset.
func (m Merge) Preset(name string) (QualityPreset, bool) {
	p, ok := m.Presets[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

// PresetNames lists configured presets in sorted order.
func (m Merge) PresetNames() []string {
	names := make([]string, 0, len(m.Presets))
	for name := range m.Presets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (c *Config) applyDefaults() {
	if len(c.Merge.Presets) == 0 {
		c.Merge.Presets = DefaultPresets()
	}
}

// Validate rejects configurations the services cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Upload.ChunkSize <= 0 {
		errs = append(errs, errors.New("upload.chunk_size must be positive"))
	}
	if c.Upload.MaxFileSize < c.Upload.ChunkSize {
		errs = append(errs, errors.New("upload.max_file_size must be at least chunk_size"))
	}
	if c.Upload.MaxChunks <= 0 {
		errs = append(errs, errors.New("upload.max_chunks must be positive"))
	} else if c.Upload.ChunkSize > 0 && (c.Upload.MaxFileSize+c.Upload.ChunkSize-1)/c.Upload.ChunkSize > int64(c.Upload.MaxChunks) {
		errs = append(errs, fmt.Errorf("upload.chunk_size too small: max_file_size needs more than %d chunks", c.Upload.MaxChunks))
	}
	if len(c.Upload.AllowedMimeTypes) == 0 {
		errs = append(errs, errors.New("upload.allowed_mime_types must not be empty"))
	}
	if c.Merge.GroupSize <= 0 {
		errs = append(errs, errors.New("merge.group_size must be positive"))
	}
	if c.Merge.MaxConcurrent <= 0 {
		errs = append(errs, errors.New("merge.max_concurrent must be positive"))
	}
	if c.Merge.TargetFramerate <= 0 {
		errs = append(errs, errors.New("merge.target_framerate must be positive"))
	}
	if _, ok := c.Merge.Preset(c.Merge.DefaultPreset); !ok {
		errs = append(errs, fmt.Errorf("merge.default_preset %q is not a configured preset", c.Merge.DefaultPreset))
	}
	switch c.Storage.Driver {
	case "memory", "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q is not supported", c.Storage.Driver))
	}
	switch c.Blob.Driver {
	case "local", "minio", "s3":
	default:
		errs = append(errs, fmt.Errorf("blob.driver %q is not supported", c.Blob.Driver))
	}
	return errors.Join(errs...)
}

// Load reads and validates the config at path.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Default returns a config built purely from env-default values.
func Default() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read env: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func MustLoad() *Config {
	var configPath string

	configPath = os.Getenv("CONFIG_PATH")

	if configPath == "" {
		flags := flag.String("config", "", "Path to config file")
		flag.Parse()
		configPath = *flags

		if configPath == "" {
			log.Fatal("config path must be provided")
		}
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("config file does not exist at path: %s", configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("%s", err)
	}

	return cfg
}
