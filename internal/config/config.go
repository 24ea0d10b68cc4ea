package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	NATS         NATSConfig         `yaml:"nats"`
	MinIO        MinIOConfig        `yaml:"minio"`
	Vision       VisionConfig       `yaml:"vision"`
	Verification VerificationConfig `yaml:"verification"`
	Logging      LoggingConfig      `yaml:"logging"`
}

type ServerConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

type MinIOConfig struct {
	Endpoint     string `yaml:"endpoint"`
	AccessKey    string `yaml:"access_key"`
	SecretKey    string `yaml:"secret_key"`
	IntakeBucket string `yaml:"intake_bucket"`
	UseSSL       bool   `yaml:"use_ssl"`
	// SignedURLTTL is the lifetime in seconds of the presigned GET URLs the
	// image fetcher consumes.
	SignedURLTTL int `yaml:"signed_url_ttl"`
}

type VisionConfig struct {
	ModelsDir string `yaml:"models_dir"`
	// DetectionThreshold is the raw detector floor; the per-context acceptance
	// floors live in VerificationConfig.
	DetectionThreshold float64 `yaml:"detection_threshold"`
	WorkerCount        int     `yaml:"worker_count"`
}

// Range is an inclusive numeric band.
type Range struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Size is a minimum pixel resolution.
type Size struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// VerificationConfig holds every tunable threshold of the decision pipeline.
// Defaults are the tuned production values; the analyzers and the decision
// engine contain no inline magic numbers.
type VerificationConfig struct {
	DocumentMinSize      Size    `yaml:"document_min_size"`
	SelfieMinSize        Size    `yaml:"selfie_min_size"`
	Brightness           Range   `yaml:"brightness"`
	DocumentAspect       Range   `yaml:"document_aspect"`
	SelfieAspect         Range   `yaml:"selfie_aspect"`
	DocumentSharpnessMin float64 `yaml:"document_sharpness_min"`
	SelfieSharpnessMin   float64 `yaml:"selfie_sharpness_min"`

	// Skin bands. A document covered in skin pixels is probably not a card;
	// a selfie with almost none probably has no person in it.
	DocumentSkinWarn    float64 `yaml:"document_skin_warn"`
	DocumentSkinSuspect float64 `yaml:"document_skin_suspect"`
	SelfieSkinMin       float64 `yaml:"selfie_skin_min"`

	DocumentFaceArea Range `yaml:"document_face_area"`
	SelfieFaceArea   Range `yaml:"selfie_face_area"`

	// Acceptance floors applied after detection succeeds.
	DocumentFaceConfidence float64 `yaml:"document_face_confidence"`
	SelfieFaceConfidence   float64 `yaml:"selfie_face_confidence"`

	FaceMatchThreshold float64 `yaml:"face_match_threshold"`

	// Document-structure heuristics.
	StructureScoreMin    float64 `yaml:"structure_score_min"`
	StructureRescueScore float64 `yaml:"structure_rescue_score"`
	HorizontalEdgeBand   Range   `yaml:"horizontal_edge_band"`

	// Barcode search budget.
	BarcodeMaxAttempts int `yaml:"barcode_max_attempts"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	return cfg, nil
}

// DefaultVerification returns the tuned threshold table.
func DefaultVerification() VerificationConfig {
	return VerificationConfig{
		DocumentMinSize:        Size{Width: 600, Height: 400},
		SelfieMinSize:          Size{Width: 400, Height: 400},
		Brightness:             Range{Min: 0.2, Max: 0.85},
		DocumentAspect:         Range{Min: 1.3, Max: 1.9},
		SelfieAspect:           Range{Min: 0.6, Max: 1.4},
		DocumentSharpnessMin:   18,
		SelfieSharpnessMin:     12,
		DocumentSkinWarn:       0.45,
		DocumentSkinSuspect:    0.55,
		SelfieSkinMin:          0.02,
		DocumentFaceArea:       Range{Min: 0.01, Max: 0.15},
		SelfieFaceArea:         Range{Min: 0.04, Max: 0.8},
		DocumentFaceConfidence: 0.5,
		SelfieFaceConfidence:   0.35,
		FaceMatchThreshold:     0.45,
		StructureScoreMin:      0.5,
		StructureRescueScore:   0.3,
		HorizontalEdgeBand:     Range{Min: 0.25, Max: 0.65},
		BarcodeMaxAttempts:     220,
	}
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 20
	}
	if cfg.MinIO.IntakeBucket == "" {
		cfg.MinIO.IntakeBucket = "idkit-intake"
	}
	if cfg.MinIO.SignedURLTTL == 0 {
		cfg.MinIO.SignedURLTTL = 120
	}
	if cfg.Vision.DetectionThreshold == 0 {
		cfg.Vision.DetectionThreshold = 0.25
	}
	if cfg.Vision.WorkerCount == 0 {
		cfg.Vision.WorkerCount = 2
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	def := DefaultVerification()
	v := &cfg.Verification
	if v.DocumentMinSize.Width == 0 {
		v.DocumentMinSize = def.DocumentMinSize
	}
	if v.SelfieMinSize.Width == 0 {
		v.SelfieMinSize = def.SelfieMinSize
	}
	if v.Brightness.Max == 0 {
		v.Brightness = def.Brightness
	}
	if v.DocumentAspect.Max == 0 {
		v.DocumentAspect = def.DocumentAspect
	}
	if v.SelfieAspect.Max == 0 {
		v.SelfieAspect = def.SelfieAspect
	}
	if v.DocumentSharpnessMin == 0 {
		v.DocumentSharpnessMin = def.DocumentSharpnessMin
	}
	if v.SelfieSharpnessMin == 0 {
		v.SelfieSharpnessMin = def.SelfieSharpnessMin
	}
	if v.DocumentSkinWarn == 0 {
		v.DocumentSkinWarn = def.DocumentSkinWarn
	}
	if v.DocumentSkinSuspect == 0 {
		v.DocumentSkinSuspect = def.DocumentSkinSuspect
	}
	if v.SelfieSkinMin == 0 {
		v.SelfieSkinMin = def.SelfieSkinMin
	}
	if v.DocumentFaceArea.Max == 0 {
		v.DocumentFaceArea = def.DocumentFaceArea
	}
	if v.SelfieFaceArea.Max == 0 {
		v.SelfieFaceArea = def.SelfieFaceArea
	}
	if v.DocumentFaceConfidence == 0 {
		v.DocumentFaceConfidence = def.DocumentFaceConfidence
	}
	if v.SelfieFaceConfidence == 0 {
		v.SelfieFaceConfidence = def.SelfieFaceConfidence
	}
	if v.FaceMatchThreshold == 0 {
		v.FaceMatchThreshold = def.FaceMatchThreshold
	}
	if v.StructureScoreMin == 0 {
		v.StructureScoreMin = def.StructureScoreMin
	}
	if v.StructureRescueScore == 0 {
		v.StructureRescueScore = def.StructureRescueScore
	}
	if v.HorizontalEdgeBand.Max == 0 {
		v.HorizontalEdgeBand = def.HorizontalEdgeBand
	}
	if v.BarcodeMaxAttempts == 0 {
		v.BarcodeMaxAttempts = def.BarcodeMaxAttempts
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("IDV_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("IDV_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("IDV_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("IDV_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("IDV_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("IDV_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("IDV_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("IDV_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("IDV_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("IDV_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("IDV_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("IDV_MINIO_BUCKET"); v != "" {
		cfg.MinIO.IntakeBucket = v
	}
	if v := os.Getenv("IDV_MODELS_DIR"); v != "" {
		cfg.Vision.ModelsDir = v
	}
	if v := os.Getenv("IDV_WORKER_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Vision.WorkerCount = n
		}
	}
}
