package config

import (
	"os"
	"strconv"
	"strings"
)

// DatabaseConfig holds PostgreSQL database connection settings.
type DatabaseConfig struct {
	Host               string
	Port               string
	User               string
	Password           string
	Name               string
	SSLMode            string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeSec int
}

// MinIOConfig holds object storage settings for MinIO.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicBaseURL, when set, is used to build unsigned public URLs for
	// objects (e.g. a CDN or reverse proxy in front of the bucket).
	PublicBaseURL string
}

// LocalDiskConfig holds settings for the local filesystem disk.
type LocalDiskConfig struct {
	Root    string
	BaseURL string
}

// AttachmentConfig holds process-wide attachment policy. It is passed
// explicitly to the services that need it; nothing reads it from ambient
// state at call sites.
type AttachmentConfig struct {
	// DefaultDisk is the disk used when an upload does not name one.
	DefaultDisk string
	// DefaultFolder is the key prefix for stored objects.
	DefaultFolder string
	// AutoCleanup deletes attachment files when the owning record is deleted.
	AutoCleanup bool
	// DeleteOnReplace deletes superseded files when an attachment field is
	// overwritten with a new value.
	DeleteOnReplace bool
	// DefaultRules is the pipe-delimited validation rule set applied when an
	// upload does not carry its own rules. Empty means no default validation.
	DefaultRules string
	// NamingStrategy selects how stored object names are generated:
	// "uuid" (default), "original" or "hash".
	NamingStrategy string
	// PreserveOriginalName keeps the sanitized original filename as a suffix
	// of the generated name.
	PreserveOriginalName bool
	// TempURLExpiryMinutes is the default expiry for presigned URLs.
	TempURLExpiryMinutes int
	// MetadataEnabled toggles metadata capture as a whole.
	MetadataEnabled bool
	// CaptureOriginalName records the uploaded filename in metadata.
	CaptureOriginalName bool
	// CaptureUploadedAt records the upload timestamp in metadata.
	CaptureUploadedAt bool
	// CaptureUploaderID records the uploading user id in metadata when the
	// caller provides one.
	CaptureUploaderID bool
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables. Sensitive values are not hardcoded.
type AppConfig struct {
	AppHost    string
	Port       string
	Database   DatabaseConfig
	MinIO      MinIOConfig
	LocalDisk  LocalDiskConfig
	Attachment AttachmentConfig
}

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
// This function does not require a .env file; real environment variables take precedence.
func Load() *AppConfig {
	return &AppConfig{
		AppHost: getEnv("APP_HOST", "localhost:8080"),
		Port:    getEnv("PORT", "8080"), // default only for non-sensitive value
		Database: DatabaseConfig{
			Host:               getEnv("DB_HOST", ""),
			Port:               getEnv("DB_PORT", "5432"),
			User:               getEnv("DB_USER", ""),
			Password:           getEnv("DB_PASSWORD", ""),
			Name:               getEnv("DB_NAME", ""),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetimeSec: getEnvInt("DB_CONN_MAX_LIFETIME_SEC", 300),
		},
		MinIO: MinIOConfig{
			Endpoint:      getEnv("MINIO_ENDPOINT", ""),
			AccessKey:     getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey:     getEnv("MINIO_SECRET_KEY", ""),
			Bucket:        getEnv("MINIO_BUCKET", ""),
			UseSSL:        getEnvBool("MINIO_USE_SSL", false),
			PublicBaseURL: getEnv("MINIO_PUBLIC_BASE_URL", ""),
		},
		LocalDisk: LocalDiskConfig{
			Root:    getEnv("LOCAL_DISK_ROOT", ""),
			BaseURL: getEnv("LOCAL_DISK_BASE_URL", ""),
		},
		Attachment: AttachmentConfig{
			DefaultDisk:          getEnv("ATTACH_DEFAULT_DISK", "minio"),
			DefaultFolder:        getEnv("ATTACH_DEFAULT_FOLDER", "attachments"),
			AutoCleanup:          getEnvBool("ATTACH_AUTO_CLEANUP", true),
			DeleteOnReplace:      getEnvBool("ATTACH_DELETE_ON_REPLACE", true),
			DefaultRules:         getEnv("ATTACH_DEFAULT_RULES", ""),
			NamingStrategy:       strings.ToLower(getEnv("ATTACH_NAMING_STRATEGY", "uuid")),
			PreserveOriginalName: getEnvBool("ATTACH_PRESERVE_ORIGINAL_NAME", false),
			TempURLExpiryMinutes: getEnvInt("ATTACH_TEMP_URL_EXPIRY_MIN", 5),
			MetadataEnabled:      getEnvBool("ATTACH_METADATA_ENABLED", true),
			CaptureOriginalName:  getEnvBool("ATTACH_CAPTURE_ORIGINAL_NAME", true),
			CaptureUploadedAt:    getEnvBool("ATTACH_CAPTURE_UPLOADED_AT", true),
			CaptureUploaderID:    getEnvBool("ATTACH_CAPTURE_UPLOADER_ID", false),
		},
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}
