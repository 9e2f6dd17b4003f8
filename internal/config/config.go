// Package config provides configuration management for snipper.
// Values come from defaults, then an optional TOML file, then environment
// variables, each overriding the previous.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const (
	// Default values
	DefaultPort     = 8788
	DefaultLogLevel = "info"
	DefaultDataDir  = ".snipper"
	DefaultFormat   = "best[ext=mp4]"

	// Environment variable names
	EnvConfigFile = "SNIPPER_CONFIG"
	EnvPort       = "SNIPPER_PORT"
	EnvLogLevel   = "SNIPPER_LOG_LEVEL"
	EnvLogFile    = "SNIPPER_LOG_FILE"
	EnvDataDir    = "SNIPPER_DATA_DIR"
	EnvRedisURL   = "SNIPPER_REDIS_URL"
	EnvServerURL  = "SNIPPER_SERVER_URL"
	EnvHeadless   = "SNIPPER_HEADLESS"

	// Tool environment variable names
	EnvYtDlp  = "SNIPPER_YTDLP"
	EnvFFmpeg = "SNIPPER_FFMPEG"
	EnvFormat = "SNIPPER_FORMAT"

	// Export archive environment variable names
	EnvS3Bucket    = "SNIPPER_S3_BUCKET"
	EnvS3Region    = "SNIPPER_S3_REGION"
	EnvS3Prefix    = "SNIPPER_S3_PREFIX"
	EnvS3Endpoint  = "SNIPPER_S3_ENDPOINT"
	EnvS3PathStyle = "SNIPPER_S3_PATH_STYLE"

	// Database filename
	DBFilename = "snipper.db"
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	LogFile() string
	DataDir() string
	DBPath() string
	TempDir() string
	RedisURL() string
	ServerURL() string
	Headless() bool
	YtDlpPath() string
	FFmpegPath() string
	Format() string
	S3() S3Settings
}

// S3Settings configures the optional export archive. An empty Bucket
// disables it.
type S3Settings struct {
	Bucket    string `toml:"bucket"`
	Region    string `toml:"region"`
	Prefix    string `toml:"prefix"`
	Endpoint  string `toml:"endpoint"`
	PathStyle bool   `toml:"path_style"`
}

func (s S3Settings) Enabled() bool { return s.Bucket != "" }

// fileConfig mirrors the TOML file layout.
type fileConfig struct {
	Port      int        `toml:"port"`
	LogLevel  string     `toml:"log_level"`
	LogFile   string     `toml:"log_file"`
	DataDir   string     `toml:"data_dir"`
	RedisURL  string     `toml:"redis_url"`
	ServerURL string     `toml:"server_url"`
	Headless  bool       `toml:"headless"`
	Tools     toolsFile  `toml:"tools"`
	S3        S3Settings `toml:"s3"`
}

type toolsFile struct {
	YtDlp  string `toml:"yt_dlp"`
	FFmpeg string `toml:"ffmpeg"`
	Format string `toml:"format"`
}

// EnvConfig holds the resolved configuration
type EnvConfig struct {
	port      int
	logLevel  string
	logFile   string
	dataDir   string
	redisURL  string
	serverURL string
	headless  bool

	ytdlp  string
	ffmpeg string
	format string

	s3 S3Settings
}

// LoadDotEnv loads .env style files into the environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// New creates a new EnvConfig with defaults, the file named by
// SNIPPER_CONFIG and environment variable overrides
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:     DefaultPort,
		logLevel: DefaultLogLevel,
		dataDir:  defaultDataDir(),
		format:   DefaultFormat,
	}

	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *EnvConfig) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if _, err := toml.Decode(string(data), &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if fc.Port != 0 {
		if err := validatePort(fc.Port); err != nil {
			return fmt.Errorf("invalid port in %s: %w", path, err)
		}
		c.port = fc.Port
	}
	setString(&c.logLevel, fc.LogLevel)
	setString(&c.logFile, fc.LogFile)
	setString(&c.dataDir, fc.DataDir)
	setString(&c.redisURL, fc.RedisURL)
	setString(&c.serverURL, fc.ServerURL)
	setString(&c.ytdlp, fc.Tools.YtDlp)
	setString(&c.ffmpeg, fc.Tools.FFmpeg)
	setString(&c.format, fc.Tools.Format)
	c.headless = fc.Headless
	c.s3 = fc.S3
	return nil
}

func (c *EnvConfig) applyEnv() error {
	// Override port from environment
	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		if err := validatePort(port); err != nil {
			return fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		c.port = port
	}

	setString(&c.logLevel, os.Getenv(EnvLogLevel))
	setString(&c.logFile, os.Getenv(EnvLogFile))
	setString(&c.dataDir, os.Getenv(EnvDataDir))
	setString(&c.redisURL, os.Getenv(EnvRedisURL))
	setString(&c.serverURL, os.Getenv(EnvServerURL))
	setString(&c.ytdlp, os.Getenv(EnvYtDlp))
	setString(&c.ffmpeg, os.Getenv(EnvFFmpeg))
	setString(&c.format, os.Getenv(EnvFormat))

	setString(&c.s3.Bucket, os.Getenv(EnvS3Bucket))
	setString(&c.s3.Region, os.Getenv(EnvS3Region))
	setString(&c.s3.Prefix, os.Getenv(EnvS3Prefix))
	setString(&c.s3.Endpoint, os.Getenv(EnvS3Endpoint))

	for name, dst := range map[string]*bool{EnvHeadless: &c.headless, EnvS3PathStyle: &c.s3.PathStyle} {
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
		*dst = b
	}
	return nil
}

func validatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// LogFile is where the terminal client writes its log. Empty means
// <data dir>/snipper.log.
func (c *EnvConfig) LogFile() string {
	if c.logFile != "" {
		return c.logFile
	}
	return filepath.Join(c.dataDir, "snipper.log")
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// TempDir holds in-flight downloads and exports.
func (c *EnvConfig) TempDir() string {
	return filepath.Join(c.dataDir, "tmp")
}

// RedisURL is empty when downloads are coordinated in process.
func (c *EnvConfig) RedisURL() string {
	return c.redisURL
}

// ServerURL is the API base URL the terminal client talks to.
func (c *EnvConfig) ServerURL() string {
	if c.serverURL != "" {
		return c.serverURL
	}
	return fmt.Sprintf("http://localhost:%d", c.port)
}

func (c *EnvConfig) Headless() bool {
	return c.headless
}

func (c *EnvConfig) YtDlpPath() string {
	return c.ytdlp
}

func (c *EnvConfig) FFmpegPath() string {
	return c.ffmpeg
}

// Format is the yt-dlp format selector.
func (c *EnvConfig) Format() string {
	return c.format
}

func (c *EnvConfig) S3() S3Settings {
	return c.s3
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
