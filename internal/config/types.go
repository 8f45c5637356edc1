package config

import "time"

// Config represents the complete folio configuration.
type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	Sessions SessionsConfig `yaml:"sessions"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	OCR      OCRConfig      `yaml:"ocr"`
	Markdown MarkdownConfig `yaml:"markdown"`
	Journal  JournalConfig  `yaml:"journal"`
	API      APIConfig      `yaml:"api"`
	Export   ExportConfig   `yaml:"export"`

	// SourceFile is the file the config was read from; empty for defaults.
	SourceFile string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name          string        `yaml:"name"`
	LogLevel      string        `yaml:"log_level"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	PIDFile       string        `yaml:"pid_file"`
}

// SessionsConfig defines session lifetime and workspace placement.
type SessionsConfig struct {
	TTL            time.Duration `yaml:"ttl"`
	BaseDir        string        `yaml:"base_dir"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
	AllowLocalDirs *bool         `yaml:"allow_local_dirs,omitempty"`
}

// LocalDirsAllowed reports whether sessions may bind caller directories.
func (s SessionsConfig) LocalDirsAllowed() bool {
	return s.AllowLocalDirs == nil || *s.AllowLocalDirs
}

// DispatchConfig bounds operation concurrency and duration.
type DispatchConfig struct {
	// MaxConcurrent of 0 means one per CPU.
	MaxConcurrent int            `yaml:"max_concurrent"`
	Timeouts      TimeoutsConfig `yaml:"timeouts"`
}

// TimeoutsConfig holds per-operation limits. An explicit 0 disables the
// limit; an absent value takes the default.
type TimeoutsConfig struct {
	OCR      *time.Duration `yaml:"ocr,omitempty"`
	Markdown *time.Duration `yaml:"markdown,omitempty"`
	Split    *time.Duration `yaml:"split,omitempty"`
	Merge    *time.Duration `yaml:"merge,omitempty"`
}

// OCRConfig configures rasterizing and recognition.
type OCRConfig struct {
	DPI        int      `yaml:"dpi"`
	Languages  []string `yaml:"languages"`
	Preprocess bool     `yaml:"preprocess"`
	MaxEdge    int      `yaml:"max_edge"`
	Pdftoppm   string   `yaml:"pdftoppm"`
}

// MarkdownConfig points at the docling-serve conversion endpoint.
type MarkdownConfig struct {
	URL string `yaml:"url"`
	// PageBreak is the placeholder requested between pages. Empty disables
	// per-page markdown output.
	PageBreak      *string       `yaml:"page_break,omitempty"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// PageBreakPlaceholder returns the configured placeholder or "".
func (m MarkdownConfig) PageBreakPlaceholder() string {
	if m.PageBreak == nil {
		return ""
	}
	return *m.PageBreak
}

// JournalConfig defines the operation audit log.
type JournalConfig struct {
	Enabled   *bool         `yaml:"enabled,omitempty"`
	Path      string        `yaml:"path"`
	Retention time.Duration `yaml:"retention"`
}

// On reports whether the journal is enabled.
func (j JournalConfig) On() bool {
	return j.Enabled == nil || *j.Enabled
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Listen       string        `yaml:"listen"`
	CORSOrigins  []string      `yaml:"cors_origins"`
	RateLimit    int           `yaml:"rate_limit"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	Auth         APIAuthConfig `yaml:"auth"`
}

// APIAuthConfig defines API authentication settings.
type APIAuthConfig struct {
	// APIKey is a single bearer token with full access.
	// Prefer Tokens for scoped access.
	APIKey string     `yaml:"api_key"`
	Tokens []APIToken `yaml:"tokens,omitempty"`
	JWT    JWTConfig  `yaml:"jwt"`
}

// APIToken defines a bearer token and its scopes.
type APIToken struct {
	Token  string   `yaml:"token"`
	Scopes []string `yaml:"scopes"`
}

// JWTConfig enables client-credentials tokens when Secret is set.
type JWTConfig struct {
	Secret  string        `yaml:"secret"`
	TTL     time.Duration `yaml:"ttl"`
	Clients []JWTClient   `yaml:"clients,omitempty"`
}

type JWTClient struct {
	ID     string   `yaml:"id"`
	Secret string   `yaml:"secret"`
	Scopes []string `yaml:"scopes"`
}

// ExportConfig defines the S3-compatible export target.
type ExportConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
	Prefix    string `yaml:"prefix"`
}

// envOverrides are applied after the YAML file. Unset variables leave the
// file's values alone.
type envOverrides struct {
	Listen        string        `env:"FOLIO_LISTEN"`
	LogLevel      string        `env:"FOLIO_LOG_LEVEL"`
	APIKey        string        `env:"FOLIO_API_KEY"`
	JWTSecret     string        `env:"FOLIO_JWT_SECRET"`
	SessionTTL    time.Duration `env:"FOLIO_SESSION_TTL"`
	SessionsDir   string        `env:"FOLIO_SESSIONS_DIR"`
	MaxConcurrent int           `env:"FOLIO_MAX_CONCURRENT"`
	DoclingURL    string        `env:"FOLIO_DOCLING_URL"`
	JournalPath   string        `env:"FOLIO_JOURNAL_PATH"`
	S3AccessKey   string        `env:"FOLIO_S3_ACCESS_KEY"`
	S3SecretKey   string        `env:"FOLIO_S3_SECRET_KEY"`
}

// Defaults returns a Config with every default filled in.
func Defaults() *Config {
	ocrTimeout, mdTimeout := 15*time.Minute, 15*time.Minute
	splitTimeout, mergeTimeout := 2*time.Minute, 2*time.Minute
	pageBreak := "<!-- page-break -->"
	return &Config{
		Service: ServiceConfig{
			Name:          "folio",
			LogLevel:      "info",
			SweepInterval: 30 * time.Second,
			PIDFile:       "./data/folio.pid",
		},
		Sessions: SessionsConfig{
			TTL:            60 * time.Minute,
			BaseDir:        "./data/sessions",
			MaxUploadBytes: 200 << 20,
		},
		Dispatch: DispatchConfig{
			Timeouts: TimeoutsConfig{
				OCR:      &ocrTimeout,
				Markdown: &mdTimeout,
				Split:    &splitTimeout,
				Merge:    &mergeTimeout,
			},
		},
		OCR: OCRConfig{
			DPI:       300,
			Languages: []string{"eng"},
			MaxEdge:   4000,
			Pdftoppm:  "pdftoppm",
		},
		Markdown: MarkdownConfig{
			URL:            "http://127.0.0.1:5001/v1/convert/file",
			PageBreak:      &pageBreak,
			RequestTimeout: 10 * time.Minute,
		},
		Journal: JournalConfig{
			Path:      "./data/journal.db",
			Retention: 30 * 24 * time.Hour,
		},
		API: APIConfig{
			Listen:       "127.0.0.1:8080",
			CORSOrigins:  []string{"*"},
			RateLimit:    120,
			WriteTimeout: 20 * time.Minute,
			Auth: APIAuthConfig{
				JWT: JWTConfig{TTL: 12 * time.Hour},
			},
		},
		Export: ExportConfig{
			Prefix: "folio",
		},
	}
}
