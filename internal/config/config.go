// Package config loads the bucketvis configuration file.
//
// Values come from three layers, later ones winning: built-in defaults,
// the YAML file, and BUCKETVIS_* environment variables for secrets and
// deployment-specific endpoints.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/koustreak/bucketvis/internal/errs"
	"github.com/koustreak/bucketvis/internal/filestore"
	"github.com/koustreak/bucketvis/internal/logger"
	"github.com/koustreak/bucketvis/internal/notify"
	"go.yaml.in/yaml/v3"
)

// Identity token sources.
const (
	IdentityStatic = "static"
	IdentityFile   = "file"
	IdentityEnv    = "env"
)

// Credential modes.
const (
	CredentialsSTS    = "sts"
	CredentialsJSON   = "json"
	CredentialsStatic = "static"
)

const maxPresignTTL = 7 * 24 * time.Hour

// Config is the root of the configuration file.
type Config struct {
	Log         logger.Config        `yaml:"log"`
	Storage     filestore.Config     `yaml:"storage"`
	Identity    IdentityConfig       `yaml:"identity"`
	Credentials CredentialsConfig    `yaml:"credentials"`
	Links       LinksConfig          `yaml:"links"`
	Server      ServerConfig         `yaml:"server"`
	Journal     notify.JournalConfig `yaml:"journal"`
}

// IdentityConfig selects where the identity token comes from.
type IdentityConfig struct {
	Source string `yaml:"source"` // static, file, env
	Token  string `yaml:"token"`  // static
	File   string `yaml:"file"`   // file, re-read on every exchange
	Env    string `yaml:"env"`    // env
}

// CredentialsConfig selects how storage credentials are obtained.
type CredentialsConfig struct {
	Mode string `yaml:"mode"` // sts, json, static

	// Endpoint of the STS or JSON exchange service.
	Endpoint string `yaml:"endpoint"`
	RoleARN  string `yaml:"role_arn"`

	// Duration requested from the exchange. 0 leaves it to the backend.
	Duration Duration `yaml:"duration"`

	// MinValidity is the remaining lifetime below which cached credentials
	// are refreshed.
	MinValidity Duration `yaml:"min_validity"`

	// Static credentials, used when Mode is "static".
	AccessKey    string `yaml:"access_key"`
	SecretKey    string `yaml:"secret_key"`
	SessionToken string `yaml:"session_token"`
}

// LinksConfig tunes download references.
type LinksConfig struct {
	PresignTTL Duration `yaml:"presign_ttl"`
	Locale     string   `yaml:"locale"`   // BCP 47 tag, e.g. "en-US"
	Timezone   string   `yaml:"timezone"` // IANA name, e.g. "Europe/Berlin"
}

// Location resolves Timezone. Empty means UTC.
func (c LinksConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Timezone)
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Listen          string   `yaml:"listen"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// Default returns a configuration for a local MinIO with static credentials.
func Default() *Config {
	return &Config{
		Log:     *logger.DefaultConfig(),
		Storage: *filestore.DefaultConfig("localhost:9000"),
		Identity: IdentityConfig{
			Source: IdentityEnv,
			Env:    "BUCKETVIS_IDENTITY_TOKEN",
		},
		Credentials: CredentialsConfig{
			Mode:        CredentialsStatic,
			MinValidity: Duration(5 * time.Minute),
		},
		Links: LinksConfig{
			PresignTTL: Duration(maxPresignTTL),
			Locale:     "en-US",
		},
		Server: ServerConfig{
			Listen:          ":8080",
			ReadTimeout:     Duration(15 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			ShutdownTimeout: Duration(10 * time.Second),
		},
	}
}

// Load reads path on top of Default, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errs.Wrap(errs.ErrKindInvalidInput, "read config file", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errs.Wrap(errs.ErrKindInvalidInput, "parse config file", err)
		}
	}

	cfg.applyEnv(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides secrets and endpoints from the environment.
func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	for name, dst := range map[string]*string{
		"BUCKETVIS_LOG_LEVEL":            &c.Log.Level,
		"BUCKETVIS_STORAGE_ENDPOINT":     &c.Storage.Endpoint,
		"BUCKETVIS_STORAGE_PUBLIC_URL":   &c.Storage.PublicURL,
		"BUCKETVIS_CREDENTIALS_MODE":     &c.Credentials.Mode,
		"BUCKETVIS_CREDENTIALS_ENDPOINT": &c.Credentials.Endpoint,
		"BUCKETVIS_ACCESS_KEY":           &c.Credentials.AccessKey,
		"BUCKETVIS_SECRET_KEY":           &c.Credentials.SecretKey,
		"BUCKETVIS_SESSION_TOKEN":        &c.Credentials.SessionToken,
		"BUCKETVIS_JOURNAL_DSN":          &c.Journal.DSN,
		"BUCKETVIS_LISTEN":               &c.Server.Listen,
		"BUCKETVIS_LINKS_TIMEZONE":       &c.Links.Timezone,
	} {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	if v, ok := lookup("BUCKETVIS_IDENTITY_TOKEN_FILE"); ok && v != "" {
		c.Identity.Source = IdentityFile
		c.Identity.File = v
	}
}

// Validate checks that the configuration is complete and consistent.
func (c *Config) Validate() error {
	if c.Storage.Provider != filestore.ProviderMinIO {
		return invalid("storage.provider %q is not supported", c.Storage.Provider)
	}
	if c.Storage.Endpoint == "" {
		return invalid("storage.endpoint is required")
	}
	if _, err := c.Storage.BaseURL(); err != nil {
		return errs.Wrap(errs.ErrKindInvalidInput, "storage.public_url", err)
	}

	switch c.Credentials.Mode {
	case CredentialsStatic:
		if c.Credentials.AccessKey == "" || c.Credentials.SecretKey == "" {
			return invalid("credentials.access_key and credentials.secret_key are required in static mode")
		}
	case CredentialsSTS, CredentialsJSON:
		if c.Credentials.Endpoint == "" {
			return invalid("credentials.endpoint is required in %s mode", c.Credentials.Mode)
		}
		if err := c.Identity.validate(); err != nil {
			return err
		}
	default:
		return invalid("credentials.mode must be one of sts, json, static")
	}
	if c.Credentials.Duration < 0 || c.Credentials.MinValidity < 0 {
		return invalid("credentials durations must not be negative")
	}

	if ttl := c.Links.PresignTTL.Std(); ttl <= 0 || ttl > maxPresignTTL {
		return invalid("links.presign_ttl must be between 1s and 7d")
	}
	if _, err := c.Links.Location(); err != nil {
		return errs.Wrap(errs.ErrKindInvalidInput, "links.timezone", err)
	}

	if c.Server.Listen == "" {
		return invalid("server.listen is required")
	}

	switch c.Journal.Driver {
	case "":
	case "postgres", "mysql":
		if c.Journal.DSN == "" {
			return invalid("journal.dsn is required when journal.driver is set")
		}
	default:
		return invalid("journal.driver must be postgres or mysql")
	}
	return nil
}

func (c IdentityConfig) validate() error {
	switch c.Source {
	case IdentityStatic:
		if c.Token == "" {
			return invalid("identity.token is required for the static source")
		}
	case IdentityFile:
		if c.File == "" {
			return invalid("identity.file is required for the file source")
		}
	case IdentityEnv:
		if c.Env == "" {
			return invalid("identity.env is required for the env source")
		}
	default:
		return invalid("identity.source must be one of static, file, env")
	}
	return nil
}

func invalid(format string, args ...any) error {
	return errs.New(errs.ErrKindInvalidInput, fmt.Sprintf(format, args...))
}
