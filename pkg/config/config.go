package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-go-golems/docqa/pkg/security"
	"github.com/go-go-golems/docqa/pkg/threads"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	AppName       = "docqa"
	DefaultTenant = "rsms"
	DefaultURL    = "http://localhost:8000"
)

type StoreKind string

const (
	StoreMemory StoreKind = "memory"
	StoreYAML   StoreKind = "yaml"
	StoreSQLite StoreKind = "sqlite"
	StorePebble StoreKind = "pebble"
)

// Settings is the resolved client configuration.
type Settings struct {
	BaseURL       string
	ViewerBaseURL string
	Tenant        string
	UserID        string
	Token         string
	Store         StoreKind
	StorePath     string
	Timeout       time.Duration
}

// LoadDotEnv loads .env files into the environment. Missing files are
// ignored, variables already set win.
func LoadDotEnv(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			log.Warn().Err(err).Str("path", p).Msg("could not load env file")
			continue
		}
		log.Debug().Str("path", p).Msg("loaded env file")
	}
}

// ConfigDir is the per-user configuration directory of the client.
func ConfigDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "."+AppName)
	}
	return filepath.Join(dir, AppName)
}

// FromViper resolves settings from v, falling back to stored credentials for
// the token and tenant.
func FromViper(v *viper.Viper, creds *Credentials) (*Settings, error) {
	s := &Settings{
		BaseURL:       strings.TrimRight(v.GetString("base-url"), "/"),
		ViewerBaseURL: strings.TrimRight(v.GetString("viewer-base-url"), "/"),
		Tenant:        v.GetString("tenant"),
		UserID:        v.GetString("user-id"),
		Token:         v.GetString("token"),
		Store:         StoreKind(strings.ToLower(v.GetString("store"))),
		StorePath:     v.GetString("store-path"),
		Timeout:       v.GetDuration("timeout"),
	}

	if creds != nil {
		if s.Token == "" {
			s.Token = creds.Token
		}
		if s.Tenant == "" {
			s.Tenant = creds.Tenant
		}
		if s.UserID == "" {
			s.UserID = creds.Username
		}
	}
	if s.BaseURL == "" {
		s.BaseURL = DefaultURL
	}
	if s.ViewerBaseURL == "" {
		s.ViewerBaseURL = s.BaseURL
	}
	if s.Tenant == "" {
		s.Tenant = DefaultTenant
	}
	if s.Store == "" {
		s.Store = StoreYAML
	}
	for name, u := range map[string]string{"base-url": s.BaseURL, "viewer-base-url": s.ViewerBaseURL} {
		if err := security.ValidateURL(u, security.DocumentPolicy); err != nil {
			return nil, errors.Wrapf(err, "invalid %s", name)
		}
	}
	if s.Timeout < 0 {
		return nil, errors.Errorf("timeout must not be negative, got %s", s.Timeout)
	}

	switch s.Store {
	case StoreMemory, StoreYAML, StoreSQLite, StorePebble:
	default:
		return nil, errors.Errorf("unknown store %q (memory, yaml, sqlite, pebble)", s.Store)
	}
	if s.StorePath == "" {
		s.StorePath = DefaultStorePath(s.Store)
	}
	return s, nil
}

func DefaultStorePath(kind StoreKind) string {
	switch kind {
	case StoreSQLite:
		return filepath.Join(ConfigDir(), "threads.db")
	case StorePebble:
		return filepath.Join(ConfigDir(), "threads.pebble")
	case StoreMemory:
		return ""
	default:
		return filepath.Join(ConfigDir(), "threads.yaml")
	}
}

// OpenStore opens the thread store selected by the settings.
func (s *Settings) OpenStore() (threads.Store, error) {
	switch s.Store {
	case StoreMemory:
		return threads.NewInMemoryStore(), nil
	case StoreYAML:
		return threads.NewYAMLFileStore(s.StorePath)
	case StoreSQLite:
		if err := os.MkdirAll(filepath.Dir(s.StorePath), 0o755); err != nil {
			return nil, errors.Wrap(err, "could not create store directory")
		}
		dsn, err := threads.SQLiteDSNForFile(s.StorePath)
		if err != nil {
			return nil, err
		}
		return threads.NewSQLiteStore(dsn)
	case StorePebble:
		return threads.NewPebbleStore(s.StorePath)
	default:
		return nil, errors.Errorf("unknown store %q", s.Store)
	}
}
