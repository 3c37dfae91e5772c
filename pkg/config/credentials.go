package config

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Credentials are written by login and used as defaults afterwards.
type Credentials struct {
	Username string `yaml:"username,omitempty"`
	Tenant   string `yaml:"tenant,omitempty"`
	Token    string `yaml:"token,omitempty"`
}

func DefaultCredentialsPath() string {
	return filepath.Join(ConfigDir(), "credentials.yaml")
}

// LoadCredentials returns nil, nil if the file does not exist.
func LoadCredentials(path string) (*Credentials, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "could not read credentials")
	}
	ret := &Credentials{}
	if err := yaml.Unmarshal(b, ret); err != nil {
		return nil, errors.Wrapf(err, "could not parse credentials %s", path)
	}
	return ret, nil
}

func SaveCredentials(path string, creds *Credentials) error {
	b, err := yaml.Marshal(creds)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return errors.Wrap(err, "could not create config directory")
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
