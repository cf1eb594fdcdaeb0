package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Credentials is the key bundle loaded from the credentials file.
type Credentials struct {
	Reddit         RedditCredentials `yaml:"reddit"`
	LanguageAPIKey string            `yaml:"language_api_key"`
	TelegramToken  string            `yaml:"telegram_token"`
}

// RedditCredentials identify the Reddit application.
type RedditCredentials struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	UserAgent    string `yaml:"user_agent"`
}

// UnmarshalYAML accepts either a mapping or the legacy
// [client_id, client_secret, user_agent] list.
func (r *RedditCredentials) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.SequenceNode {
		var parts []string
		if err := value.Decode(&parts); err != nil {
			return err
		}
		if len(parts) != 3 {
			return fmt.Errorf("reddit: expected [client_id, client_secret, user_agent], got %d values", len(parts))
		}
		r.ClientID, r.ClientSecret, r.UserAgent = parts[0], parts[1], parts[2]
		return nil
	}

	type plain RedditCredentials
	return value.Decode((*plain)(r))
}

// Dotenv keys.
const (
	envRedditClientID     = "REDDIT_CLIENT_ID"
	envRedditClientSecret = "REDDIT_CLIENT_SECRET"
	envRedditUserAgent    = "REDDIT_USER_AGENT"
	envLanguageAPIKey     = "LANGUAGE_API_KEY"
	envTelegramToken      = "TELEGRAM_TOKEN"
)

// CredentialLoadError means the credential bundle is unreadable, malformed
// or incomplete.
type CredentialLoadError struct {
	Path string
	Err  error
}

func (e *CredentialLoadError) Error() string {
	return fmt.Sprintf("load credentials from %s: %v", e.Path, e.Err)
}

func (e *CredentialLoadError) Unwrap() error {
	return e.Err
}

// LoadCredentials reads the credential bundle at path. Files named *.env are
// read as dotenv; anything else as YAML (which covers JSON). The process
// environment is never modified.
func LoadCredentials(path string) (*Credentials, error) {
	var (
		creds *Credentials
		err   error
	)
	if isDotenv(path) {
		creds, err = readDotenv(path)
	} else {
		creds, err = readYAML(path)
	}
	if err != nil {
		return nil, &CredentialLoadError{Path: path, Err: err}
	}

	if err := creds.validate(); err != nil {
		return nil, &CredentialLoadError{Path: path, Err: err}
	}
	return creds, nil
}

func isDotenv(path string) bool {
	base := filepath.Base(path)
	return filepath.Ext(base) == ".env" || strings.HasPrefix(base, ".env")
}

func readDotenv(path string) (*Credentials, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("read dotenv: %w", err)
	}
	return &Credentials{
		Reddit: RedditCredentials{
			ClientID:     values[envRedditClientID],
			ClientSecret: values[envRedditClientSecret],
			UserAgent:    values[envRedditUserAgent],
		},
		LanguageAPIKey: values[envLanguageAPIKey],
		TelegramToken:  values[envTelegramToken],
	}, nil
}

func readYAML(path string) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	creds := &Credentials{}
	if err := yaml.Unmarshal(data, creds); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	return creds, nil
}

func (c *Credentials) validate() error {
	var missing []string
	if c.Reddit.ClientID == "" {
		missing = append(missing, "reddit client_id")
	}
	if c.Reddit.ClientSecret == "" {
		missing = append(missing, "reddit client_secret")
	}
	if c.Reddit.UserAgent == "" {
		missing = append(missing, "reddit user_agent")
	}
	if c.LanguageAPIKey == "" {
		missing = append(missing, "language_api_key")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing %s", strings.Join(missing, ", "))
	}
	return nil
}
