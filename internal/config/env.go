package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Credential environment variables.
const (
	EnvAPIKey = "REKEY_API_KEY"
	EnvBaseID = "REKEY_BASE_ID"
	EnvAPIURL = "REKEY_API_URL"
)

// DefaultEnvFile is loaded when present.
const DefaultEnvFile = ".env"

// ErrMissingCredentials is returned when a required variable is unset.
var ErrMissingCredentials = errors.New("missing credentials")

// Credentials authenticate against the hosted store.
type Credentials struct {
	APIKey  string
	BaseID  string
	BaseURL string // empty selects the public API
}

// LoadEnv loads variables from path into the process environment without
// overriding variables already set. A missing DefaultEnvFile is not an
// error; any other missing file is.
func LoadEnv(path string) error {
	if path == "" {
		path = DefaultEnvFile
	}
	if err := godotenv.Load(path); err != nil {
		if path == DefaultEnvFile && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// CredentialsFromEnv reads credentials from the environment.
func CredentialsFromEnv() (Credentials, error) {
	creds := Credentials{
		APIKey:  strings.TrimSpace(os.Getenv(EnvAPIKey)),
		BaseID:  strings.TrimSpace(os.Getenv(EnvBaseID)),
		BaseURL: strings.TrimSpace(os.Getenv(EnvAPIURL)),
	}
	var missing []string
	if creds.APIKey == "" {
		missing = append(missing, EnvAPIKey)
	}
	if creds.BaseID == "" {
		missing = append(missing, EnvBaseID)
	}
	if len(missing) > 0 {
		return Credentials{}, fmt.Errorf("%w: set %s", ErrMissingCredentials, strings.Join(missing, ", "))
	}
	return creds, nil
}
