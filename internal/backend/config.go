package backend

import (
	"fmt"

	"lifeplan/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}

	return Config{
		Type: backendType,

		DataDirectory: appConfig.DataDir,
		SQLiteDBPath:  appConfig.SQLiteDBPath,
		DatabaseURL:   appConfig.DatabaseURL,

		RemoteBaseURL:  appConfig.RemoteBaseURL,
		RemoteToken:    appConfig.RemoteToken,
		RemoteEmail:    appConfig.RemoteEmail,
		RemotePassword: appConfig.RemotePassword,

		DefaultSettings: appConfig.Settings(),
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}

	switch c.Type {
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			return fmt.Errorf("SQLite database path is required for sqlite backend")
		}
	case PostgresBackend:
		if c.DatabaseURL == "" {
			return fmt.Errorf("database URL is required for postgres backend")
		}
	case RemoteBackend:
		if c.RemoteBaseURL == "" {
			return fmt.Errorf("base URL is required for remote backend")
		}
		if c.RemoteToken == "" && (c.RemoteEmail == "" || c.RemotePassword == "") {
			return fmt.Errorf("either a token or email and password are required for remote backend")
		}
	case MemoryBackend:
		// DataDirectory defaults to "data" when empty.
	}

	return nil
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{MemoryBackend, SQLiteBackend, PostgresBackend, RemoteBackend}
}
