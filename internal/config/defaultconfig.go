package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const defaultConfigTemplate = `
database: %s/kstor.db
socket: %s/kstor.sock
nworkers: 5
session_idle_timeout: 900
session_life_timeout: 14400
log_level: warn
# graylog_url: udp://graylog.example.com:12201
`

// GenerateConfig renders a fresh default config file for baseDir,
// mirroring node/defaultconfig.go's templated generation.
func GenerateConfig(baseDir string) []byte {
	return []byte(fmt.Sprintf(defaultConfigTemplate, baseDir, baseDir))
}

// SafeWriteConfigToFile writes a fresh config to configDir/name.yaml,
// refusing to overwrite an existing file, mirroring
// node/defaultconfig.go's SafeWriteConfigToFile.
func SafeWriteConfigToFile(configDir, name, baseDir string) error {
	path := filepath.Join(configDir, fmt.Sprintf("%s.yaml", name))

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	} else if !os.IsNotExist(err) {
		return err
	}

	if _, err := os.Stat(configDir); os.IsNotExist(err) {
		if err := os.MkdirAll(configDir, 0o700); err != nil {
			return err
		}
	}

	return os.WriteFile(path, GenerateConfig(baseDir), 0o600)
}
