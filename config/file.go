package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// FileConfig is the optional YAML override file. Every field maps onto
// one of the WSUI_* environment variables; values from the file are only
// applied when the variable is not already set, so the environment wins.
type FileConfig struct {
	Debug    bool   `yaml:"debug"`
	LogLevel string `yaml:"log_level"`
	DBFolder string `yaml:"db_folder"`
	ProxyBin string `yaml:"proxy_bin"`
	TgConfig string `yaml:"telegram_config"`
}

func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	fc := &FileConfig{}
	if err := yaml.Unmarshal(data, fc); err != nil {
		return nil, err
	}
	fc.apply()
	return fc, nil
}

func (fc *FileConfig) apply() {
	if fc.Debug {
		setIfEmpty("WSUI_DEBUG", "true")
	}
	if fc.LogLevel != "" {
		setIfEmpty(LogLevel, fc.LogLevel)
	}
	if fc.DBFolder != "" {
		setIfEmpty("WSUI_DB_FOLDER", fc.DBFolder)
	}
	if fc.ProxyBin != "" {
		setIfEmpty("WSUI_PROXY_BIN", fc.ProxyBin)
	}
	if fc.TgConfig != "" {
		setIfEmpty("WSUI_TG_CONFIG", fc.TgConfig)
	}
}

func setIfEmpty(key, value string) {
	if os.Getenv(key) == "" {
		os.Setenv(key, value)
	}
}
