package config

import (
	"fmt"
	"os"
	"path"
	"strings"
)

const (
	name     = "wiresocks-ui"
	version  = "1.2.0"
	LogLevel = "WSUI_LOG_LEVEL"
	Debug    = "debug"
	Info     = "info"
	Warn     = "warn"
	Error    = "error"
)

func GetVersion() string {
	return version
}

func GetName() string {
	return name
}

type LogLevelType string

func GetLogLevel() LogLevelType {
	if IsDebug() {
		return Debug
	}
	logLevel := os.Getenv(LogLevel)
	if logLevel == "" {
		logLevel = Info
	}
	return LogLevelType(strings.ToLower(logLevel))
}

func IsDebug() bool {
	return os.Getenv("WSUI_DEBUG") == "true"
}

func GetDBFolderPath() string {
	dbFolderPath := os.Getenv("WSUI_DB_FOLDER")
	if dbFolderPath == "" {
		dbFolderPath = "db"
	}
	return dbFolderPath
}

func GetDBPath() string {
	return fmt.Sprintf("%s/%s.db", GetDBFolderPath(), GetName())
}

// GetCachePath is where the fetched server directory snapshot is kept
// between runs.
func GetCachePath() string {
	return path.Join(GetDBFolderPath(), "servers-cache.json")
}

func GetTelegramConfigPath() string {
	p := os.Getenv("WSUI_TG_CONFIG")
	if p == "" {
		p = "telegram_config.json"
	}
	return p
}

// GetBinaryName returns the name of the external proxy executable this
// panel supervises.
func GetBinaryName() string {
	bin := os.Getenv("WSUI_PROXY_BIN")
	if bin == "" {
		bin = "wireproxy"
	}
	return bin
}
