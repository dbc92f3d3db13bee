// Package logging configures the process-wide logrus logger.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/eamarucci/bot-answer/internal/config"
	log "github.com/sirupsen/logrus"
)

// Setup applies level and formatter from config. Unknown levels fall back to info.
func Setup(cfg config.LogConfig) {
	SetupTo(os.Stderr, cfg)
}

// SetupTo is Setup with an explicit writer.
func SetupTo(w io.Writer, cfg config.LogConfig) {
	log.SetOutput(w)

	level, err := log.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)

	if strings.EqualFold(strings.TrimSpace(cfg.Format), "json") {
		log.SetFormatter(&log.JSONFormatter{})
		return
	}
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
}
