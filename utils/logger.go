package utils

import (
	"io"
	"os"

	"github.com/hashicorp/go-hclog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogOptions describes where and how the application logs
type LogOptions struct {
	Name       string
	Level      string // debug, info, warn, error
	Format     string // json, text
	Output     string // stdout, file, both
	FilePath   string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
	Compress   bool
}

// NewLogger builds the root application logger. File output rotates through lumberjack.
func NewLogger(opts LogOptions) hclog.Logger {
	var out io.Writer = os.Stdout
	if opts.FilePath != "" && (opts.Output == "file" || opts.Output == "both") {
		rotating := &lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    opts.MaxSize,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAge,
			Compress:   opts.Compress,
		}
		if opts.Output == "both" {
			out = io.MultiWriter(os.Stdout, rotating)
		} else {
			out = rotating
		}
	}

	level := hclog.LevelFromString(opts.Level)
	if level == hclog.NoLevel {
		level = hclog.Info
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:       opts.Name,
		Level:      level,
		Output:     out,
		JSONFormat: opts.Format == "json",
	})
}
