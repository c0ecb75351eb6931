// Package logging builds the tagged loggers and log sinks the commands
// hand to library components.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// New returns a tagged stderr logger in the house format.
func New(tag string) *log.Logger {
	return NewWithWriter(tag, os.Stderr)
}

// NewWithWriter returns a tagged logger writing to w.
func NewWithWriter(tag string, w io.Writer) *log.Logger {
	return log.New(w, "["+tag+"] ", log.LstdFlags)
}

// Rotating returns a size-rotated file writer for long-running
// commands. The caller owns Close.
func Rotating(path string) io.WriteCloser {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    20, // megabytes
		MaxBackups: 5,
		MaxAge:     28, // days
		Compress:   true,
	}
}
