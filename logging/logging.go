package logging

import (
	"encoding/json"
	"io"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/aurumlabs/custodia/logger"
)

const (
	levelDebug = iota
	levelInfo
	levelWarn
	levelError
	levelFatal
)

var levelNames = map[string]int{
	"debug": levelDebug,
	"info":  levelInfo,
	"warn":  levelWarn,
	"error": levelError,
	"fatal": levelFatal,
}

// Helper writes logs to all provided io.Writers.
// Helper implements the logger.Logger interface.
// Writing is done concurrently without blocking the calling goroutine.
type Helper struct {
	callOnErr func(error)
	writers   []io.Writer
	minLevel  int
}

// New creates a new Helper that writes entries of at least minLevel severity.
// Unknown level names default to debug so nothing is silently dropped.
func New(minLevel string, callOnErr func(error), writers ...io.Writer) Helper {
	lvl, ok := levelNames[minLevel]
	if !ok {
		lvl = levelDebug
	}
	return Helper{callOnErr: callOnErr, writers: writers, minLevel: lvl}
}

// Debug writes debug log.
func (h Helper) Debug(msg string) {
	h.write(levelDebug, "debug", msg)
}

// Info writes info log.
func (h Helper) Info(msg string) {
	h.write(levelInfo, "info", msg)
}

// Warn writes warning log.
func (h Helper) Warn(msg string) {
	h.write(levelWarn, "warn", msg)
}

// Error writes error log.
func (h Helper) Error(msg string) {
	h.write(levelError, "error", msg)
}

// Fatal writes fatal log.
func (h Helper) Fatal(msg string) {
	h.write(levelFatal, "fatal", msg)
}

func (h Helper) write(lvl int, name, msg string) {
	if lvl < h.minLevel {
		return
	}
	l := logger.Log{
		ID:        primitive.NewObjectID(),
		Level:     name,
		Msg:       msg,
		CreatedAt: time.Now(),
	}
	go func(l *logger.Log) {
		raw, err := json.Marshal(l)
		if err != nil {
			h.callOnErr(err)
			return
		}
		for _, w := range h.writers {
			if _, err := w.Write(raw); err != nil {
				h.callOnErr(err)
			}
		}
	}(&l)
}
