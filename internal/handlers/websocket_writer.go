package handlers

import (
	"context"
	"fmt"
	"strings"
	"sync"

	plog "github.com/phuslu/log"
	"github.com/ternarybob/arbor/levels"
	arbormodels "github.com/ternarybob/arbor/models"

	"github.com/ternarybob/faber/internal/common"
)

const (
	// Buffer size for the log batch channel feeding the hub
	defaultWebSocketBufferSize = 10
)

// WebSocketWriter consumes log batches from arbor's channel and
// broadcasts filtered entries to connected WebSocket clients
type WebSocketWriter struct {
	handler         *WebSocketHandler
	channel         chan []arbormodels.LogEvent
	minLevel        levels.LogLevel
	excludePatterns []string
	ctx             context.Context
	cancel          context.CancelFunc
	wg              sync.WaitGroup
}

// NewWebSocketWriter creates a stopped writer. Register its channel on
// the logger with SetChannel, then call Start.
func NewWebSocketWriter(handler *WebSocketHandler, wsConfig *common.WebSocketConfig) *WebSocketWriter {
	// Nil-safety check: use safe defaults if wsConfig is nil
	var minLevel levels.LogLevel
	var excludePatterns []string

	if wsConfig == nil {
		minLevel = levels.InfoLevel
		excludePatterns = defaultExcludePatterns()
	} else {
		// Parse min level from config, default to InfoLevel
		minLevel = parseLogLevel(wsConfig.MinLevel)

		// Use config exclude patterns with fallback to defaults
		excludePatterns = wsConfig.ExcludePatterns
		if len(excludePatterns) == 0 {
			excludePatterns = defaultExcludePatterns()
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &WebSocketWriter{
		handler:         handler,
		channel:         make(chan []arbormodels.LogEvent, defaultWebSocketBufferSize),
		minLevel:        minLevel,
		excludePatterns: excludePatterns,
		ctx:             ctx,
		cancel:          cancel,
	}
}

// GetChannel returns the channel for arbor to send log batches to
func (w *WebSocketWriter) GetChannel() chan []arbormodels.LogEvent {
	return w.channel
}

// Start launches the consumer goroutine
func (w *WebSocketWriter) Start() error {
	w.wg.Add(1)
	go w.consume()
	return nil
}

// Stop drains the consumer goroutine
func (w *WebSocketWriter) Stop() error {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	return nil
}

// WithLevel updates the minimum broadcast level and returns self
func (w *WebSocketWriter) WithLevel(level plog.Level) *WebSocketWriter {
	w.minLevel = plogToArborLevel(level)
	return w
}

// consume processes log batches and broadcasts entries that pass the
// level and pattern filters
func (w *WebSocketWriter) consume() {
	defer w.wg.Done()

	// Panic recovery to keep the hub alive if a malformed entry arrives
	defer func() {
		if r := recover(); r != nil {
			w.handler.logger.Error().
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("WebSocket log writer panic recovered")
		}
	}()

	for {
		select {
		case batch, ok := <-w.channel:
			if !ok {
				return
			}
			for _, event := range batch {
				if entry, ok := w.transform(event); ok {
					w.handler.BroadcastLog(entry)
				}
			}
		case <-w.ctx.Done():
			return
		}
	}
}

// transform filters one log event and maps it to the wire format
func (w *WebSocketWriter) transform(event arbormodels.LogEvent) (LogEntry, bool) {
	arborLevel := plogToArborLevel(event.Level)
	if arborLevel < w.minLevel {
		return LogEntry{}, false
	}

	for _, pattern := range w.excludePatterns {
		if strings.Contains(event.Message, pattern) {
			return LogEntry{}, false
		}
	}

	return LogEntry{
		Timestamp: event.Timestamp.Format("15:04:05"),
		Level:     mapLevel(arborLevel),
		Message:   event.Message,
	}, true
}

// defaultExcludePatterns filters the hub's own chatter out of the stream
func defaultExcludePatterns() []string {
	return []string{
		"WebSocket client connected",
		"WebSocket client disconnected",
		"HTTP request",
		"HTTP response",
		"Publishing event",
	}
}

// plogToArborLevel converts phuslu/log.Level to arbor levels.LogLevel
func plogToArborLevel(level plog.Level) levels.LogLevel {
	switch level {
	case plog.ErrorLevel:
		return levels.ErrorLevel
	case plog.WarnLevel:
		return levels.WarnLevel
	case plog.InfoLevel:
		return levels.InfoLevel
	case plog.DebugLevel:
		return levels.DebugLevel
	default:
		return levels.InfoLevel
	}
}

// parseLogLevel converts string log level to arbor levels.LogLevel
func parseLogLevel(level string) levels.LogLevel {
	switch strings.ToLower(level) {
	case "error":
		return levels.ErrorLevel
	case "warn", "warning":
		return levels.WarnLevel
	case "info":
		return levels.InfoLevel
	case "debug":
		return levels.DebugLevel
	default:
		return levels.InfoLevel
	}
}

// mapLevel maps arbor log levels to UI strings
func mapLevel(level levels.LogLevel) string {
	switch level {
	case levels.ErrorLevel:
		return "error"
	case levels.WarnLevel:
		return "warn"
	case levels.InfoLevel:
		return "info"
	case levels.DebugLevel:
		return "debug"
	default:
		return "info"
	}
}
