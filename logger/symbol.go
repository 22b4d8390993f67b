package logger

import (
	"go.uber.org/zap"

	"github.com/teranos/pursuit/sym"
)

// Symbol-tagged logger wrappers. Each subsystem tags its logger once at
// construction so every line it emits carries the subsystem glyph as a
// structured field rather than baked into the message:
//
//	type Orchestrator struct {
//	    pulseLog *zap.SugaredLogger
//	}
//	o.pulseLog = logger.AddPulseSymbol(baseLogger)

// AddPulseSymbol tags a logger with the pipeline daemon glyph (꩜).
func AddPulseSymbol(l *zap.SugaredLogger) *zap.SugaredLogger {
	return l.With(FieldSymbol, sym.Pulse)
}

// AddPulseOpenSymbol tags a logger with the startup glyph (✿).
func AddPulseOpenSymbol(l *zap.SugaredLogger) *zap.SugaredLogger {
	return l.With(FieldSymbol, sym.PulseOpen)
}

// AddPulseCloseSymbol tags a logger with the shutdown glyph (❀).
func AddPulseCloseSymbol(l *zap.SugaredLogger) *zap.SugaredLogger {
	return l.With(FieldSymbol, sym.PulseClose)
}

// AddDBSymbol tags a logger with the storage glyph (⊔).
func AddDBSymbol(l *zap.SugaredLogger) *zap.SugaredLogger {
	return l.With(FieldSymbol, sym.DB)
}

// AddIXSymbol tags a logger with the ingest glyph (⨳).
func AddIXSymbol(l *zap.SugaredLogger) *zap.SugaredLogger {
	return l.With(FieldSymbol, sym.IX)
}

// AddATSymbol tags a logger with the calendar glyph (✦).
func AddATSymbol(l *zap.SugaredLogger) *zap.SugaredLogger {
	return l.With(FieldSymbol, sym.AT)
}
