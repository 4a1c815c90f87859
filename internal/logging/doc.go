// Package logging provides structured logging for vimsaver.
//
// This package wraps Go's log/slog. A single [Logger] is built from
// configuration at startup and handed down to the inspector, the multiplexer
// backends, the recognizers and both engines; components derive child loggers
// carrying their own context instead of reaching for a global logger.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger(logging.Options{Level: "DEBUG"})
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	logger.Warn("cannot resume process", "pid", 4242)
//
// # Context Propagation
//
//	passLogger := logger.WithSession("vimsaver").WithPass(2)
//	passLogger.WithWindow(3).WithServer("NOTES").Debug("extracted buffers", "count", 4)
//
// Output (text format):
//
//	level=DEBUG msg="extracted buffers" session=vimsaver pass=2 window=3 server=NOTES count=4
//
// # Log Files
//
// When [Options.File] is set, output is JSON and goes through a
// lumberjack rotating writer sized by MaxSizeMB and MaxBackups:
//
//	logging:
//	  level: debug
//	  file: ~/.local/state/vimsaver/vimsaver.log
//	  max_size_mb: 10
//	  max_backups: 3
//
// # Testing
//
// Use [NopLogger] to discard output, or pass a buffer as [Options.Writer].
package logging
