/*
Package log provides structured logging for the broker using zerolog.

It wraps zerolog to give every broker subsystem (ioloop, processor,
sender, supervise) a JSON or console logger with component-scoped
context fields, initialized once via Init.

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})
	log.Info("broker starting")

	ioLog := log.WithComponent("ioloop")
	ioLog.Debug().Uint64("conn", 4).Msg("accepted connection")

# Fatal

Fatal logs at fatal level and exits the process with code 1. This is
the broker's panic hook: any invariant violation (a parent missing on a
tree mutation, a subscriber list/set falling out of sync) should reach
Fatal rather than be silently tolerated.
*/
package log
