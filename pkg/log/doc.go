/*
Package log provides structured logging for hypernet using zerolog.

Both the coordinator and every node process log through the package-level
Logger. Node processes tag every line with their label so the interleaved
output of 2^d processes can be filtered per node:

	log.Init(log.Config{Level: log.DebugLevel, JSONOutput: true})

	logger := log.WithLabel("node", 5)
	logger.Info().Str("kind", "Propagate").Msg("request handled")

	{"level":"info","component":"node","label":5,"kind":"Propagate","time":"...","message":"request handled"}

Console output (the default for interactive CLI use) renders the same fields
in human-readable form. Before Init is called the Logger writes JSON to stderr,
so packages used as a library never print to stdout.
*/
package log
