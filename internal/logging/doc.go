// Package logging builds the process-wide zap logger.
//
// The logger writes JSON or console lines to stderr through a redacting
// encoder, optionally tees into the OpenTelemetry log pipeline through the
// otelzap bridge, and samples below-error volume. Error and above are never
// sampled.
//
//	cfg := logging.NewDefaultConfig()
//	logger, err := logging.New(cfg, loggerProvider)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync(logger)
//
// Request-scoped correlation comes from the context:
//
//	logger.Info("question answered", logging.ContextFields(ctx)...)
//
// yields trace_id, span_id and request.id when present.
package logging
