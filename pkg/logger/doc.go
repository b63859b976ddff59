// Package logger builds *slog.Logger instances with functional options,
// consistent attribute helpers and transparent injection of values stored in
// context.Context (request ids, client ids).
//
// New picks a text or JSON handler and wraps it with LogHandlerDecorator,
// which runs every registered ContextExtractor before a record is written.
//
//	log := logger.New(
//		logger.WithEnvironment("production", "authkit"),
//		logger.WithContextExtractors(requestid.LoggerExtractor()),
//	)
//	log.InfoContext(ctx, "session issued",
//		logger.UserID(user.ID),
//		logger.ClientID(clientID),
//	)
//
// Attribute helpers return an empty slog.Attr for nil or empty input, which
// slog drops from the output.
package logger
