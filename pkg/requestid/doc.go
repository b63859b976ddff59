// Package requestid correlates log records of one HTTP request.
//
// Middleware keeps a caller-supplied X-Request-ID when it is made of
// letters, digits, '-' and '_' and is at most 128 characters long; anything
// else is replaced by a fresh UUID. LoggerExtractor plugs the id into
// logger.New via logger.WithContextExtractors.
package requestid
