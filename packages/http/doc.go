// Package http builds and sends the requests of a test case.
//
// It wraps the standard library's http package with:
//   - Declarative request construction from a base URL and a RequestSpec
//   - Configurable timeouts, redirects and default headers
//   - Fully read responses with a lazily parsed JSON document
//   - Typed errors separating configuration mistakes from transport failures
//
// Only GET, POST, PUT, PATCH and DELETE are supported.
package http
