// Package http provides a small, composable HTTP client with
// request/response interceptors, default headers, basic auth,
// base URL resolution, request id propagation, and a retry
// mechanism with exponential backoff and jitter.
//
// Retries
//   - Controlled via Builder.WithRetries(maxRetries, retryDelay).
//   - Retries occur on:
//   - Transport errors (network failures)
//   - Timeouts (context deadline exceeded or net.Error timeout)
//   - HTTP 5xx responses
//   - 4xx responses are not retried.
//   - Errors returned by the transport that already are a ClientError
//     (for example a session error from an authenticating round tripper)
//     are surfaced as-is and never retried.
//
// Backoff Strategy
//   - Exponential backoff based on retryDelay: delay = retryDelay * 2^attempt
//   - Full jitter is applied: actual sleep is random in [0, delay).
//   - Delay is capped at 30 seconds and interrupted when the context ends.
//
// Notes
//   - Request bodies are re-sent by rebuilding the http.Request on each attempt.
//   - Interceptor errors are not retried and are surfaced immediately.
//   - A non-2xx response is returned together with an HTTPError so callers can
//     tell "the server answered" apart from "no response".
//   - Request and response bodies are logged at debug level only, with
//     credential fields masked.
package http
