// Package middleware provides HTTP middleware for the image tagger API.
//
// It includes:
//   - Request logging in W3C Extended Log Format
//   - Prometheus request metrics
//   - Configurable filtering for health checks and status polling
package middleware
