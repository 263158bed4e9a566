// Package middleware provides HTTP middleware for the conversion API.
//
// It includes:
//   - Request logging in W3C Extended Log Format
//   - Prometheus request metrics labelled by route template
//   - Panic recovery that answers with a JSON 500
package middleware
