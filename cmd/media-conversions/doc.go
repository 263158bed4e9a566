// Package main is the media-conversions server.
//
// It loads conversion declarations from CONVERSIONS_FILE, opens the SQLite
// media store and the configured disks, and serves the HTTP API. Queued
// conversions are persisted in a Pebble job store under QUEUE_DIR and run
// by a worker pool that backs off while the heap is close to GOMEMLIMIT.
//
// # Startup
//
//  1. GOMEMLIMIT is derived from MEMORY_LIMIT.
//  2. Configuration is read from the environment and an optional .env file.
//  3. The database, conversions file, image driver and disks are opened.
//  4. The job queue replays jobs left over from the previous run.
//  5. The API listens on PORT and Prometheus metrics on METRICS_PORT.
//
// # Shutdown
//
// On SIGINT or SIGTERM the API server stops accepting requests, the queue
// finishes the jobs its workers hold (jobs still waiting stay stored), and
// the metrics server goes down last.
package main
