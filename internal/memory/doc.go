// Package memory keeps the process inside its container memory limit.
//
// [ConfigureFromEnv] turns MEMORY_LIMIT (usually injected through the
// Kubernetes Downward API) into a Go soft memory limit, leaving headroom for
// ffmpeg and libvips, which allocate outside the Go heap. An explicit
// GOMEMLIMIT always takes precedence.
//
// [Monitor] samples the heap and acts as a gate for the conversion queue:
// workers call Wait before each job and block while usage is above the
// pause threshold.
//
//	limit := memory.ConfigureFromEnv()
//	monitor := memory.NewMonitor(memory.DefaultConfig(), limit.Bytes)
//	monitor.Start()
//	defer monitor.Stop()
//
//	q, err := queue.Open(queue.Config{Dir: dir, Gate: monitor}, manip)
package memory
