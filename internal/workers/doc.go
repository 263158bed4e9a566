/*
Package workers sizes and runs the conversion worker pool.

# Sizing

runtime.NumCPU reports the host's CPUs even inside a container with a CPU
limit. Count uses GOMAXPROCS instead, which Go 1.19+ sets from the cgroup
limit, and scales it by a workload multiplier:

	workers.ForCPU(8)   // 1 per CPU, at most 8
	workers.ForIO(16)   // 2 per CPU
	workers.ForMixed(8) // 1.5 per CPU

The CONVERSION_WORKERS environment variable overrides the calculation.
The limit still caps it:

	env:
	- name: CONVERSION_WORKERS
	  value: "4"

# Pool

Pool is a fixed set of goroutines reading from a buffered channel:

	pool := workers.NewPool(workers.ForMixed(8), 64, func(ctx context.Context, job Job) {
	    ...
	})
	pool.Start(ctx)
	_ = pool.Submit(ctx, job)
	pool.Close() // drains pending jobs

Submit blocks while the buffer is full and fails with ErrPoolClosed after
Close.
*/
package workers
