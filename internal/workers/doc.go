/*
Package workers sizes the processing worker pool.

Containers frequently cap CPU through cgroups. Since Go 1.19 GOMAXPROCS
follows that cap while runtime.NumCPU still reports the host count, so every
helper here starts from GOMAXPROCS:

	// Describe calls mostly wait on the vision backend: 2 workers per CPU, at most 8
	n := workers.ForIO(8)

	// Decoding and re-encoding images: 1 per CPU
	n := workers.ForCPU(4)

	// Custom ratio
	n := workers.Count(3.0, 24)

# Environment Variable Override

PROCESSING_WORKERS replaces the computed value (still subject to the limit).
Invalid, zero or negative values are ignored.

	env:
	- name: PROCESSING_WORKERS
	  value: "2"

Lowering the worker count is the usual way to protect a small GPU box running
the vision model, since every worker may hold one request open against it.
*/
package workers
