// Package admission implements the shared gate that heavy jobs pass before
// touching the disk.
//
// A [Controller] grants at most MaxConcurrent slots and refuses new work
// while host CPU utilization is above CPULimit. Denials are immediate and
// carry a reason ([ReasonBusy] or [ReasonCPU]); callers are expected to
// retry later rather than queue.
//
// # Sampling
//
// Utilization comes from a [Sampler]. [SystemSampler] uses gopsutil. A
// failed CPU sample counts as 0%, so a broken sampler degrades to a plain
// concurrency limit instead of rejecting everything.
//
// # Scoped use
//
//	slot, err := gate.Enter()
//	if err != nil {
//	    return err // *DeniedError
//	}
//	defer slot.Release()
package admission
