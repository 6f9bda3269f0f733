// Package kproc provides the process and scheduling core of a single-CPU
// kernel.
//
// The core is made of layered services:
//
//   - frame     – physical frame allocation from the boot memory map
//   - vm        – per-process address spaces and stacks
//   - registry  – the process table, ready queue and lifecycle transitions
//   - scheduler – FIFO round-robin selection with the kernel as idle fallback
//   - switcher  – timer preemption and cooperative yield
//
// The root package wires them together behind the Service façade. By
// default the core runs on a simulated machine, which makes the switch
// paths observable from ordinary Go code:
//
//	srv, _ := kproc.New()
//	rt := srv.Runtime()
//	pid, _ := rt.Spawn(ctx, "worker", nil, worker)
//	rt.Tick(18)
//	rec, _ := rt.Get(pid)
//
// For more details see the individual sub-packages.
package kproc
