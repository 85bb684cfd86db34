// Package device is the contract between the tuning engine and a compute
// runtime: buffers, queues, compiled kernels and timing events.
package device

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrBuild reports a kernel that failed to compile or link.
	ErrBuild = errors.New("kernel build failed")
	// ErrDispatch reports a kernel launch the runtime rejected.
	ErrDispatch = errors.New("kernel dispatch failed")
	// ErrNoProfiling reports a device without profiling queues.
	ErrNoProfiling = errors.New("profiling not supported")
)

// Device is one compute device. Name identifies it in the config database.
type Device interface {
	Name() string
	LocalMemSize() int
	Alloc(size int) (Buffer, error)
	Queue() Queue
	NewProfilingQueue() (Queue, error)
	BuildKernel(spec BuildSpec) (Kernel, error)
}

// Clock is implemented by devices that keep their own time. Unprofiled
// measurement reads it instead of the host clock.
type Clock interface {
	Now() time.Time
}

// Buffer is device memory.
type Buffer interface {
	Size() int
	Write(data []byte) error
	Release() error
}

// Queue is an in-order command queue.
type Queue interface {
	Profiling() bool
	Finish() error
	Release() error
}

// Kernel is a compiled, invokable kernel. Arguments are Buffers and scalars.
type Kernel interface {
	Enqueue(q Queue, args ...any) (Event, error)
	Release() error
}

// Event is a completed or pending launch.
type Event interface {
	// Profile returns device timestamps in nanoseconds. ok is false when the
	// launch was not profiled.
	Profile() (start, end uint64, ok bool)
}

// Define is one "-D NAME=value" compiler option.
type Define struct {
	Name  string
	Value string
}

// BuildSpec is everything a runtime needs to compile and size one kernel.
type BuildSpec struct {
	File    string
	Name    string
	Defines []Define
	Local   [3]int
	Global  [3]int
}

// Flags renders the defines in the OpenCL compiler syntax.
func (s BuildSpec) Flags() string {
	var b strings.Builder
	for i, d := range s.Defines {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "-D %s=%s", d.Name, d.Value)
	}
	return b.String()
}

// Define looks up a define by name.
func (s BuildSpec) Define(name string) (string, bool) {
	for _, d := range s.Defines {
		if d.Name == name {
			return d.Value, true
		}
	}
	return "", false
}
