// Package executable runs the external toolchain (cargo, ptx-linker) as
// subprocesses.
//
// Output of both standard streams is read line by line and delivered to
// caller-supplied sinks on the calling goroutine while the process runs. The
// complete text of each stream is also kept so that failures can be
// classified after the fact. Relative ordering between the two streams is not
// preserved; each stream on its own is delivered in order.
//
// A program that cannot be found on PATH is reported as CommandNotFound, a
// program that ran and exited non-zero as CommandFailed.
package executable
