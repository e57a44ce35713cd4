/*
Package sdr allows to build software defined radio receive chains out of
concurrent blocks connected by bounded streams.

Concept

Every block runs its own goroutine and exchanges samples with peers through
stream.Stream, a single producer single consumer ring buffer. Streams apply
backpressure: a producer blocks while its output is full and a consumer
blocks while its input is empty. Samples are never dropped.

A receive chain usually looks like this:

    source -> IQ corrector -> [decimator] -> splitter -> FFT tap
                                                     -> VFO -> demodulator -> sink
                                                     -> VFO -> sink

The VFO translates the channel of interest to zero frequency and resamples
it to the output rate. The signalpath package assembles the whole chain and
allows to add, remove and retune VFOs while it runs.

Blocks

Blocks embed Worker, which implements the lifecycle:

    Start - spawns the worker goroutine;
    Stop - interrupts all streams of the block and waits for the worker;
    TempStop and TempStart - pause and resume the worker, so the block can be rewired.

Worker calls the run function of the block until it returns an error.
io.EOF means the block was stopped or its input is exhausted. Any other
error is recorded and returned by Err.

Stage is a generic block with a single input and a single output. It keeps
processed output across pauses, so pausing a stage doesn't change what its
consumer receives.

Reconfiguration

Parameters that change the structure of a block are updated while the
block is paused:

    err := b.Reconfigure(func() error {
        // replace streams, filters, etc
        return nil
    })

Parameters that can be applied at a sample boundary are stored atomically
and updated with Locked, without pausing the block. That's how VFO offset
is changed without a discontinuity in the output.

Graph

Graph starts and stops connected blocks as a unit and allows to add and
remove blocks while running. Graph.Wait blocks until all workers exit and
returns their merged errors.
*/
package sdr
