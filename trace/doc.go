/*
Package trace implements the span lifecycle and the batched export pipeline.

# Overview

A Tracer creates Spans. Each Span carries an immutable SpanContext holding
its trace identity and baggage; baggage mutations produce a new context value
rather than mutating in place, so contexts can be shared across goroutines
freely. Finished spans are frozen into SpanData records and handed to a
Processor, which batches them by size and time and forwards batches to an
Exporter. The Exporter serializes each batch to the OTLP binary protobuf
format and posts size-capped sub-batches to the collector, each sub-batch an
independent unit of failure.

# Backpressure

The processor queue is bounded. When it is full, newly finished spans are
dropped rather than blocking the producing goroutine; tracing never stalls
application code. Drops and flush outcomes are reported through the
FinishEventHandler so hosts can monitor delivery rates.

# Propagation

A Propagator serializes trace identity and baggage to two header fields in
the W3C traceparent/baggage compact forms. Both header names can be remapped
to interoperate with gateways that rename them.
*/
package trace
