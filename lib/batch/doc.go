// Package batch provides a generic single consumer batching pipeline with a
// bounded queue and drop-oldest backpressure.
//
// A Processor owns exactly one worker. The worker blocks until an item is
// queued, takes up to MaxBatchSize-1 further items that are already waiting and
// passes all of them to the handler in one call. Handler errors and panics are
// counted and the batch is dropped, the worker keeps running.
//
// Producers never block: if the queue is full the oldest queued item is evicted
// and counted as dropped. Newer data is preferred over older data.
//
// Lifecycle:
//
//	new --Start--> running --Stop--> stopped
//	new --Stop---> stopped
//
// Items can be put while the processor is new, they are processed after Start.
// Stop hands the remaining queued items to the handler before it returns. Put
// on a stopped processor returns ErrNotRunning.
//
// Counters are kept in a per processor go-metrics registry (processed, dropped,
// errors and a queue_depth gauge) and can be read with Stats or Registry.
package batch
