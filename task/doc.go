// Package task connects the processing engine to the task queue. A Task is
// the queued pointer to a pending transaction; the Handler loads the
// referenced records, runs them through the processor and optionally
// publishes the batch of results. The Consumer drives the Handler from a
// RabbitMQ queue.
//
// The engine assumes at most one delivery attempt per transaction per
// processing call; redelivery policy belongs to the broker configuration,
// not to this package.
package task
