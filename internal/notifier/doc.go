// Package notifier delivers chat messages asynchronously.
//
// Notify enqueues and returns; workers send through the transport adapter
// with a shared token-bucket rate limit, retry with jittered backoff and
// suppress identical messages within the dedup window. Dedup keys can be
// persisted to storage so a restart does not repeat a ping.
package notifier
