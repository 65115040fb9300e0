// Package pubsub tracks channel subscriptions over a single RESP connection
// and fans server pushes out to consumer queues.
//
// A Subscriber owns one connection. Run is its only reader; Subscribe and
// Unsubscribe may be called from any goroutine. Each channel moves through
// Unsubscribed, Pending (SUBSCRIBE written, ack outstanding) and Subscribed.
// Consumers sharing a channel see exactly one Subscribed and one
// Unsubscribed event each, in registration order.
//
// Publisher is the write-side counterpart and is independent of any
// Subscriber.
package pubsub
