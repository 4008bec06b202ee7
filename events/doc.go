// Package events carries simulation events over an in-process watermill
// gochannel pub/sub.
//
// Bus implements simulator.EventSink, so a simulator configured with
// simulator.WithSink(bus) streams its log to every subscriber as it is
// produced. Publish waits for subscribers to acknowledge, which keeps each
// subscriber's stream in log order.
package events
