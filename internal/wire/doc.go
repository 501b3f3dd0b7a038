// Package wire defines the JSON envelopes exchanged with the external
// handler over the broker.
//
// Both directions use the same layout: an outer envelope carrying a
// trace id, a timestamp and the source or target address, wrapping a
// tagged union {"type": <KindName>, "data": {...}}. The kind strings
// are a compatibility surface and must not change.
package wire
