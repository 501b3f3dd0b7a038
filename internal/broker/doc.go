// Package broker defines the transport contract between the bridge
// and the external handler, plus its three backends:
//
//   - Kafka: durable log, per-conversation ordering via partition keys
//   - MQTT: lightweight pub/sub, one shared connection with local fanout
//   - Pipe: zero-infrastructure stdout + named-pipe transport
//
// Subscribe streams are infinite and not restartable: a closed channel
// means the stream ended, and a fresh Subscribe call establishes a new
// underlying subscription.
package broker
