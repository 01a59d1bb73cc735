// Package msgs provides the bridge protocol and all message schemas.
package msgs

// The bridge protocol is communicated between a device bridge and
// remote clients over a message bus. Every payload is a Typed envelope
// wrapping a protobuf encoded message.
//
// Producer: device bridge (CommandReply, Event)
// Consumer: remote clients (CommandRequest)
