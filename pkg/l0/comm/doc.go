// Package comm provides L0 protocol support.
package comm

// L0 protocol is communicated between the host and a microcontroller
// (e.g. an Arduino sketch) over a peer-to-peer byte channel, usually a
// serial port.
//
// Messages are text lines. The host sends commands shaped like
// "d/write/3?val=1\n". The peer answers with exactly one JSON reply per
// command, e.g. {"msg":"OK","port":3,"val":1}, and may interleave
// unsolicited JSON events, e.g. {"event":"ai","data":{...}}. Once the peer
// finishes booting it prints a plain READY line.
//
// Replies carry no command identifier, they are matched purely by
// arrival order. For this reason at most one command is in flight at any
// time, and the peer's small receive buffer is protected by a command
// length cap enforced before anything is written.
//
// Producer: L0 firmware
// Consumer: host (L1)
