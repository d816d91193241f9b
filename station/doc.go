// Package station implements the ring's coordinator and member state machines.
//
// A Station is either active (the coordinator) or passive (a member). The
// coordinator owns the Membership table, admits and removes members, and issues
// the token; members join, hold the token for one frame, and forward it to
// their successor.
//
// Each running station has three goroutines:
//
//   - receive: reads from the Link and decodes packets.
//   - send: writes queued, already signed packets to the Link.
//   - dispatch: the only goroutine that touches protocol state. It verifies
//     packets, runs role handlers, executes Handle commands, and ticks timers.
//
// They communicate through bounded channels. Packets are signed by dispatch at
// the moment they are queued.
//
// Topology changes are pushed by the coordinator as JoinReply packets to the
// members whose neighbors changed. Members pin the coordinator key from their
// first JoinReply and accept tokens from their current predecessor, or from
// the one before the last update while the ring re-links.
//
// A leaving member keeps passing tokens on until the coordinator confirms its
// departure with a Leave of its own.
package station
