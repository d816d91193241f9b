// Package transport moves encoded packets between stations.
//
// A Link is a station's point-to-point attachment: Send delivers a packet to
// another station's address and Receive suspends until the next inbound packet.
// Links never decode or verify packets; that is the station's job.
//
// Two implementations are provided: Hub links exchange packets in process
// (tests and single-binary demos) and HTTPLink exchanges them as POST /packet
// requests on a chi router.
package transport
