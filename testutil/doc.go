/*
Package testutil provides fixtures for token ring tests.

# Configuration

Ring configurations suited to tests (short intervals, small queues) are built
with options:

	cfg := testutil.NewTestRingConfig(
	    testutil.WithPassword("secret"),
	    testutil.WithMaxMembers(2),
	)

# Keys and packets

Deterministic key pairs make signatures reproducible across runs:

	kp := testutil.KeyPair(t, 1)
	packet := testutil.SignedPacket(t, kp, "alpha", 42, protocol.Leave{})

# Time

FakeClock is a settable time source for stations, replay guards and clocks:

	clock := testutil.NewFakeClock(time.Unix(1700000000, 0))
	clock.Advance(5 * time.Second)

This package is intended for tests only.
*/
package testutil
