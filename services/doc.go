/*
# Services Package

The services package hosts a running station behind HTTP and persists the
coordinator's membership.

## Components

### StationService (`station_service.go`)

Wraps a `station.Handle`:
  - consumes the station's deliveries into a bounded history
  - invokes an optional callback per delivery (the chat commands print them)
  - serves the ring API

### Stores (`store.go`)

`Store` extends `station.MembershipStore` with loading and reset:
  - `PostgresStore` keeps current members in `ring_members` and appends every
    join and leave to `ring_events`
  - `InMemoryStore` for tests and rings without a database

## HTTP API

	GET  /ring/status     station.Status of this station
	GET  /ring/members    current members (coordinator only, 404 elsewhere)
	GET  /ring/messages   recorded deliveries, ?since=<seq> for newer ones
	POST /ring/messages   {"destination": "bob", "payload": "<base64>"}
	POST /ring/leave      leave the ring (closes it on the coordinator)

The GET endpoints allow cross-origin reads. Packets between stations use the
transport package's `POST /packet` route, mounted on the same server.

## Errors

A stopped station answers 503, a station too busy to answer within the
request timeout 504, and rejected sends 400.
*/
package services
