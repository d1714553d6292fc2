/*
Package session implements session management and persistence orchestration.

A Manager owns the read-modify-write cycle of every session: it loads the
snapshot, runs the engine, and saves the result only when every generator
round-trip succeeded. Work on one session is serialized with a ref-counted
lock map, optionally backed by a distributed locker so several replicas can
share a Redis store. Different sessions proceed in parallel.
*/
package session
