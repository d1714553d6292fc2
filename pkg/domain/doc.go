/*
Package domain contains the data model of a keeper session.

It defines the actors that take part in a session, the persisted Snapshot that
captures everything needed to resume it, the sentinel errors shared across
packages, and the lifecycle hooks used for observability. The package performs
no I/O; persistence goes through the ports.StateStore interface.

# Key Entities

  - Actor: a player character or NPC with characteristics, clamped resources
    (hp, san, mp, luck), and skills.
  - Snapshot: the whole session state (phase, actors, turn state, history,
    clues, usage counters) as it is persisted.
  - SnapshotDiff: the changes between two snapshots, for clients that apply
    partial updates.
*/
package domain
