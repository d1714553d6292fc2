/*
Package ports defines the driven ports (interfaces) for the keeper engine.

These interfaces decouple the rules core from external implementations, so the
engine works unchanged against different storage backends, lock services and
narrative generators.

# Key Interfaces

  - StateStore: persists and loads session Snapshots.
  - DistributedLocker: serializes access to a session across replicas.
  - Generator: the external narrative generator (a language model, or a script).
*/
package ports
