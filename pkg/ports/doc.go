/*
Package ports defines the driven ports (interfaces) of the Parley dialog engine.

These interfaces decouple the core logic from external implementations, allowing
the engine to work with various flow sources and persistence backends.

# Key Interfaces

  - FlowStore: Supplies the immutable set of Flow definitions (e.g., from files, Loam or memory).
  - Watchable: Optional change notification for FlowStores (cache invalidation).
  - StateStore: Key-value persistence for session state and engine-owned session context.
  - DistributedLocker: Coordinates per-session access across replicas.
*/
package ports
