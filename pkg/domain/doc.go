/*
Package domain contains the core domain models of the Parley dialog engine.

It defines the fundamental entities the engine moves through: Flows and their Nodes,
the conditioned Edges between them, and the per-session records the engine owns.
This package is kept pure and free of I/O, following Hexagonal Architecture principles.

# Key Entities

  - Flow: A named graph of Nodes for one conversational topic (identified by a ".flow" id).
  - Node: A step with onEnter/onReceive instructions and ordered outgoing Edges.
  - SessionContext: The engine-owned position of a session (flow, node, flow stack).
  - State: The opaque session state produced and consumed by actions.
  - Event: The inbound message that triggers a turn.
*/
package domain
