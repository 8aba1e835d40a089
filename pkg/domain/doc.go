/*
Package domain contains the core types of the triage router.

It defines the conversation entities that flow through the workflow graph, the routing
decisions produced by the router, and the error taxonomy shared by every adapter. The
package is kept pure and free of I/O so it can be imported from both the core and the
adapters, following Hexagonal Architecture principles.

# Key Entities

  - Message: a single immutable conversation entry (human, assistant, tool or system).
  - State: the append-only conversation handed from node to node during one run.
  - Decision: the router's verdict (continue, terminate, terminate_sensitive, escalate).
  - Session: the retained conversation memory of a session id.
  - Inbound / Outcome: what the queue and HTTP surfaces hand to the engine and get back.
*/
package domain
