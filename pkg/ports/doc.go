/*
Package ports defines the driven ports (interfaces) of the triage router.

These interfaces decouple the routing core from external implementations, allowing
the workflow to run against different language models, tool backends, message brokers
and session stores.

# Key Interfaces

  - Responder: produces the next assistant reply for a conversation.
  - ToolInvoker: executes a named tool with decoded arguments.
  - Broker: declares queues, consumes deliveries and publishes envelopes.
  - SessionStore: persists conversation memory keyed by session id.
  - DistributedLocker: serializes session access across replicas.
  - Engine: the surface used by driving adapters (HTTP, MCP, queue consumer).
*/
package ports
