/*
Package triage routes chat messages between specialized conversational handlers.

Messages arrive from a queue (or the HTTP API), run through a fixed workflow graph of
handler nodes (a GP, an internal specialist and a psychologist by default), and a keyword
router decides after every node whether to continue, escalate, or stop. Handlers delegate
replies to a Responder (an LLM) and may call tools (web search, calculator) along the way.

# Architecture

The core follows Hexagonal Architecture: the graph, router and dispatch nodes are pure
Go, while language models, tool backends, brokers and session stores plug in through
the interfaces in pkg/ports.

  - pkg/graph: Builder, Compile and Run of the workflow graph.
  - pkg/router: keyword routing with fixed priority.
  - pkg/dispatch: Responder-backed nodes with tool rounds.
  - pkg/consumer: the queue receive loop with retries and a dead-letter queue.
  - pkg/session: per-session locking over a SessionStore.

# Usage

	g, err := triage.NewClinicGraph(triage.ClinicConfig{
		Responder: func(node, prompt string, tools []domain.Tool) ports.Responder {
			return openai.NewWithKey(key, openai.WithSystemPrompt(prompt), openai.WithTools(tools...))
		},
	})
	if err != nil {
		log.Fatal(err)
	}

	eng := triage.New(g, triage.WithSessionStore(memory.NewStore()))
	out, err := eng.Handle(ctx, domain.Inbound{SessionID: "s1", Message: "fever, "})
	fmt.Println(out.Sender, out.Reply)
*/
package triage
