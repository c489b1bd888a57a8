/*
Package parley is a dialog engine that drives multi-turn conversations through
declaratively defined flow graphs.

A flow is a named graph of nodes. Each node runs instructions when it is entered
(onEnter) and, if it waits for the user, when the next message arrives (onReceive).
Instructions either send messages ("say #text Hello") or call actions registered by the
host application. Edges carry conditions over the session state and the incoming event;
the first one that holds decides where the conversation goes next: another node, another
flow (a subflow call that can later return), or the end of the conversation.

# Concept

The engine owns the position of every session (flow, node and a bounded flow stack) and
persists it, together with the state produced by actions, through a StateStore. Flows
are read from a FlowStore. Both are ports, so Parley can be embedded in any transport:
a chat webhook, a queue consumer or the bundled CLI.

# Usage

	eng, err := parley.New("./flows") // Loam repository of flow documents
	if err != nil {
		log.Fatal(err)
	}

	_ = eng.RegisterAction("remember", func(ctx context.Context, s domain.State, e domain.Event, args map[string]any) (any, error) {
		next := maps.Clone(s)
		next["name"] = args["name"]
		return next, nil
	})

	eng.RegisterOutputProcessor(output.ProcessorFunc{
		Name: "stdout",
		Fn: func(ctx context.Context, out output.Output) error {
			fmt.Println(out.Message.Value)
			return nil
		},
	})
	eng.OnError(func(err error) { log.Println(err) })

	if err := eng.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer eng.Close()

	state := eng.ProcessMessage(ctx, "user-42", domain.Event{Type: "text", Text: "hi"})
	if state == nil {
		// the conversation ended
	}

Turns of the same session must not run concurrently; use pkg/session to serialize them.
*/
package parley
