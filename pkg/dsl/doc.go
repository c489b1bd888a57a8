/*
Package dsl provides a Go DSL for programmatically constructing Parley flows.

It allows developers to define conversational flows with a fluent builder instead of
YAML or JSON documents. This is particularly useful for tests, embedding and generated
flows.

Example usage:

	b := dsl.New()

	main := b.Flow("main.flow")
	main.Node("ask_name").
		Say("#text", "What is your name?").
		Wait().
		Do("remember", map[string]any{"name": "{{event.text}}"}).
		Go("greet")

	main.Node("greet").
		Say("#text", "Nice to meet you!").
		Branch(`state.name == "admin"`, "admin.flow").
		End()

	store, err := b.Build() // *memory.FlowStore, usable as a ports.FlowStore
*/
package dsl
