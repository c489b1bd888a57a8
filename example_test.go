package parley_test

import (
	"context"
	"fmt"
	"log"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/dsl"
	"github.com/aretw0/parley/pkg/output"
)

// ExampleNew_library demonstrates how to use Parley purely as a Go library,
// building the flows in code instead of reading them from the filesystem.
func ExampleNew_library() {
	b := dsl.New()
	b.Flow("main").
		Node("start").Say("#text", "Hello from Memory!").Wait().Go("finish").
		Node("finish").Say("#text", "Goodbye.").End()

	flows, err := b.Build()
	if err != nil {
		log.Fatal(err)
	}

	// No file path needed ("") because we are providing a flow store.
	eng, err := parley.New("", parley.WithFlowStore(flows))
	if err != nil {
		log.Fatal(err)
	}

	eng.RegisterOutputProcessor(output.ProcessorFunc{
		Name: "stdout",
		Fn: func(_ context.Context, out output.Output) error {
			fmt.Println(out.Message.Value)
			return nil
		},
	})

	ctx := context.Background()
	eng.ProcessMessage(ctx, "session-mem", domain.Event{Type: domain.EventText, Text: "hi"})
	state := eng.ProcessMessage(ctx, "session-mem", domain.Event{Type: domain.EventText, Text: "bye"})
	fmt.Println("ended:", state == nil)

	// Output:
	// Hello from Memory!
	// Goodbye.
	// ended: true
}
