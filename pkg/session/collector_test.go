package session_test

import (
	"context"
	"testing"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/output"
	"github.com/aretw0/parley/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector(t *testing.T) {
	c := session.NewCollector()
	ctx := context.Background()
	send := func(id, value string) {
		require.NoError(t, c.Send(ctx, output.Output{
			Message: domain.Message{Type: "#text", Value: value},
			Context: &domain.SessionContext{SessionID: id},
		}))
	}

	msgs := c.Capture("a", func() {
		send("a", "one")
		send("b", "other session")
		send("a", "two")
	})
	assert.Equal(t, []domain.Message{{Type: "#text", Value: "one"}, {Type: "#text", Value: "two"}}, msgs)

	send("a", "outside a capture")
	assert.Empty(t, c.Capture("a", func() {}))

	assert.NoError(t, c.Send(ctx, output.Output{Message: domain.Message{Value: "no context"}}))
}
