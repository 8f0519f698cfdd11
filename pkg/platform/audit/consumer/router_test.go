package consumer

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civitas/internal/platform/kafka/consumer"
	audit "civitas/pkg/platform/audit"
)

type recordingHandler struct {
	topics []string
}

func (h *recordingHandler) Handle(_ context.Context, msg *consumer.Message) error {
	h.topics = append(h.topics, msg.Topic)
	return nil
}

func TestRouterForwardsAuditTopics(t *testing.T) {
	handler := &recordingHandler{}
	router := NewRouter(slog.New(slog.NewTextHandler(io.Discard, nil)), handler)

	for _, topic := range audit.Topics() {
		err := router.Handle(context.Background(), &consumer.Message{Topic: topic})
		require.NoError(t, err)
	}
	assert.Equal(t, audit.Topics(), handler.topics)
}

func TestRouterSkipsUnexpectedTopics(t *testing.T) {
	handler := &recordingHandler{}
	router := NewRouter(slog.New(slog.NewTextHandler(io.Discard, nil)), handler)

	err := router.Handle(context.Background(), &consumer.Message{Topic: "orders.created", Key: []byte("k")})

	require.NoError(t, err)
	assert.Empty(t, handler.topics)
}
