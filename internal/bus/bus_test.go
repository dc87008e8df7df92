package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/lucasnoah/codepipeline-notifier/internal/events"
)

type recordingHandler struct {
	mu       sync.Mutex
	sources  []string
	inFlight int
	maxSeen  int
	err      error
	done     chan struct{}
	want     int
}

func (h *recordingHandler) Handle(_ context.Context, env *events.Envelope) error {
	h.mu.Lock()
	h.inFlight++
	if h.inFlight > h.maxSeen {
		h.maxSeen = h.inFlight
	}
	h.mu.Unlock()

	time.Sleep(time.Millisecond)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.inFlight--
	h.sources = append(h.sources, env.Source)
	if len(h.sources) == h.want {
		close(h.done)
	}
	return h.err
}

func startBus(t *testing.T, h EventHandler) *Bus {
	t.Helper()
	b, err := NewInMemoryBus(NewZerologAdapter(zerolog.Nop()))
	require.NoError(t, err)
	RegisterEventHandler(b, h)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- b.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-errCh
	})

	select {
	case <-b.Running():
	case <-time.After(5 * time.Second):
		t.Fatal("router did not start")
	}
	return b
}

const pipelineEvent = `{"source":"aws.codepipeline","detail-type":"CodePipeline Stage Execution State Change","detail":{"pipeline":"api","execution-id":"e","stage":"Build","state":"STARTED"}}`
const buildEvent = `{"source":"aws.codebuild","detail-type":"CodeBuild Build State Change","detail":{"build-id":"b"}}`

func TestBus_DeliversInOrderOneAtATime(t *testing.T) {
	h := &recordingHandler{done: make(chan struct{}), want: 3}
	b := startBus(t, h)

	for _, raw := range []string{pipelineEvent, buildEvent, pipelineEvent} {
		id, err := b.Publish([]byte(raw), "req-1")
		require.NoError(t, err)
		require.NotEmpty(t, id)
	}

	select {
	case <-h.done:
	case <-time.After(5 * time.Second):
		t.Fatal("events not handled")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	require.Equal(t, []string{"aws.codepipeline", "aws.codebuild", "aws.codepipeline"}, h.sources)
	require.Equal(t, 1, h.maxSeen)
}

func TestBus_HandlerErrorsDoNotBlock(t *testing.T) {
	h := &recordingHandler{done: make(chan struct{}), want: 2, err: errors.New("slack down")}
	b := startBus(t, h)

	_, err := b.Publish([]byte("not json"), "")
	require.NoError(t, err)
	_, err = b.Publish([]byte(pipelineEvent), "")
	require.NoError(t, err)
	_, err = b.Publish([]byte(buildEvent), "")
	require.NoError(t, err)

	select {
	case <-h.done:
	case <-time.After(5 * time.Second):
		t.Fatal("events not handled after a failure")
	}
}
