package eventbus

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	testRedisAddr string
	testContainer testcontainers.Container
	skipTests     bool
)

func setupRedisContainer() {
	ctx := context.Background()

	var containerErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				containerErr = fmt.Errorf("docker not available: %v", r)
			}
		}()
		req := testcontainers.ContainerRequest{
			Image:        "redis:7",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		}
		testContainer, containerErr = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: req,
			Started:          true,
		})
	}()
	if containerErr != nil {
		skipTests = true
		return
	}

	host, err := testContainer.Host(ctx)
	if err != nil {
		skipTests = true
		return
	}
	port, err := testContainer.MappedPort(ctx, "6379")
	if err != nil {
		skipTests = true
		return
	}
	testRedisAddr = host + ":" + port.Port()
}

func newTestPublisher(t *testing.T) *RedisStreamPublisher {
	t.Helper()
	if testRedisAddr == "" && !skipTests {
		setupRedisContainer()
	}
	if skipTests {
		t.Skip("docker not available, skipping redis event mirror test")
	}

	p, err := NewRedisStreamPublisher(RedisOptions{Addr: testRedisAddr, StreamKey: "agentcore:test:" + t.Name()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestNewRedisStreamPublisherRejectsEmptyAddr(t *testing.T) {
	_, err := NewRedisStreamPublisher(RedisOptions{})
	assert.Error(t, err)
}

func TestHandleEventXAddsToStream(t *testing.T) {
	p := newTestPublisher(t)
	ctx := context.Background()

	err := p.HandleEvent(ctx, Event{
		Type:      CycleCompleted,
		Timestamp: time.Now(),
		Payload:   map[string]any{"error": nil},
	})
	require.NoError(t, err)

	messages, _, err := p.ReadFrom(ctx, "0", 0)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, string(CycleCompleted), messages[0].Values["type"])
}

func TestReadFromReturnsNextCursorAfterMultipleEvents(t *testing.T) {
	p := newTestPublisher(t)
	ctx := context.Background()

	require.NoError(t, p.HandleEvent(ctx, Event{Type: CycleStarted, Timestamp: time.Now()}))
	require.NoError(t, p.HandleEvent(ctx, Event{Type: CycleCompleted, Timestamp: time.Now()}))

	messages, next, err := p.ReadFrom(ctx, "0", 0)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, messages[1].ID, next)

	more, _, err := p.ReadFrom(ctx, next, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, more)
}

func TestPublisherRegistersOnBusAndMirrorsEvents(t *testing.T) {
	p := newTestPublisher(t)
	bus := NewBus()
	_, err := bus.Register(p)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), Event{Type: DangerDetected, Payload: "lava"}))

	messages, _, err := p.ReadFrom(context.Background(), "0", 0)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, string(DangerDetected), messages[0].Values["type"])
}
