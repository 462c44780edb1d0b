package server

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := "первая строка\n\nвторая строка\nтретья"
	require.NoError(t, WriteFrame(&buf, FrameResponse, payload))

	msg, err := ReadMessage(bufio.NewReader(&buf))
	require.NoError(t, err)

	frameType, got := ParseFrame(msg)
	assert.Equal(t, FrameResponse, frameType)
	assert.Equal(t, payload, got)
}

func TestReadMessageSplitsConsecutiveMessages(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, FrameSystem, "one"))
	require.NoError(t, WriteFrame(&buf, FrameError, "two"))

	r := bufio.NewReader(&buf)
	first, err := ReadMessage(r)
	require.NoError(t, err)
	assert.Equal(t, "SYSTEM:::one", first)

	second, err := ReadMessage(r)
	require.NoError(t, err)
	assert.Equal(t, "ERROR:::two", second)

	_, err = ReadMessage(r)
	assert.Equal(t, io.EOF, err)
}

func TestReadMessageCleanDisconnect(t *testing.T) {
	_, err := ReadMessage(bufio.NewReader(strings.NewReader("")))
	assert.Equal(t, io.EOF, err)

	// Trailing whitespace with no sentinel is still a clean disconnect.
	_, err = ReadMessage(bufio.NewReader(strings.NewReader("\n \n")))
	assert.Equal(t, io.EOF, err)
}

func TestParseFrameWithoutSeparator(t *testing.T) {
	frameType, payload := ParseFrame("просто текст")
	assert.Empty(t, frameType)
	assert.Equal(t, "просто текст", payload)

	// Only the first separator splits; payloads may contain their own.
	frameType, payload = ParseFrame("RESPONSE:::a:::b")
	assert.Equal(t, FrameResponse, frameType)
	assert.Equal(t, "a:::b", payload)
}

// fakeAgent records calls and returns scripted values.
type fakeAgent struct {
	saved     bool
	cleared   bool
	ingested  string
	reflected bool
	chain     []string
	err       error
}

func (a *fakeAgent) HandleImpulse(_ context.Context, text string) (string, error) {
	return "echo: " + text, a.err
}

func (a *fakeAgent) IngestFact(_ context.Context, fact string) (string, error) {
	a.ingested = fact
	return "Noted: " + fact, a.err
}

func (a *fakeAgent) TriggerReflection(_ context.Context) (int, error) {
	a.reflected = true
	return 3, a.err
}

func (a *fakeAgent) TraceChain(_ string) []string { return a.chain }
func (a *fakeAgent) ClearCache()                  { a.cleared = true }
func (a *fakeAgent) Save() error {
	a.saved = true
	return a.err
}

func TestHandleCommandPassthrough(t *testing.T) {
	_, handled, err := HandleCommand(context.Background(), &fakeAgent{}, "обычное сообщение")
	require.NoError(t, err)
	assert.False(t, handled, "plain input must run through the cognitive cycle")
}

func TestHandleCommandSaveAndClear(t *testing.T) {
	agent := &fakeAgent{}

	reply, handled, err := HandleCommand(context.Background(), agent, "!save")
	require.NoError(t, err)
	assert.True(t, handled)
	assert.True(t, agent.saved)
	assert.Equal(t, "Memory state saved.", reply)

	reply, handled, err = HandleCommand(context.Background(), agent, "!clear_memory")
	require.NoError(t, err)
	assert.True(t, handled)
	assert.True(t, agent.cleared)
	assert.Equal(t, "Conversation cache cleared.", reply)
}

func TestHandleCommandFact(t *testing.T) {
	agent := &fakeAgent{}

	_, handled, err := HandleCommand(context.Background(), agent, "!fact")
	assert.True(t, handled)
	require.Error(t, err)

	reply, handled, err := HandleCommand(context.Background(), agent, "!fact любимый цвет — синий")
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, "любимый цвет — синий", agent.ingested)
	assert.Equal(t, "Noted: любимый цвет — синий", reply)
}

func TestHandleCommandReflect(t *testing.T) {
	agent := &fakeAgent{}
	reply, handled, err := HandleCommand(context.Background(), agent, "!reflect")
	require.NoError(t, err)
	assert.True(t, handled)
	assert.True(t, agent.reflected)
	assert.Equal(t, "Reflection complete: 3 topic(s) merged.", reply)
}

func TestHandleCommandTrace(t *testing.T) {
	agent := &fakeAgent{chain: []string{"impulse_1", "response_1"}}

	reply, handled, err := HandleCommand(context.Background(), agent, "!trace impulse_1")
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, "Cognitive chain:\nimpulse_1\nresponse_1", reply)

	agent.chain = nil
	_, _, err = HandleCommand(context.Background(), agent, "!trace missing")
	require.Error(t, err)

	_, _, err = HandleCommand(context.Background(), agent, "!trace")
	require.Error(t, err)
}

func TestHandleCommandUnknown(t *testing.T) {
	_, handled, err := HandleCommand(context.Background(), &fakeAgent{}, "!bogus")
	assert.True(t, handled)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "!bogus")
}
