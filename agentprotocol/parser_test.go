package agentprotocol_test

import (
	"testing"
	"time"

	"github.com/h4mn/skybridge/agentprotocol"
	"github.com/h4mn/skybridge/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, p *agentprotocol.Parser) []agentprotocol.Event {
	t.Helper()
	var events []agentprotocol.Event
	done := make(chan struct{})
	go func() {
		for e := range p.Events() {
			events = append(events, e)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out draining events")
	}
	return events
}

func TestParserDecodesLogFrame(t *testing.T) {
	p := agentprotocol.New(logger.Discard, 0)
	_, err := p.Write([]byte("<skybridge_command>\n<command>log</command>\n<parametro name=\"mensagem\">hello</parametro>\n<parametro name=\"nivel\">info</parametro>\n</skybridge_command>"))
	require.NoError(t, err)
	p.Close()

	events := collect(t, p)
	require.Len(t, events, 1)
	assert.Equal(t, agentprotocol.KindLog, events[0].Kind)
	assert.Equal(t, "hello", events[0].LogMessage)
	assert.Equal(t, "info", events[0].LogLevel)
}

func TestParserHandlesFrameSplitAcrossWrites(t *testing.T) {
	p := agentprotocol.New(logger.Discard, 0)
	frame := "<skybridge_command>\n<command>checkpoint</command>\n<parametro name=\"mensagem\">halfway</parametro>\n</skybridge_command>"

	for i := 0; i < len(frame); i += 7 {
		end := i + 7
		if end > len(frame) {
			end = len(frame)
		}
		_, err := p.Write([]byte(frame[i:end]))
		require.NoError(t, err)
	}
	p.Close()

	events := collect(t, p)
	require.Len(t, events, 1)
	assert.Equal(t, agentprotocol.KindCheckpoint, events[0].Kind)
	assert.Equal(t, "halfway", events[0].CheckpointMessage)
}

func TestParserDropsOversizedFrameAndResyncs(t *testing.T) {
	p := agentprotocol.New(logger.Discard, 128)

	oversized := "<skybridge_command>" + string(make([]byte, 200)) + "</skybridge_command>"
	good := "<skybridge_command>\n<command>log</command>\n<parametro name=\"mensagem\">ok</parametro>\n</skybridge_command>"

	_, err := p.Write([]byte(oversized + good))
	require.NoError(t, err)
	p.Close()

	events := collect(t, p)
	require.Len(t, events, 1)
	assert.Equal(t, "ok", events[0].LogMessage)
}

func TestParserToleratesNestedTagInValue(t *testing.T) {
	p := agentprotocol.New(logger.Discard, 0)
	frame := `<skybridge_command>
<command>error</command>
<parametro name="mensagem">payload contains &lt;skybridge_command&gt; literally</parametro>
<parametro name="tipo">ParseError</parametro>
</skybridge_command>`

	_, err := p.Write([]byte(frame))
	require.NoError(t, err)
	p.Close()

	events := collect(t, p)
	require.Len(t, events, 1)
	assert.Equal(t, agentprotocol.KindError, events[0].Kind)
	assert.Contains(t, events[0].ErrorMessage, "<skybridge_command>")
}

func TestParserRecognizesFinalResultJSON(t *testing.T) {
	p := agentprotocol.New(logger.Discard, 0)
	_, err := p.Write([]byte("some free text\n{\"success\":true,\"changes_made\":true}\n"))
	require.NoError(t, err)
	p.Close()

	events := collect(t, p)
	require.Len(t, events, 2)
	assert.Equal(t, agentprotocol.KindTextChunk, events[0].Kind)
	assert.Equal(t, agentprotocol.KindFinalResult, events[1].Kind)
	assert.JSONEq(t, `{"success":true,"changes_made":true}`, string(events[1].FinalResultJSON))
}
