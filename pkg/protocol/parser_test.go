package protocol_test

import (
	"testing"

	"github.com/cperrin88/acquire/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSingleRecord(t *testing.T) {
	p := protocol.NewParser()
	msgs, err := p.Feed([]byte("100 Capabilities\nVersion: 1.2\nSend-Config: true\n\n"))
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	msg := msgs[0]
	assert.Equal(t, 100, msg.Code)
	assert.Equal(t, "Capabilities", msg.Reason)
	assert.Equal(t, "1.2", msg.Get("Version"))
	assert.True(t, msg.GetBool("Send-Config", false))
	assert.False(t, p.Pending())
}

func TestParseCaseInsensitiveKeys(t *testing.T) {
	p := protocol.NewParser()
	msgs, err := p.Feed([]byte("200 URI Start\nuri: http://a/x\nSIZE: 10\n\n"))
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	assert.Equal(t, "http://a/x", msgs[0].Get("URI"))
	assert.Equal(t, uint64(10), msgs[0].GetUint64("Size", 0))
}

func TestParseContinuationLines(t *testing.T) {
	p := protocol.NewParser()
	msgs, err := p.Feed([]byte("101 Log\nMessage: first\n second\n\tthird\n\n"))
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	assert.Equal(t, "first\nsecond\nthird", msgs[0].Get("Message"))
}

func TestParseArbitraryChunking(t *testing.T) {
	raw := "102 Status\nMessage: connecting\n\n201 URI Done\nURI: http://a/x\nSHA256-Hash: abc\n\n"

	for chunk := 1; chunk <= len(raw); chunk++ {
		p := protocol.NewParser()
		var got []*protocol.Message
		for off := 0; off < len(raw); off += chunk {
			end := off + chunk
			if end > len(raw) {
				end = len(raw)
			}
			msgs, err := p.Feed([]byte(raw[off:end]))
			require.NoError(t, err)
			got = append(got, msgs...)
		}
		require.Len(t, got, 2, "chunk size %d", chunk)
		assert.Equal(t, 102, got[0].Code)
		assert.Equal(t, 201, got[1].Code)
		assert.Equal(t, "abc", got[1].Get("SHA256-Hash"))
	}
}

func TestParseIncompleteRecordStaysBuffered(t *testing.T) {
	p := protocol.NewParser()
	msgs, err := p.Feed([]byte("200 URI Start\nURI: http://a/x\n"))
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.True(t, p.Pending())

	msgs, err = p.Feed([]byte("\n"))
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "http://a/x", msgs[0].Get("URI"))
}

func TestParseInvalidStatusLine(t *testing.T) {
	p := protocol.NewParser()
	_, err := p.Feed([]byte("garbage without code\nKey: Value\n\n"))
	require.ErrorIs(t, err, protocol.ErrInvalidStatusLine)
}

func TestParseDispatchOrder(t *testing.T) {
	raw := "100 Capabilities\n\n102 Status\nMessage: a\n\n102 Status\nMessage: b\n\n400 URI Failure\nURI: http://a/x\n\n"
	p := protocol.NewParser()
	msgs, err := p.Feed([]byte(raw))
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.Equal(t, []int{100, 102, 102, 400}, []int{msgs[0].Code, msgs[1].Code, msgs[2].Code, msgs[3].Code})
	assert.Equal(t, "a", msgs[1].Get("Message"))
	assert.Equal(t, "b", msgs[2].Get("Message"))
}

func TestEncodeRoundTrip(t *testing.T) {
	msg := protocol.NewMessage(600, "URI Acquire")
	msg.Set("URI", "http://a/x")
	msg.Set("Filename", "/tmp/x")
	msg.Set("Expected-SHA256", "abc")

	p := protocol.NewParser()
	msgs, err := p.Feed([]byte(msg.Encode()))
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.True(t, msg.Equal(msgs[0]))
}

func TestMessageSetReplaces(t *testing.T) {
	msg := protocol.NewMessage(102, "Status")
	msg.Set("Message", "one")
	msg.Set("message", "two")
	assert.Equal(t, "two", msg.Get("Message"))
	assert.Equal(t, 1, msg.Len())
}
