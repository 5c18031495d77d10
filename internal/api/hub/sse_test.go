package hub

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSSEWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	sse := NewSSEWriter(rec, rec)

	require.NoError(t, sse.SendRetry(3000))
	require.NoError(t, sse.SendEvent("UnreadNotificationCount", 4))
	require.NoError(t, sse.SendEvent("connected", map[string]string{"connectionId": "c1"}))

	assert.Equal(t,
		"retry: 3000\n\n"+
			"event: UnreadNotificationCount\ndata: 4\n\n"+
			"event: connected\ndata: {\"connectionId\":\"c1\"}\n\n",
		rec.Body.String())
	assert.True(t, rec.Flushed)
}

func TestSSEWriter_EncodeError(t *testing.T) {
	rec := httptest.NewRecorder()
	sse := NewSSEWriter(rec, rec)

	err := sse.SendEvent("bad", make(chan int))
	require.Error(t, err)
	assert.Empty(t, rec.Body.String())
}
