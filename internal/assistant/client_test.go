package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

func serve(t *testing.T, handler fasthttp.RequestHandler) fasthttp.DialFunc {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	go func() { _ = fasthttp.Serve(ln, handler) }()
	t.Cleanup(func() { _ = ln.Close() })
	return func(string) (net.Conn, error) { return ln.Dial() }
}

func TestChatURL(t *testing.T) {
	require.Equal(t, "https://api.openai.com/v1/chat/completions", chatURL(""))
	require.Equal(t, "http://llm.local/v1/chat/completions", chatURL("http://llm.local/"))
	require.Equal(t, "http://llm.local/v1/chat/completions", chatURL("http://llm.local/v1"))
}

func TestAsk(t *testing.T) {
	var got chatRequest
	var auth string
	dial := serve(t, func(ctx *fasthttp.RequestCtx) {
		auth = string(ctx.Request.Header.Peek("Authorization"))
		_ = json.Unmarshal(ctx.PostBody(), &got)
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"choices":[{"message":{"role":"assistant","content":"  Take the centre.  "}}]}`)
	})
	c, err := NewClient("http://llm.test", "key", WithDial(dial), WithModel("tiny"), WithTimeout(2*time.Second))
	require.NoError(t, err)

	reply, err := c.Ask(context.Background(), "Best first move?")
	require.NoError(t, err)
	require.Equal(t, "Take the centre.", reply)
	require.Equal(t, "Bearer key", auth)
	require.Equal(t, "tiny", got.Model)
	require.Len(t, got.Messages, 2)
	require.Equal(t, "user", got.Messages[1].Role)
	require.Equal(t, "Best first move?", got.Messages[1].Content)
}

func TestAskStatusError(t *testing.T) {
	dial := serve(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusTooManyRequests)
		ctx.SetBodyString("slow down")
	})
	c, err := NewClient("http://llm.test", "key", WithDial(dial))
	require.NoError(t, err)

	_, err = c.Ask(context.Background(), "hi")
	var se *HTTPStatusError
	require.True(t, errors.As(err, &se))
	require.Equal(t, fasthttp.StatusTooManyRequests, se.StatusCode)
	require.Equal(t, "slow down", se.Body)
}

func TestAskNoChoices(t *testing.T) {
	dial := serve(t, func(ctx *fasthttp.RequestCtx) { ctx.SetBodyString(`{"choices":[]}`) })
	c, err := NewClient("http://llm.test", "key", WithDial(dial))
	require.NoError(t, err)
	_, err = c.Ask(context.Background(), "hi")
	require.ErrorContains(t, err, "no choices")
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient("", " ")
	require.Error(t, err)

	c, err := NewClient("", "key")
	require.NoError(t, err)
	_, err = c.Ask(context.Background(), "   ")
	require.Error(t, err)
}
