package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	provider  string
	model     string
	failures  int // number of initial StreamChat calls that fail
	err       error
	transient bool
	calls     int
	reply     string
}

func (f *fakeClient) Provider() string { return f.provider }
func (f *fakeClient) Model() string    { return f.model }

func (f *fakeClient) StreamChat(ctx context.Context, messages []Message) (<-chan StreamChunk, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, f.err
	}

	ch := make(chan StreamChunk, 2)
	ch <- NewTextChunk(f.reply)
	ch <- NewFinalChunk(StopReasonStop, &LLMUsage{TotalTokens: 1})
	close(ch)
	return ch, nil
}

func (f *fakeClient) IsTransientError(err error) bool { return f.transient }

func collectText(t *testing.T, ch <-chan StreamChunk) string {
	t.Helper()
	var out string
	for chunk := range ch {
		for _, b := range chunk.ContentBlocks {
			if b.Type == BlockTypeText {
				out += b.Text
			}
		}
	}
	return out
}

func TestFallbackClientUsesPrimary(t *testing.T) {
	primary := &fakeClient{provider: "hf", model: "m1", reply: "primary"}
	backup := &fakeClient{provider: "ollama", model: "m2", reply: "backup"}
	fb := &FallbackClient{Clients: []LLMClient{primary, backup}, MaxRetries: 1}

	ch, err := fb.StreamChat(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, "primary", collectText(t, ch))
	require.Zero(t, backup.calls)

	require.Equal(t, "hf", fb.Provider())
	require.Equal(t, "m1", fb.Model())
}

func TestFallbackClientFailsOver(t *testing.T) {
	primary := &fakeClient{provider: "hf", model: "m1",
		failures: 99, err: errors.New("model not found")}
	backup := &fakeClient{provider: "ollama", model: "m2", reply: "backup"}
	fb := &FallbackClient{Clients: []LLMClient{primary, backup}, MaxRetries: 2}

	ch, err := fb.StreamChat(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, "backup", collectText(t, ch))
	// 非暫時性錯誤不重試，直接換下一個提供者
	require.Equal(t, 1, primary.calls)
}

func TestFallbackClientRetriesTransientErrors(t *testing.T) {
	flaky := &fakeClient{provider: "hf", model: "m1",
		failures: 1, err: errors.New("503"), transient: true, reply: "recovered"}
	fb := &FallbackClient{
		Clients:    []LLMClient{flaky},
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
	}

	ch, err := fb.StreamChat(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, "recovered", collectText(t, ch))
	require.Equal(t, 2, flaky.calls)
}

func TestFallbackClientAllFail(t *testing.T) {
	c1 := &fakeClient{provider: "hf", failures: 99, err: errors.New("down")}
	c2 := &fakeClient{provider: "ollama", failures: 99, err: errors.New("also down")}
	fb := &FallbackClient{Clients: []LLMClient{c1, c2}, MaxRetries: 1}

	_, err := fb.StreamChat(context.Background(), nil)
	require.Error(t, err)
	require.ErrorContains(t, err, "also down")
	require.False(t, fb.IsTransientError(err))
}
