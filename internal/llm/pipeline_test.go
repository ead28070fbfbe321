package llm

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reply struct {
	text string
	err  error
}

// scriptedCompleter returns its replies in order and records every request.
type scriptedCompleter struct {
	mu       sync.Mutex
	replies  []reply
	requests []Request
}

func (s *scriptedCompleter) Complete(_ context.Context, req Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if len(s.replies) == 0 {
		return "", errors.New("no scripted reply")
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	return r.text, r.err
}

func (s *scriptedCompleter) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

var prompt = Static(Message{Role: RoleUser, Content: "hi"})

func TestObtainFencedJSONNeedsOneCall(t *testing.T) {
	fake := &scriptedCompleter{replies: []reply{{text: "```json\n{\"ok\": true}\n```"}}}
	p := NewPipeline(fake)

	obj, err := p.Obtain(context.Background(), "advice", prompt)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok": true}`, string(obj))
	assert.Equal(t, 1, fake.calls())
}

func TestObtainConvertsOnce(t *testing.T) {
	fake := &scriptedCompleter{replies: []reply{
		{text: "Rest and drink fluids."},
		{text: `{"advice":[{"step":"Rest"}]}`},
	}}
	p := NewPipeline(fake)

	obj, err := p.Obtain(context.Background(), "advice", prompt)
	require.NoError(t, err)
	assert.JSONEq(t, `{"advice":[{"step":"Rest"}]}`, string(obj))
	require.Equal(t, 2, fake.calls())

	conv := fake.requests[1]
	assert.True(t, conv.Deterministic)
	assert.Equal(t, "advice_convert", conv.Purpose)
	assert.Equal(t, conversionInstruction, conv.Messages[0].Content)
	assert.Equal(t, "Rest and drink fluids.", conv.Messages[1].Content)
}

func TestObtainIrreparableIsFormatError(t *testing.T) {
	fake := &scriptedCompleter{replies: []reply{
		{text: "I cannot answer that."},
		{text: "Still not JSON."},
		{text: `{"never":"reached"}`},
	}}
	p := NewPipeline(fake)

	_, err := p.Obtain(context.Background(), "advice", prompt)
	var ferr *FormatError
	require.ErrorAs(t, err, &ferr)
	assert.ErrorIs(t, err, ErrUnparseable)
	assert.Equal(t, "I cannot answer that.", ferr.Preview)
	assert.Equal(t, 2, fake.calls())
}

func TestObtainConversionFailureIsFormatError(t *testing.T) {
	fake := &scriptedCompleter{replies: []reply{
		{text: "plain words"},
		{err: NewProviderError(http.StatusBadGateway, errors.New("upstream"))},
	}}
	_, err := NewPipeline(fake).Obtain(context.Background(), "advice", prompt)

	var ferr *FormatError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, 2, fake.calls())
}

func TestObtainEmptyResponse(t *testing.T) {
	fake := &scriptedCompleter{replies: []reply{{text: "  \n"}}}
	_, err := NewPipeline(fake).Obtain(context.Background(), "advice", prompt)

	assert.ErrorIs(t, err, ErrEmptyResponse)
	assert.Equal(t, 1, fake.calls())
}

func TestObtainRetriesProviderFailures(t *testing.T) {
	fake := &scriptedCompleter{replies: []reply{
		{err: NewProviderError(http.StatusInternalServerError, errors.New("boom"))},
		{err: NewProviderError(0, errors.New("timeout"))},
		{text: `{"ok":1}`},
	}}
	obj, err := NewPipeline(fake).Obtain(context.Background(), "advice", prompt)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":1}`, string(obj))
	assert.Equal(t, 3, fake.calls())
}

func TestObtainExhaustsToUnavailable(t *testing.T) {
	t.Run("rate limited", func(t *testing.T) {
		fake := &scriptedCompleter{replies: []reply{
			{err: NewProviderError(http.StatusInternalServerError, errors.New("boom"))},
			{err: NewProviderError(http.StatusTooManyRequests, errors.New("slow down"))},
		}}
		_, err := NewPipeline(fake, WithMaxAttempts(2)).Obtain(context.Background(), "advice", prompt)

		var uerr *UnavailableError
		require.ErrorAs(t, err, &uerr)
		assert.Equal(t, 2, uerr.Attempts)
		assert.True(t, uerr.RateLimited)
		assert.Equal(t, quotaMessage, uerr.UserMessage())
		assert.Equal(t, 2, fake.calls())
	})

	t.Run("server errors", func(t *testing.T) {
		fake := &scriptedCompleter{}
		for i := 0; i < 3; i++ {
			fake.replies = append(fake.replies, reply{err: NewProviderError(http.StatusServiceUnavailable, errors.New("down"))})
		}
		_, err := NewPipeline(fake).Obtain(context.Background(), "advice", prompt)

		var uerr *UnavailableError
		require.ErrorAs(t, err, &uerr)
		assert.False(t, uerr.RateLimited)
		assert.Equal(t, unavailableMessage, uerr.UserMessage())
		assert.Equal(t, 3, fake.calls())
	})
}

func TestProviderErrorDetectsRateLimitMessage(t *testing.T) {
	assert.True(t, NewProviderError(0, errors.New("Rate limit exceeded for model")).RateLimited)
	assert.False(t, NewProviderError(http.StatusUnauthorized, errors.New("bad key")).RateLimited)
}

func TestDecode(t *testing.T) {
	fake := &scriptedCompleter{replies: []reply{{text: `{"name":"x","count":2}`}}}
	var out struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	require.NoError(t, NewPipeline(fake).Decode(context.Background(), "test", prompt, &out))
	assert.Equal(t, "x", out.Name)
	assert.Equal(t, 2, out.Count)

	fake = &scriptedCompleter{replies: []reply{{text: `{"count":"two"}`}}}
	err := NewPipeline(fake).Decode(context.Background(), "test", prompt, &out)
	var ferr *FormatError
	assert.ErrorAs(t, err, &ferr)
}
