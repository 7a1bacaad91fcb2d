package turn

import (
	"context"
	"errors"
	"testing"

	"github.com/danmuck/edgegate/internal/activity"
	"github.com/danmuck/edgegate/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSender struct {
	sent    []*activity.Activity
	deleted []activity.ConversationReference
}

func (c *captureSender) SendActivities(_ context.Context, state *State, activities []*activity.Activity) ([]activity.ResourceResponse, error) {
	out := make([]activity.ResourceResponse, len(activities))
	for i, a := range activities {
		if a.IsType(activity.TypeInvokeResponse) {
			state.Set(InvokeResponseKey, a)
		} else {
			c.sent = append(c.sent, a)
		}
		out[i] = activity.ResourceResponse{ID: a.ID}
	}
	return out, nil
}

func (c *captureSender) UpdateActivity(_ context.Context, a *activity.Activity) (activity.ResourceResponse, error) {
	return activity.ResourceResponse{ID: a.ID}, nil
}

func (c *captureSender) DeleteActivity(_ context.Context, ref activity.ConversationReference) error {
	c.deleted = append(c.deleted, ref)
	return nil
}

func inbound() *activity.Activity {
	return &activity.Activity{
		Type:         activity.TypeInvoke,
		ID:           "in-1",
		ChannelID:    "test",
		From:         &activity.ChannelAccount{ID: "user"},
		Recipient:    &activity.ChannelAccount{ID: "bot"},
		Conversation: &activity.ConversationAccount{ID: "c1"},
	}
}

func TestStateOperations(t *testing.T) {
	testlog.Start(t)
	s := NewState()
	assert.False(t, s.Has("a"))
	s.Set("b", 2)
	s.Set("a", 1)
	v, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, []string{"a", "b"}, s.Keys())
	s.Delete("a")
	assert.False(t, s.Has("a"))
}

func TestRunThreadsFreshStatePerTurn(t *testing.T) {
	testlog.Start(t)
	sender := &captureSender{}
	handler := HandlerFunc(func(ctx context.Context, tc *Context) error {
		_, found := tc.InvokeResponse()
		assert.False(t, found, "state must start empty")
		_, err := tc.SendActivity(ctx, &activity.Activity{Type: activity.TypeInvokeResponse, ID: "ir"})
		return err
	})

	first, err := Run(context.Background(), inbound(), sender, handler)
	require.NoError(t, err)
	second, err := Run(context.Background(), inbound(), sender, handler)
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	got, ok := CapturedInvokeResponse(first)
	require.True(t, ok)
	assert.Equal(t, "ir", got.ID)
	assert.Empty(t, sender.sent)
}

func TestRunRecoversPanicAndKeepsState(t *testing.T) {
	testlog.Start(t)
	state, err := Run(context.Background(), inbound(), nil, HandlerFunc(func(ctx context.Context, tc *Context) error {
		tc.State.Set("seen", true)
		panic("pipeline exploded")
	}))
	require.Error(t, err)
	require.NotNil(t, state)
	assert.True(t, state.Has("seen"))
}

func TestRunReturnsHandlerError(t *testing.T) {
	testlog.Start(t)
	boom := errors.New("boom")
	_, err := Run(context.Background(), inbound(), nil, HandlerFunc(func(ctx context.Context, tc *Context) error {
		return boom
	}))
	assert.ErrorIs(t, err, boom)
}

func TestContextReplyAndDelete(t *testing.T) {
	testlog.Start(t)
	sender := &captureSender{}
	tc := NewContext(inbound(), sender)

	reply := tc.Reply("hello")
	assert.Equal(t, "c1", reply.ConversationID())
	assert.Equal(t, "in-1", reply.ReplyToID)
	assert.Equal(t, "bot", reply.From.ID)

	require.NoError(t, tc.DeleteActivity(context.Background(), "old"))
	require.Len(t, sender.deleted, 1)
	assert.Equal(t, "old", sender.deleted[0].ActivityID)
	assert.Equal(t, "c1", sender.deleted[0].Conversation.ID)

	_, err := NewContext(inbound(), nil).SendActivity(context.Background(), reply)
	assert.Error(t, err)
}
