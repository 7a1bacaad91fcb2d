package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/danmuck/edgegate/internal/activity"
	"github.com/danmuck/edgegate/internal/protocol/session"
	"github.com/danmuck/edgegate/internal/testutil/testlog"
	"github.com/danmuck/edgegate/internal/turn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func convo(id string) *activity.ConversationAccount {
	return &activity.ConversationAccount{ID: id}
}

func TestSendActivitiesRoutesReplyAndSend(t *testing.T) {
	testlog.Start(t)
	sender := okSender(`{"id":"r1"}`)
	a := NewAdapter(sender, nil, AdapterOptions{ChannelID: "test"})

	out, err := a.SendActivities(context.Background(), turn.NewState(), []*activity.Activity{
		{Type: activity.TypeTyping, Conversation: convo("c1")},
		{Type: activity.TypeMessage, ReplyToID: "a1", Conversation: convo("c1"), Text: "hi"},
	})
	require.NoError(t, err)
	assert.Equal(t, []activity.ResourceResponse{{ID: "r1"}, {ID: "r1"}}, out)
	assert.Equal(t, []string{
		"POST /v3/conversations/c1/activities",
		"POST /v3/conversations/c1/activities/a1",
	}, sender.paths())

	req := sender.requests()[1]
	assert.Equal(t, session.ContentTypeJSON, req.ContentType())
	var sent activity.Activity
	require.NoError(t, json.Unmarshal(req.Body, &sent))
	assert.Equal(t, "hi", sent.Text)
}

func TestSendActivitiesPolicyTable(t *testing.T) {
	testlog.Start(t)
	sender := &fakeSender{respond: func(req *session.Request) (*session.Response, error) {
		switch req.Path {
		case "/v3/conversations/empty/activities":
			return session.NewResponse(http.StatusOK, nil), nil
		case "/v3/conversations/broken/activities":
			return session.NewResponse(http.StatusBadGateway, nil), nil
		case "/v3/conversations/lost/activities":
			return nil, session.ErrConnectionLost
		}
		return session.NewResponse(http.StatusOK, []byte(`{"id":"peer-id"}`)), nil
	}}
	a := NewAdapter(sender, nil, AdapterOptions{ChannelID: "slack"})
	state := turn.NewState()

	invoke := &activity.Activity{Type: activity.TypeInvokeResponse, ID: "ir"}
	require.NoError(t, invoke.SetValue(activity.InvokeResponse{Status: 200}))

	batch := []*activity.Activity{
		{Type: activity.TypeDelay, ID: "d", Value: json.RawMessage(`30`)},
		invoke,
		{Type: activity.TypeTrace, ID: "t-slack", Conversation: convo("c1")},
		{Type: activity.TypeTrace, ID: "t-emu", ChannelID: activity.EmulatorChannel, Conversation: convo("c1")},
		{Type: activity.TypeMessage, ID: "m-empty", Conversation: convo("empty")},
		{Type: activity.TypeMessage, ID: "m-broken", Conversation: convo("broken")},
		{Type: activity.TypeMessage, Conversation: convo("lost")},
	}

	start := time.Now()
	out, err := a.SendActivities(context.Background(), state, batch)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)

	require.Len(t, out, len(batch))
	assert.Equal(t, []activity.ResourceResponse{
		{ID: "d"},
		{ID: "ir"},
		{ID: "t-slack"},
		{ID: "peer-id"},
		{ID: "m-empty"},
		{ID: "m-broken"},
		{ID: ""},
	}, out)

	assert.Equal(t, []string{
		"POST /v3/conversations/c1/activities",
		"POST /v3/conversations/empty/activities",
		"POST /v3/conversations/broken/activities",
		"POST /v3/conversations/lost/activities",
	}, sender.paths())

	captured, ok := turn.CapturedInvokeResponse(state)
	require.True(t, ok)
	assert.Same(t, invoke, captured)
}

func TestInvokeResponseStoredOnlyOnceProcessed(t *testing.T) {
	testlog.Start(t)
	sender := okSender(`{"id":"x"}`)
	a := NewAdapter(sender, nil, AdapterOptions{})
	state := turn.NewState()

	assert.False(t, state.Has(turn.InvokeResponseKey))
	_, err := a.SendActivities(context.Background(), state, []*activity.Activity{
		{Type: activity.TypeInvokeResponse, ID: "ir"},
	})
	require.NoError(t, err)
	assert.True(t, state.Has(turn.InvokeResponseKey))
	assert.Empty(t, sender.requests())
}

func TestDelayIsCancellable(t *testing.T) {
	testlog.Start(t)
	sender := okSender(`{"id":"x"}`)
	a := NewAdapter(sender, nil, AdapterOptions{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := a.SendActivities(ctx, turn.NewState(), []*activity.Activity{
		{Type: activity.TypeDelay, Value: json.RawMessage(`60000`)},
		{Type: activity.TypeMessage, Conversation: convo("c1")},
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Empty(t, sender.requests())
}

func TestSendActivitiesRejectsMalformedBeforeSending(t *testing.T) {
	testlog.Start(t)
	sender := okSender(`{"id":"x"}`)
	a := NewAdapter(sender, nil, AdapterOptions{})

	_, err := a.SendActivities(context.Background(), nil, []*activity.Activity{
		{Type: activity.TypeMessage, Conversation: convo("c1")},
		nil,
	})
	assert.ErrorIs(t, err, ErrInvalidActivity)

	_, err = a.SendActivities(context.Background(), nil, []*activity.Activity{
		{Type: activity.TypeMessage, Conversation: convo("c1")},
		{Type: activity.TypeMessage, ReplyToID: "a1"},
	})
	assert.ErrorIs(t, err, ErrMissingConversation)
	assert.Empty(t, sender.requests())

	_, err = a.UpdateActivity(context.Background(), nil)
	assert.ErrorIs(t, err, ErrInvalidActivity)
	err = a.DeleteActivity(context.Background(), activity.ConversationReference{ActivityID: "a1"})
	assert.ErrorIs(t, err, ErrMissingConversation)
	assert.Empty(t, sender.requests())
}

func TestUpdateAndDeleteActivity(t *testing.T) {
	testlog.Start(t)
	sender := okSender(`{"id":"u1"}`)
	a := NewAdapter(sender, nil, AdapterOptions{})

	rr, err := a.UpdateActivity(context.Background(), &activity.Activity{Type: activity.TypeMessage, ID: "a 1", Conversation: convo("c/1")})
	require.NoError(t, err)
	assert.Equal(t, "u1", rr.ID)

	require.NoError(t, a.DeleteActivity(context.Background(), activity.ConversationReference{
		ActivityID:   "a1",
		Conversation: convo("c1"),
	}))
	assert.Equal(t, []string{
		"PUT /v3/conversations/c%2F1/activities/a%201",
		"DELETE /v3/conversations/c1/activities/a1",
	}, sender.paths())
}

func postMessages(t *testing.T, a *Adapter, act any) *session.Response {
	t.Helper()
	body, err := json.Marshal(act)
	require.NoError(t, err)
	return a.ServeRequest(context.Background(), session.NewRequest(http.MethodPost, MessagesPath, body))
}

func TestServeRequestInvokeReturnsCapturedResponse(t *testing.T) {
	testlog.Start(t)
	bot := turn.HandlerFunc(func(ctx context.Context, tc *turn.Context) error {
		if tc.Activity.Name != "answer" {
			return nil
		}
		ir := &activity.Activity{Type: activity.TypeInvokeResponse}
		if err := ir.SetValue(activity.InvokeResponse{Status: http.StatusAccepted, Body: json.RawMessage(`{"answer":42}`)}); err != nil {
			return err
		}
		_, err := tc.SendActivity(ctx, ir)
		return err
	})
	sender := okSender(`{"id":"x"}`)
	a := NewAdapter(sender, bot, AdapterOptions{ChannelID: "test"})

	resp := postMessages(t, a, activity.Activity{Type: activity.TypeInvoke, Name: "answer", Conversation: convo("c1")})
	assert.Equal(t, http.StatusAccepted, resp.Status)
	assert.JSONEq(t, `{"answer":42}`, string(resp.Body))

	resp = postMessages(t, a, activity.Activity{Type: activity.TypeInvoke, Name: "other", Conversation: convo("c1")})
	assert.Equal(t, http.StatusNotImplemented, resp.Status)

	resp = postMessages(t, a, activity.Activity{Type: activity.TypeMessage, Name: "answer", Conversation: convo("c1")})
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Empty(t, resp.Body)
	assert.Empty(t, sender.requests())
}

func TestServeRequestInvokeWithUnsendableStatusAnswers501(t *testing.T) {
	testlog.Start(t)
	bot := turn.HandlerFunc(func(ctx context.Context, tc *turn.Context) error {
		ir := &activity.Activity{Type: activity.TypeInvokeResponse}
		if err := ir.SetValue(activity.InvokeResponse{Status: 1200}); err != nil {
			return err
		}
		_, err := tc.SendActivity(ctx, ir)
		return err
	})
	a := NewAdapter(okSender(`{"id":"x"}`), bot, AdapterOptions{ChannelID: "test"})

	resp := postMessages(t, a, activity.Activity{Type: activity.TypeInvoke, Name: "answer", Conversation: convo("c1")})
	assert.Equal(t, http.StatusNotImplemented, resp.Status)
	_, err := session.EncodeResponseFrame(1, resp)
	require.NoError(t, err)
}

func TestServeRequestRejectsBadInput(t *testing.T) {
	testlog.Start(t)
	failing := turn.HandlerFunc(func(ctx context.Context, tc *turn.Context) error {
		return errors.New("pipeline failed")
	})
	a := NewAdapter(okSender(""), failing, AdapterOptions{})

	resp := a.ServeRequest(context.Background(), session.NewRequest(http.MethodPost, MessagesPath, []byte(`{`)))
	assert.Equal(t, http.StatusBadRequest, resp.Status)
	resp = a.ServeRequest(context.Background(), session.NewRequest(http.MethodPost, MessagesPath, []byte(`{}`)))
	assert.Equal(t, http.StatusBadRequest, resp.Status)
	resp = a.ServeRequest(context.Background(), session.NewRequest(http.MethodGet, MessagesPath, nil))
	assert.Equal(t, http.StatusMethodNotAllowed, resp.Status)
	resp = a.ServeRequest(context.Background(), session.NewRequest(http.MethodPost, "/api/other", nil))
	assert.Equal(t, http.StatusNotFound, resp.Status)

	resp = postMessages(t, a, activity.Activity{Type: activity.TypeMessage})
	assert.Equal(t, http.StatusInternalServerError, resp.Status)
}
