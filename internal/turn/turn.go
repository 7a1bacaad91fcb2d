// Package turn runs one activity through the pipeline with turn-scoped state.
//
// State is threaded explicitly: Run creates it and returns it with the result.
package turn

import (
	"context"
	"fmt"

	"github.com/danmuck/edgegate/internal/activity"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Sender delivers outbound activities for a turn. The gateway adapter
// implements it; state is the turn's own State.
type Sender interface {
	SendActivities(ctx context.Context, state *State, activities []*activity.Activity) ([]activity.ResourceResponse, error)
	UpdateActivity(ctx context.Context, a *activity.Activity) (activity.ResourceResponse, error)
	DeleteActivity(ctx context.Context, ref activity.ConversationReference) error
}

// Handler is the pipeline callback.
type Handler interface {
	OnTurn(ctx context.Context, tc *Context) error
}

type HandlerFunc func(ctx context.Context, tc *Context) error

func (f HandlerFunc) OnTurn(ctx context.Context, tc *Context) error {
	return f(ctx, tc)
}

// Context is the view of one turn handed to the pipeline.
type Context struct {
	ID       string
	Activity *activity.Activity
	State    *State

	sender Sender
}

func NewContext(a *activity.Activity, sender Sender) *Context {
	return &Context{
		ID:       uuid.NewString(),
		Activity: a,
		State:    NewState(),
		sender:   sender,
	}
}

// Reply builds a message addressed back to the turn's inbound activity.
func (tc *Context) Reply(text string) *activity.Activity {
	out := &activity.Activity{Type: activity.TypeMessage, Text: text}
	return activity.ApplyConversationReference(out, activity.GetConversationReference(tc.Activity), false)
}

func (tc *Context) SendActivity(ctx context.Context, a *activity.Activity) (activity.ResourceResponse, error) {
	out, err := tc.SendActivities(ctx, []*activity.Activity{a})
	if err != nil {
		return activity.ResourceResponse{}, err
	}
	return out[0], nil
}

func (tc *Context) SendActivities(ctx context.Context, activities []*activity.Activity) ([]activity.ResourceResponse, error) {
	if tc.sender == nil {
		return nil, fmt.Errorf("turn %s: no sender", tc.ID)
	}
	return tc.sender.SendActivities(ctx, tc.State, activities)
}

func (tc *Context) UpdateActivity(ctx context.Context, a *activity.Activity) (activity.ResourceResponse, error) {
	if tc.sender == nil {
		return activity.ResourceResponse{}, fmt.Errorf("turn %s: no sender", tc.ID)
	}
	return tc.sender.UpdateActivity(ctx, a)
}

func (tc *Context) DeleteActivity(ctx context.Context, activityID string) error {
	if tc.sender == nil {
		return fmt.Errorf("turn %s: no sender", tc.ID)
	}
	ref := activity.GetConversationReference(tc.Activity)
	ref.ActivityID = activityID
	return tc.sender.DeleteActivity(ctx, ref)
}

// InvokeResponse returns the invokeResponse activity captured during the turn.
func (tc *Context) InvokeResponse() (*activity.Activity, bool) {
	return CapturedInvokeResponse(tc.State)
}

// CapturedInvokeResponse reads InvokeResponseKey from state.
func CapturedInvokeResponse(state *State) (*activity.Activity, bool) {
	if state == nil {
		return nil, false
	}
	v, ok := state.Get(InvokeResponseKey)
	if !ok {
		return nil, false
	}
	a, ok := v.(*activity.Activity)
	return a, ok && a != nil
}

// Run executes handler for one inbound activity and returns the turn's state.
// A handler panic is returned as an error.
func Run(ctx context.Context, a *activity.Activity, sender Sender, handler Handler) (state *State, err error) {
	tc := NewContext(a, sender)
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("turn", tc.ID).Interface("panic", r).Msg("turn handler panic")
			err = fmt.Errorf("turn %s: handler panic: %v", tc.ID, r)
		}
		state = tc.State
	}()
	if handler == nil {
		return tc.State, nil
	}
	err = handler.OnTurn(ctx, tc)
	return tc.State, err
}
