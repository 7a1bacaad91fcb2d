package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/edgegate/internal/activity"
	"github.com/danmuck/edgegate/internal/observability"
	"github.com/danmuck/edgegate/internal/protocol/session"
	"github.com/danmuck/edgegate/internal/turn"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Outbound policy names, also used as metric labels.
const (
	PolicyDelay      = "delay"
	PolicyInvoke     = "invokeResponse"
	PolicySuppressed = "suppressed"
	PolicyReply      = "reply"
	PolicySend       = "send"
)

// Adapter bridges one connection session and the turn pipeline. It is the
// session's inbound handler and the turn's Sender.
type Adapter struct {
	connector       *Connector
	handler         turn.Handler
	channelID       string
	emulatorChannel string
	log             zerolog.Logger
}

type AdapterOptions struct {
	// ChannelID fills inbound activities that carry none.
	ChannelID string
	// EmulatorChannel is the only channel that receives trace activities.
	EmulatorChannel string
	Logger          *zerolog.Logger
}

func NewAdapter(sender Sender, handler turn.Handler, opts AdapterOptions) *Adapter {
	l := log.Logger
	if opts.Logger != nil {
		l = *opts.Logger
	}
	if opts.EmulatorChannel == "" {
		opts.EmulatorChannel = activity.EmulatorChannel
	}
	l = l.With().Str("component", "adapter").Str("channel", opts.ChannelID).Logger()
	return &Adapter{
		connector:       NewConnector(sender, &l),
		handler:         handler,
		channelID:       opts.ChannelID,
		emulatorChannel: opts.EmulatorChannel,
		log:             l,
	}
}

// Connector exposes the full route surface of the peer behind this adapter.
func (a *Adapter) Connector() *Connector {
	return a.connector
}

func (a *Adapter) policy(act *activity.Activity) string {
	switch {
	case act.IsType(activity.TypeDelay):
		return PolicyDelay
	case act.IsType(activity.TypeInvokeResponse):
		return PolicyInvoke
	case act.IsType(activity.TypeTrace) && !strings.EqualFold(a.channelOf(act), a.emulatorChannel):
		return PolicySuppressed
	case act.HasReplyTarget():
		return PolicyReply
	default:
		return PolicySend
	}
}

func (a *Adapter) channelOf(act *activity.Activity) string {
	if act.ChannelID != "" {
		return act.ChannelID
	}
	return a.channelID
}

// SendActivities applies the outbound policy to each activity in order.
// The result has one entry per input, in input order. Activities that get no
// transport result are answered with their own id. Malformed input is
// rejected before anything is sent; cancellation returns ctx.Err().
func (a *Adapter) SendActivities(ctx context.Context, state *turn.State, activities []*activity.Activity) ([]activity.ResourceResponse, error) {
	policies := make([]string, len(activities))
	for i, act := range activities {
		if act == nil {
			return nil, fmt.Errorf("%w: activity %d is nil", ErrInvalidActivity, i)
		}
		policies[i] = a.policy(act)
		if policies[i] == PolicyReply || policies[i] == PolicySend {
			if err := requireConversation(act.ConversationID()); err != nil {
				return nil, fmt.Errorf("activity %d: %w", i, err)
			}
		}
	}

	responses := make([]activity.ResourceResponse, len(activities))
	for i, act := range activities {
		observability.RecordActivity(string(act.Type), policies[i])

		var reply Reply[activity.ResourceResponse]
		var err error
		switch policies[i] {
		case PolicyDelay:
			if err := sleepCtx(ctx, activity.DelayDuration(act)); err != nil {
				return nil, err
			}
		case PolicyInvoke:
			if state != nil {
				state.Set(turn.InvokeResponseKey, act)
			} else {
				a.log.Warn().Str("activity", act.ID).Msg("adapter invokeResponse outside a turn dropped")
			}
		case PolicySuppressed:
			a.log.Debug().Str("activity", act.ID).Msg("adapter trace suppressed")
		case PolicyReply:
			reply, err = a.connector.ReplyToActivity(ctx, act)
		case PolicySend:
			reply, err = a.connector.SendToConversation(ctx, act)
		}
		if err != nil {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if reply.Present {
			responses[i] = reply.Value
		} else {
			responses[i] = activity.ResourceResponse{ID: act.ID}
		}
	}
	return responses, nil
}

// UpdateActivity replaces an existing activity. The zero ResourceResponse is
// returned when the peer gives no result.
func (a *Adapter) UpdateActivity(ctx context.Context, act *activity.Activity) (activity.ResourceResponse, error) {
	if act == nil {
		return activity.ResourceResponse{}, fmt.Errorf("%w: nil activity", ErrInvalidActivity)
	}
	reply, err := a.connector.UpdateActivity(ctx, act)
	if err != nil {
		return activity.ResourceResponse{}, err
	}
	return reply.Value, nil
}

// DeleteActivity removes ref.ActivityID from ref.Conversation. Peer and
// transport failures are logged, not returned.
func (a *Adapter) DeleteActivity(ctx context.Context, ref activity.ConversationReference) error {
	if ref.Conversation == nil {
		return ErrMissingConversation
	}
	reply, err := a.connector.DeleteActivity(ctx, ref.Conversation.ID, ref.ActivityID)
	if err != nil {
		return err
	}
	if !reply.Delivered() {
		a.log.Warn().Str("activity", ref.ActivityID).Int("status", reply.Status).Err(reply.Err).
			Msg("adapter delete not acknowledged")
	}
	return nil
}

// ServeRequest handles peer-initiated requests. Only POST /api/messages is routed.
func (a *Adapter) ServeRequest(ctx context.Context, req *session.Request) *session.Response {
	path, _, _ := strings.Cut(req.Path, "?")
	if path != MessagesPath {
		return session.NewResponse(http.StatusNotFound, nil)
	}
	if req.Verb != http.MethodPost {
		return session.NewResponse(http.StatusMethodNotAllowed, nil)
	}

	var act activity.Activity
	if err := json.Unmarshal(req.Body, &act); err != nil {
		a.log.Warn().Err(err).Msg("adapter inbound activity decode")
		return session.NewResponse(http.StatusBadRequest, nil)
	}
	if strings.TrimSpace(string(act.Type)) == "" {
		return session.NewResponse(http.StatusBadRequest, nil)
	}
	if act.ChannelID == "" {
		act.ChannelID = a.channelID
	}

	state, err := turn.Run(ctx, &act, a, a.handler)
	if err != nil {
		a.log.Error().Err(err).Str("activity", act.ID).Str("type", string(act.Type)).Msg("adapter turn failed")
		return session.NewResponse(http.StatusInternalServerError, nil)
	}

	if !act.IsType(activity.TypeInvoke) {
		return session.NewResponse(http.StatusOK, nil)
	}
	captured, ok := turn.CapturedInvokeResponse(state)
	if !ok {
		return session.NewResponse(http.StatusNotImplemented, nil)
	}
	ir, ok := activity.InvokeResponseFrom(captured)
	if !ok {
		a.log.Warn().Str("activity", captured.ID).Msg("adapter invokeResponse value unreadable")
		return session.NewResponse(http.StatusNotImplemented, nil)
	}
	return session.NewResponse(ir.Status, ir.Body)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var (
	_ session.Handler = (*Adapter)(nil)
	_ turn.Sender     = (*Adapter)(nil)
)
