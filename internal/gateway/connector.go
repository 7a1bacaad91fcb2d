package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/edgegate/internal/activity"
	"github.com/danmuck/edgegate/internal/observability"
	"github.com/danmuck/edgegate/internal/protocol/session"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrInvalidActivity     = errors.New("gateway: invalid activity")
	ErrMissingConversation = errors.New("gateway: missing conversation id")
	ErrMissingID           = errors.New("gateway: missing id")
)

// Sender sends one request and waits for its response. *session.Session implements it.
type Sender interface {
	Send(ctx context.Context, req *session.Request) (*session.Response, error)
}

// Reply is the normalized outcome of one connector call.
//
//   - Present: a 2xx response with a body that decoded into Value.
//   - Status: the peer's status code, or 0 when no response arrived.
//   - Err: why the call degraded (transport or decode failure), nil otherwise.
//
// A 2xx with an empty body is an explicit empty success: Status set, Present
// false and Err nil.
type Reply[T any] struct {
	Value   T
	Status  int
	Present bool
	Err     error
}

// Delivered reports that the peer answered with a 2xx status.
func (r Reply[T]) Delivered() bool {
	return r.Status >= 200 && r.Status < 300
}

// Connector exposes the peer's canonical routes over a Sender. Malformed
// input is returned as an error before anything is sent; every other failure
// degrades into the Reply.
type Connector struct {
	sender Sender
	log    zerolog.Logger
}

func NewConnector(sender Sender, logger *zerolog.Logger) *Connector {
	l := log.Logger
	if logger != nil {
		l = *logger
	}
	return &Connector{sender: sender, log: l.With().Str("component", "connector").Logger()}
}

func call[T any](ctx context.Context, c *Connector, ep Endpoint, payload any) (Reply[T], error) {
	var body []byte
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Reply[T]{}, fmt.Errorf("%w: encode %s: %v", ErrInvalidActivity, ep.Route, err)
		}
		body = raw
	}

	start := time.Now()
	resp, err := c.sender.Send(ctx, session.NewRequest(ep.Verb, ep.Path, body))
	elapsed := time.Since(start)
	if err != nil {
		observability.RecordPeerRequest(ep.Verb, ep.Route, 0, elapsed, false)
		c.log.Warn().Err(err).Str("verb", ep.Verb).Str("path", ep.Path).Msg("connector send failed")
		return Reply[T]{Err: err}, nil
	}

	out := Reply[T]{Status: resp.Status}
	if !resp.OK() {
		observability.RecordPeerRequest(ep.Verb, ep.Route, resp.Status, elapsed, false)
		c.log.Warn().Str("verb", ep.Verb).Str("path", ep.Path).Int("status", resp.Status).
			Msg("connector peer returned error status")
		return out, nil
	}
	observability.RecordPeerRequest(ep.Verb, ep.Route, resp.Status, elapsed, true)

	if len(strings.TrimSpace(string(resp.Body))) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(resp.Body, &out.Value); err != nil {
		c.log.Warn().Err(err).Str("verb", ep.Verb).Str("path", ep.Path).Msg("connector decode response")
		var zero T
		out.Value = zero
		out.Err = fmt.Errorf("gateway: decode %s response: %w", ep.Route, err)
		return out, nil
	}
	out.Present = true
	return out, nil
}

func requireID(kind, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: %s", ErrMissingID, kind)
	}
	return nil
}

func requireConversation(conversationID string) error {
	if strings.TrimSpace(conversationID) == "" {
		return ErrMissingConversation
	}
	return nil
}

// GetConversations lists conversations the bot participates in.
func (c *Connector) GetConversations(ctx context.Context, continuationToken string) (Reply[activity.ConversationsResult], error) {
	return call[activity.ConversationsResult](ctx, c, getConversations(continuationToken), nil)
}

func (c *Connector) CreateConversation(ctx context.Context, params activity.ConversationParameters) (Reply[activity.ConversationResourceResponse], error) {
	return call[activity.ConversationResourceResponse](ctx, c, createConversation(), params)
}

// SendToConversation appends a to the end of its conversation.
func (c *Connector) SendToConversation(ctx context.Context, a *activity.Activity) (Reply[activity.ResourceResponse], error) {
	if a == nil {
		return Reply[activity.ResourceResponse]{}, fmt.Errorf("%w: nil activity", ErrInvalidActivity)
	}
	if err := requireConversation(a.ConversationID()); err != nil {
		return Reply[activity.ResourceResponse]{}, err
	}
	return call[activity.ResourceResponse](ctx, c, sendToConversation(a.ConversationID()), a)
}

// ReplyToActivity posts a as a reply to a.ReplyToID.
func (c *Connector) ReplyToActivity(ctx context.Context, a *activity.Activity) (Reply[activity.ResourceResponse], error) {
	if a == nil {
		return Reply[activity.ResourceResponse]{}, fmt.Errorf("%w: nil activity", ErrInvalidActivity)
	}
	if err := requireConversation(a.ConversationID()); err != nil {
		return Reply[activity.ResourceResponse]{}, err
	}
	if err := requireID("replyToId", a.ReplyToID); err != nil {
		return Reply[activity.ResourceResponse]{}, err
	}
	return call[activity.ResourceResponse](ctx, c, activityEndpoint(http.MethodPost, a.ConversationID(), a.ReplyToID), a)
}

func (c *Connector) SendConversationHistory(ctx context.Context, conversationID string, transcript activity.Transcript) (Reply[activity.ResourceResponse], error) {
	if err := requireConversation(conversationID); err != nil {
		return Reply[activity.ResourceResponse]{}, err
	}
	return call[activity.ResourceResponse](ctx, c, sendConversationHistory(conversationID), transcript)
}

// UpdateActivity replaces the existing activity a.ID.
func (c *Connector) UpdateActivity(ctx context.Context, a *activity.Activity) (Reply[activity.ResourceResponse], error) {
	if a == nil {
		return Reply[activity.ResourceResponse]{}, fmt.Errorf("%w: nil activity", ErrInvalidActivity)
	}
	if err := requireConversation(a.ConversationID()); err != nil {
		return Reply[activity.ResourceResponse]{}, err
	}
	if err := requireID("activity id", a.ID); err != nil {
		return Reply[activity.ResourceResponse]{}, err
	}
	return call[activity.ResourceResponse](ctx, c, activityEndpoint(http.MethodPut, a.ConversationID(), a.ID), a)
}

func (c *Connector) DeleteActivity(ctx context.Context, conversationID, activityID string) (Reply[activity.ResourceResponse], error) {
	if err := requireConversation(conversationID); err != nil {
		return Reply[activity.ResourceResponse]{}, err
	}
	if err := requireID("activity id", activityID); err != nil {
		return Reply[activity.ResourceResponse]{}, err
	}
	return call[activity.ResourceResponse](ctx, c, activityEndpoint(http.MethodDelete, conversationID, activityID), nil)
}

func (c *Connector) GetConversationMembers(ctx context.Context, conversationID string) (Reply[[]activity.ChannelAccount], error) {
	if err := requireConversation(conversationID); err != nil {
		return Reply[[]activity.ChannelAccount]{}, err
	}
	return call[[]activity.ChannelAccount](ctx, c, getConversationMembers(conversationID), nil)
}

// GetConversationPagedMembers fetches one page; pageSize <= 0 leaves it to the peer.
func (c *Connector) GetConversationPagedMembers(ctx context.Context, conversationID string, pageSize int, continuationToken string) (Reply[activity.PagedMembersResult], error) {
	if err := requireConversation(conversationID); err != nil {
		return Reply[activity.PagedMembersResult]{}, err
	}
	return call[activity.PagedMembersResult](ctx, c, getConversationPagedMembers(conversationID, pageSize, continuationToken), nil)
}

func (c *Connector) DeleteConversationMember(ctx context.Context, conversationID, memberID string) (Reply[activity.ResourceResponse], error) {
	if err := requireConversation(conversationID); err != nil {
		return Reply[activity.ResourceResponse]{}, err
	}
	if err := requireID("member id", memberID); err != nil {
		return Reply[activity.ResourceResponse]{}, err
	}
	return call[activity.ResourceResponse](ctx, c, deleteConversationMember(conversationID, memberID), nil)
}

func (c *Connector) GetActivityMembers(ctx context.Context, conversationID, activityID string) (Reply[[]activity.ChannelAccount], error) {
	if err := requireConversation(conversationID); err != nil {
		return Reply[[]activity.ChannelAccount]{}, err
	}
	if err := requireID("activity id", activityID); err != nil {
		return Reply[[]activity.ChannelAccount]{}, err
	}
	return call[[]activity.ChannelAccount](ctx, c, getActivityMembers(conversationID, activityID), nil)
}
