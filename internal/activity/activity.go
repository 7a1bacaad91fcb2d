// Package activity holds the activity data model exchanged with the peer.
// Payloads are JSON with camelCase keys.
package activity

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type Type string

const (
	TypeMessage            Type = "message"
	TypeTyping             Type = "typing"
	TypeDelay              Type = "delay"
	TypeInvoke             Type = "invoke"
	TypeInvokeResponse     Type = "invokeResponse"
	TypeTrace              Type = "trace"
	TypeEvent              Type = "event"
	TypeEndOfConversation  Type = "endOfConversation"
	TypeConversationUpdate Type = "conversationUpdate"
	TypeMessageReaction    Type = "messageReaction"
	TypeInstallationUpdate Type = "installationUpdate"
)

// EmulatorChannel is the diagnostic channel; trace activities are only delivered to it.
const EmulatorChannel = "emulator"

var (
	ErrNilActivity         = errors.New("activity: nil activity")
	ErrMissingType         = errors.New("activity: missing type")
	ErrMissingConversation = errors.New("activity: missing conversation id")
	ErrMissingID           = errors.New("activity: missing activity id")
)

type ChannelAccount struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Role string `json:"role,omitempty"`
}

type ConversationAccount struct {
	ID               string `json:"id"`
	Name             string `json:"name,omitempty"`
	IsGroup          bool   `json:"isGroup,omitempty"`
	ConversationType string `json:"conversationType,omitempty"`
	TenantID         string `json:"tenantId,omitempty"`
}

// Activity is one unit of conversational traffic. Value is type-dependent and
// left raw until a consumer interprets it.
type Activity struct {
	Type         Type                 `json:"type"`
	ID           string               `json:"id,omitempty"`
	Timestamp    string               `json:"timestamp,omitempty"`
	ServiceURL   string               `json:"serviceUrl,omitempty"`
	ChannelID    string               `json:"channelId,omitempty"`
	From         *ChannelAccount      `json:"from,omitempty"`
	Conversation *ConversationAccount `json:"conversation,omitempty"`
	Recipient    *ChannelAccount      `json:"recipient,omitempty"`
	ReplyToID    string               `json:"replyToId,omitempty"`
	Text         string               `json:"text,omitempty"`
	Locale       string               `json:"locale,omitempty"`
	Name         string               `json:"name,omitempty"`
	Label        string               `json:"label,omitempty"`
	ValueType    string               `json:"valueType,omitempty"`
	Value        json.RawMessage      `json:"value,omitempty"`
	MembersAdded []ChannelAccount     `json:"membersAdded,omitempty"`
	ChannelData  json.RawMessage      `json:"channelData,omitempty"`
}

// ConversationID returns the conversation id or "" when no conversation is set.
func (a *Activity) ConversationID() string {
	if a == nil || a.Conversation == nil {
		return ""
	}
	return a.Conversation.ID
}

// HasReplyTarget reports a non-empty replyToId.
func (a *Activity) HasReplyTarget() bool {
	return a != nil && strings.TrimSpace(a.ReplyToID) != ""
}

// IsType compares types case-insensitively.
func (a *Activity) IsType(t Type) bool {
	return a != nil && strings.EqualFold(string(a.Type), string(t))
}

// Validate checks the fields required to route an outbound activity.
func (a *Activity) Validate() error {
	if a == nil {
		return ErrNilActivity
	}
	if strings.TrimSpace(string(a.Type)) == "" {
		return ErrMissingType
	}
	if a.ConversationID() == "" {
		return ErrMissingConversation
	}
	return nil
}

// SetValue marshals v into Value.
func (a *Activity) SetValue(v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("activity: marshal value: %w", err)
	}
	a.Value = raw
	return nil
}

// ConversationReference addresses a conversation for proactive or reply traffic.
type ConversationReference struct {
	ActivityID   string               `json:"activityId,omitempty"`
	User         *ChannelAccount      `json:"user,omitempty"`
	Bot          *ChannelAccount      `json:"bot,omitempty"`
	Conversation *ConversationAccount `json:"conversation,omitempty"`
	ChannelID    string               `json:"channelId,omitempty"`
	ServiceURL   string               `json:"serviceUrl,omitempty"`
	Locale       string               `json:"locale,omitempty"`
}

// GetConversationReference captures where a inbound activity came from.
func GetConversationReference(a *Activity) ConversationReference {
	if a == nil {
		return ConversationReference{}
	}
	return ConversationReference{
		ActivityID:   a.ID,
		User:         a.From,
		Bot:          a.Recipient,
		Conversation: a.Conversation,
		ChannelID:    a.ChannelID,
		ServiceURL:   a.ServiceURL,
		Locale:       a.Locale,
	}
}

// ApplyConversationReference addresses a as a reply within ref. When
// incoming is true the bot and user roles are swapped.
func ApplyConversationReference(a *Activity, ref ConversationReference, incoming bool) *Activity {
	if a == nil {
		return nil
	}
	a.ChannelID = ref.ChannelID
	a.ServiceURL = ref.ServiceURL
	a.Conversation = ref.Conversation
	if ref.Locale != "" && a.Locale == "" {
		a.Locale = ref.Locale
	}
	if incoming {
		a.From = ref.User
		a.Recipient = ref.Bot
		if ref.ActivityID != "" {
			a.ID = ref.ActivityID
		}
		return a
	}
	a.From = ref.Bot
	a.Recipient = ref.User
	if ref.ActivityID != "" && !a.IsType(TypeConversationUpdate) && !a.IsType(TypeEndOfConversation) {
		a.ReplyToID = ref.ActivityID
	}
	return a
}
