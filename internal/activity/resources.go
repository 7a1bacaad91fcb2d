package activity

import "encoding/json"

// ResourceResponse is the id the peer assigned to a created or touched resource.
type ResourceResponse struct {
	ID string `json:"id"`
}

type ConversationParameters struct {
	IsGroup     bool             `json:"isGroup,omitempty"`
	Bot         *ChannelAccount  `json:"bot,omitempty"`
	Members     []ChannelAccount `json:"members,omitempty"`
	TopicName   string           `json:"topicName,omitempty"`
	TenantID    string           `json:"tenantId,omitempty"`
	Activity    *Activity        `json:"activity,omitempty"`
	ChannelData json.RawMessage  `json:"channelData,omitempty"`
}

type ConversationResourceResponse struct {
	ActivityID string `json:"activityId,omitempty"`
	ServiceURL string `json:"serviceUrl,omitempty"`
	ID         string `json:"id"`
}

type ConversationMembers struct {
	ID      string           `json:"id"`
	Members []ChannelAccount `json:"members"`
}

type ConversationsResult struct {
	ContinuationToken string                `json:"continuationToken,omitempty"`
	Conversations     []ConversationMembers `json:"conversations"`
}

type PagedMembersResult struct {
	ContinuationToken string           `json:"continuationToken,omitempty"`
	Members           []ChannelAccount `json:"members"`
}

// Transcript is an ordered activity history.
type Transcript struct {
	Activities []*Activity `json:"activities"`
}

// InvokeResponse is the status and body returned to an invoke caller.
type InvokeResponse struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body,omitempty"`
}

// InvokeResponseFrom reads the InvokeResponse carried in an invokeResponse
// activity's value. ok is false when the value is absent, malformed, or its
// status is not a three-digit code.
func InvokeResponseFrom(a *Activity) (InvokeResponse, bool) {
	if a == nil || len(a.Value) == 0 {
		return InvokeResponse{}, false
	}
	var ir InvokeResponse
	if err := json.Unmarshal(a.Value, &ir); err != nil || ir.Status < 100 || ir.Status > 999 {
		return InvokeResponse{}, false
	}
	return ir, true
}
