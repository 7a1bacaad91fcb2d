package gateway

import (
	"net/http"
	"net/url"
	"strconv"
)

const (
	BasePath     = "/v3"
	MessagesPath = "/api/messages"
)

// Route templates, used as metric and log labels.
const (
	RouteConversations   = BasePath + "/conversations/"
	RouteActivities      = BasePath + "/conversations/{conversationId}/activities"
	RouteHistory         = BasePath + "/conversations/{conversationId}/activities/history"
	RouteActivity        = BasePath + "/conversations/{conversationId}/activities/{activityId}"
	RouteMembers         = BasePath + "/conversations/{conversationId}/members"
	RoutePagedMembers    = BasePath + "/conversations/{conversationId}/pagedmembers"
	RouteMember          = BasePath + "/conversations/{conversationId}/members/{memberId}"
	RouteActivityMembers = BasePath + "/conversations/{conversationId}/activities/{activityId}/members"
)

// Endpoint is one concrete (verb, path) pair with its template.
type Endpoint struct {
	Verb  string
	Path  string
	Route string
}

func conversationPath(conversationID string) string {
	return BasePath + "/conversations/" + url.PathEscape(conversationID)
}

func getConversations(continuationToken string) Endpoint {
	path := RouteConversations
	if continuationToken != "" {
		path += "?" + url.Values{"continuationToken": {continuationToken}}.Encode()
	}
	return Endpoint{Verb: http.MethodGet, Path: path, Route: RouteConversations}
}

func createConversation() Endpoint {
	return Endpoint{Verb: http.MethodPost, Path: RouteConversations, Route: RouteConversations}
}

func sendToConversation(conversationID string) Endpoint {
	return Endpoint{Verb: http.MethodPost, Path: conversationPath(conversationID) + "/activities", Route: RouteActivities}
}

func sendConversationHistory(conversationID string) Endpoint {
	return Endpoint{Verb: http.MethodPost, Path: conversationPath(conversationID) + "/activities/history", Route: RouteHistory}
}

func activityEndpoint(verb, conversationID, activityID string) Endpoint {
	return Endpoint{
		Verb:  verb,
		Path:  conversationPath(conversationID) + "/activities/" + url.PathEscape(activityID),
		Route: RouteActivity,
	}
}

func getConversationMembers(conversationID string) Endpoint {
	return Endpoint{Verb: http.MethodGet, Path: conversationPath(conversationID) + "/members", Route: RouteMembers}
}

func getConversationPagedMembers(conversationID string, pageSize int, continuationToken string) Endpoint {
	path := conversationPath(conversationID) + "/pagedmembers"
	q := url.Values{}
	if pageSize > 0 {
		q.Set("pageSize", strconv.Itoa(pageSize))
	}
	if continuationToken != "" {
		q.Set("continuationToken", continuationToken)
	}
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	return Endpoint{Verb: http.MethodGet, Path: path, Route: RoutePagedMembers}
}

func deleteConversationMember(conversationID, memberID string) Endpoint {
	return Endpoint{
		Verb:  http.MethodDelete,
		Path:  conversationPath(conversationID) + "/members/" + url.PathEscape(memberID),
		Route: RouteMember,
	}
}

func getActivityMembers(conversationID, activityID string) Endpoint {
	return Endpoint{
		Verb:  http.MethodGet,
		Path:  conversationPath(conversationID) + "/activities/" + url.PathEscape(activityID) + "/members",
		Route: RouteActivityMembers,
	}
}
