package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/danmuck/edgegate/internal/activity"
	"github.com/danmuck/edgegate/internal/turn"
)

// echoBot is the sample pipeline: it echoes messages with a typing indicator
// and a short delay, answers invokes, and greets added members.
type echoBot struct{}

func newEchoBot() turn.Handler {
	return echoBot{}
}

func (echoBot) OnTurn(ctx context.Context, tc *turn.Context) error {
	in := tc.Activity
	switch {
	case in.IsType(activity.TypeMessage):
		delay := &activity.Activity{Type: activity.TypeDelay}
		if err := delay.SetValue(250); err != nil {
			return err
		}
		typing := tc.Reply("")
		typing.Type = activity.TypeTyping
		typing.ReplyToID = ""

		trace := tc.Reply("")
		trace.Type = activity.TypeTrace
		trace.Label = "echo"
		trace.ValueType = "text"
		if err := trace.SetValue(in.Text); err != nil {
			return err
		}

		_, err := tc.SendActivities(ctx, []*activity.Activity{
			typing,
			delay,
			trace,
			tc.Reply("echo: " + strings.TrimSpace(in.Text)),
		})
		return err

	case in.IsType(activity.TypeInvoke):
		body, err := json.Marshal(map[string]string{"name": in.Name, "turn": tc.ID})
		if err != nil {
			return err
		}
		ir := &activity.Activity{Type: activity.TypeInvokeResponse}
		if err := ir.SetValue(activity.InvokeResponse{Status: http.StatusOK, Body: body}); err != nil {
			return err
		}
		_, err = tc.SendActivity(ctx, ir)
		return err

	case in.IsType(activity.TypeConversationUpdate):
		for _, m := range in.MembersAdded {
			if in.Recipient != nil && m.ID == in.Recipient.ID {
				continue
			}
			greeting := tc.Reply(fmt.Sprintf("welcome, %s", displayName(m)))
			greeting.ReplyToID = ""
			if _, err := tc.SendActivity(ctx, greeting); err != nil {
				return err
			}
		}
	}
	return nil
}

func displayName(m activity.ChannelAccount) string {
	if m.Name != "" {
		return m.Name
	}
	return m.ID
}
