package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/danmuck/edgegate/internal/activity"
	"github.com/danmuck/edgegate/internal/logging"
	"github.com/danmuck/edgegate/internal/peer"
	"github.com/danmuck/edgegate/internal/protocol/session"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

func main() {
	url := flag.String("url", "ws://localhost:3978/api/messages", "gateway messages endpoint")
	pipe := flag.String("pipe", "", "gateway pipe path (overrides -url)")
	token := flag.String("token", os.Getenv("EDGEGATE_TOKEN"), "bearer token")
	channel := flag.String("channel", "emulator", "channel id")
	conversation := flag.String("conversation", "", "conversation id (random when empty)")
	kind := flag.String("type", string(activity.TypeMessage), "activity type: message|invoke")
	text := flag.String("text", "hello", "message text or invoke name")
	wait := flag.Duration("wait", 2*time.Second, "time to keep receiving gateway replies")
	flag.Parse()

	logging.ConfigureRuntime()
	if err := run(*url, *pipe, *token, *channel, *conversation, *kind, *text, *wait); err != nil {
		fmt.Fprintf(os.Stderr, "peerctl: %v\n", err)
		os.Exit(1)
	}
}

func run(url, pipe, token, channel, conversation, kind, text string, wait time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rec := peer.NewRecorder(func(d peer.Delivery) {
		ev := log.Info().Str("verb", d.Verb).Str("path", d.Path)
		if d.Activity != nil {
			ev = ev.Str("type", string(d.Activity.Type)).Str("text", d.Activity.Text)
		}
		ev.Msg("peerctl received")
	})

	var s *session.Session
	var err error
	if pipe != "" {
		s, err = peer.DialPipe(ctx, pipe, rec, session.DefaultConfig())
	} else {
		s, err = peer.Dialer{URL: url, Token: token, ChannelID: channel, Handler: rec}.Dial(ctx)
	}
	if err != nil {
		return err
	}
	defer s.Close()

	if conversation == "" {
		conversation = uuid.NewString()
	}
	a := &activity.Activity{
		Type:         activity.Type(kind),
		ID:           uuid.NewString(),
		ChannelID:    channel,
		From:         &activity.ChannelAccount{ID: "peerctl", Role: "user"},
		Recipient:    &activity.ChannelAccount{ID: "bot", Role: "bot"},
		Conversation: &activity.ConversationAccount{ID: conversation},
	}
	if a.IsType(activity.TypeInvoke) {
		a.Name = text
	} else {
		a.Text = text
	}

	resp, err := peer.PostActivity(ctx, s, a)
	if err != nil {
		return err
	}
	fmt.Printf("status=%d body=%s\n", resp.Status, string(resp.Body))

	select {
	case <-time.After(wait):
	case <-s.Done():
	}
	fmt.Printf("received %d deliveries\n", len(rec.Deliveries()))
	return nil
}
