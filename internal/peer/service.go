package peer

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/danmuck/edgegate/internal/activity"
	"github.com/danmuck/edgegate/internal/protocol/session"
	"github.com/google/uuid"
)

// Delivery is one request the gateway routed to the peer.
type Delivery struct {
	Verb     string
	Path     string
	Activity *activity.Activity
}

// Recorder is a minimal peer-side /v3 service: it records every delivery
// and acknowledges it with a fresh resource id.
type Recorder struct {
	mu         sync.Mutex
	deliveries []Delivery
	onDelivery func(Delivery)
}

func NewRecorder(onDelivery func(Delivery)) *Recorder {
	return &Recorder{onDelivery: onDelivery}
}

func (r *Recorder) ServeRequest(_ context.Context, req *session.Request) *session.Response {
	d := Delivery{Verb: req.Verb, Path: req.Path}
	if len(req.Body) > 0 {
		var a activity.Activity
		if err := json.Unmarshal(req.Body, &a); err == nil && a.Type != "" {
			d.Activity = &a
		}
	}
	r.mu.Lock()
	r.deliveries = append(r.deliveries, d)
	r.mu.Unlock()
	if r.onDelivery != nil {
		r.onDelivery(d)
	}

	body, _ := json.Marshal(activity.ResourceResponse{ID: uuid.NewString()})
	return session.NewResponse(http.StatusOK, body)
}

func (r *Recorder) Deliveries() []Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Delivery(nil), r.deliveries...)
}
