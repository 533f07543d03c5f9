// Package eventstest provides an events.Publisher for tests.
package eventstest

import (
	"context"

	"github.com/sakif/photosphere/internal/events"
)

// Recorder keeps every event it receives.
type Recorder struct {
	events chan events.Event
}

// NewRecorder buffers up to size events; further events are dropped.
func NewRecorder(size int) *Recorder {
	return &Recorder{events: make(chan events.Event, size)}
}

func (r *Recorder) Publish(_ context.Context, e events.Event) {
	select {
	case r.events <- e:
	default:
	}
}

// Events drains and returns what has been recorded so far.
func (r *Recorder) Events() []events.Event {
	var out []events.Event
	for {
		select {
		case e := <-r.events:
			out = append(out, e)
		default:
			return out
		}
	}
}
