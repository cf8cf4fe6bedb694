package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/tmaxmax/go-sse"

	"github.com/stackDawg/skylark2/internal/events"
)

// Stream pushes every engine event to server-sent-event subscribers. It is an
// events.Sink, so it can sit in the engine's fan-out next to the journal.
type Stream struct {
	srv *sse.Server
}

func NewStream() *Stream {
	return &Stream{srv: sse.NewServer()}
}

func (s *Stream) Publish(_ context.Context, evt events.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	e := &sse.Message{}
	e.AppendData(data)
	s.srv.Publish(e)
	return nil
}

func (s *Stream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.srv.ServeHTTP(w, r)
}
