package eventbus

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/vk/calcgrid/internal/model"
	"github.com/vk/calcgrid/internal/value"
)

// Event is the wire form of one member change.
type Event struct {
	Event    string          `json:"event"`
	MemberID string          `json:"memberId"`
	FullName string          `json:"fullName"`
	State    model.State     `json:"state,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// Message is the set of changes made by one confirmed action.
type Message struct {
	DocumentID string  `json:"documentId"`
	Events     []Event `json:"events"`
}

// NewEvent renders a change event. Data is left out when it has no JSON
// form, as with function members.
func NewEvent(ev model.ChangeEvent) Event {
	out := Event{
		Event:    ev.Event,
		MemberID: ev.MemberID,
		FullName: ev.FullName,
		State:    ev.State,
	}
	if ev.Event == model.EventDeleted || ev.Member == nil {
		return out
	}
	switch ev.State {
	case model.StateNormal:
		if raw, err := value.ToJSON(ev.Member.Data()); err == nil {
			out.Data = raw
		}
	case model.StateError:
		if err := ev.Member.Error(); err != nil {
			out.Error = err.Error()
		}
	}
	return out
}

// NewMessage renders the events of one action on a document.
func NewMessage(documentID string, events []model.ChangeEvent) Message {
	msg := Message{DocumentID: documentID, Events: make([]Event, 0, len(events))}
	for _, ev := range events {
		msg.Events = append(msg.Events, NewEvent(ev))
	}
	return msg
}

// Publisher delivers messages to listeners.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Fanout publishes to every publisher in turn and joins their errors.
type Fanout []Publisher

// Publish implements Publisher.
func (f Fanout) Publish(ctx context.Context, msg Message) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
