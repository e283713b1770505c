package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

type recordingPusher struct {
	events []uuid.UUID
	err    error
}

func (p *recordingPusher) PushStatistics(_ context.Context, eventID uuid.UUID) error {
	p.events = append(p.events, eventID)
	return p.err
}

func TestHandleNotification(t *testing.T) {
	eventID := uuid.New()

	tests := []struct {
		name     string
		payload  string
		pushErr  error
		wantErr  bool
		wantPush bool
	}{
		{name: "pushes", payload: eventID.String(), wantPush: true},
		{name: "trims whitespace", payload: " " + eventID.String() + "\n", wantPush: true},
		{name: "bad payload", payload: "table-4", wantErr: true},
		{name: "push fails", payload: eventID.String(), pushErr: errors.New("hub closed"), wantErr: true, wantPush: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pusher := &recordingPusher{err: tt.pushErr}
			l := &ResponseListener{pusher: pusher, cfg: DefaultListenerConfig()}

			err := l.handleNotification(context.Background(), tt.payload)
			if (err != nil) != tt.wantErr {
				t.Fatalf("handleNotification() = %v, wantErr %v", err, tt.wantErr)
			}
			if pushed := len(pusher.events) == 1 && pusher.events[0] == eventID; pushed != tt.wantPush {
				t.Fatalf("pushed %v, want push %v", pusher.events, tt.wantPush)
			}
		})
	}
}
