package queue

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"AttendGate/internal/admission"
	"AttendGate/internal/cache"
	"AttendGate/internal/model"
	"AttendGate/pkg/errors"
	"AttendGate/storage/mq"
)

type published struct {
	exchange, routingKey, messageID string
	body                            interface{}
}

type fakeMQ struct {
	sent []published
	err  error
}

func (f *fakeMQ) PublishMessage(_ context.Context, exchange, routingKey, messageID string, body interface{}) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, published{exchange, routingKey, messageID, body})
	return nil
}

type fixedIDs struct{ next int64 }

func (f *fixedIDs) NextID() (int64, error) {
	f.next++
	return f.next, nil
}

type recordingDeliverer struct {
	got []model.AttendanceEventMessage
	err error
}

func (d *recordingDeliverer) Deliver(_ context.Context, msg model.AttendanceEventMessage) error {
	d.got = append(d.got, msg)
	return d.err
}

func TestPublisherNotify(t *testing.T) {
	bus := &fakeMQ{}
	p := NewPublisher(bus, &fixedIDs{next: 41})

	ev := admission.Event{
		Type:         model.EventTypeCheckIn,
		UserID:       "u-1",
		AttendanceID: "123",
		Status:       model.AttendanceStatusLate,
		OccurredAt:   time.Date(2024, 3, 4, 9, 5, 0, 0, time.FixedZone("CST", 8*3600)),
	}
	if err := p.Notify(context.Background(), ev); err != nil {
		t.Fatal(err)
	}

	if len(bus.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(bus.sent))
	}
	got := bus.sent[0]
	if got.exchange != mq.EventsExchange || got.routingKey != model.EventTypeCheckIn || got.messageID != "att_evt_42" {
		t.Fatalf("unexpected routing %+v", got)
	}
	msg := got.body.(model.AttendanceEventMessage)
	if msg.Status != "late" || msg.OccurredAt != "2024-03-04T01:05:00Z" {
		t.Fatalf("unexpected message %+v", msg)
	}
}

func TestPublisherNotifyError(t *testing.T) {
	p := NewPublisher(&fakeMQ{err: stderrors.New("channel closed")}, &fixedIDs{})
	if err := p.Notify(context.Background(), admission.Event{Type: model.EventTypeCheckOut}); err == nil {
		t.Fatal("expected publish error")
	}
}

func newHandler(t *testing.T, d Deliverer) *EventHandler {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewEventHandler(cache.NewMessageMarks(client), d)
}

func eventBody(t *testing.T, id string) []byte {
	t.Helper()
	body, err := json.Marshal(model.AttendanceEventMessage{
		MessageID:    id,
		Type:         model.EventTypeCheckIn,
		UserID:       "u-1",
		AttendanceID: "123",
		Status:       "present",
		OccurredAt:   "2024-03-04T01:05:00Z",
	})
	if err != nil {
		t.Fatal(err)
	}
	return body
}

func TestEventHandlerDeliversOnce(t *testing.T) {
	d := &recordingDeliverer{}
	h := newHandler(t, d)
	ctx := context.Background()

	if err := h.Handle(ctx, eventBody(t, "att_evt_1")); err != nil {
		t.Fatal(err)
	}

	err := h.Handle(ctx, eventBody(t, "att_evt_1"))
	var skip *errors.SkipMessageError
	if !stderrors.As(err, &skip) {
		t.Fatalf("duplicate must be skipped, got %v", err)
	}
	if len(d.got) != 1 || d.got[0].AttendanceID != "123" {
		t.Fatalf("expected exactly one delivery, got %+v", d.got)
	}
}

func TestEventHandlerRetriesAfterFailure(t *testing.T) {
	d := &recordingDeliverer{err: stderrors.New("push gateway down")}
	h := newHandler(t, d)
	ctx := context.Background()

	err := h.Handle(ctx, eventBody(t, "att_evt_2"))
	var skip *errors.SkipMessageError
	if err == nil || stderrors.As(err, &skip) {
		t.Fatalf("delivery failure must requeue, got %v", err)
	}

	d.err = nil
	if err := h.Handle(ctx, eventBody(t, "att_evt_2")); err != nil {
		t.Fatalf("redelivery should be processed after unmark: %v", err)
	}
	if len(d.got) != 2 {
		t.Fatalf("expected two delivery attempts, got %d", len(d.got))
	}
}

func TestEventHandlerMalformed(t *testing.T) {
	d := &recordingDeliverer{}
	h := newHandler(t, d)

	err := h.Handle(context.Background(), []byte("{not json"))
	var skip *errors.SkipMessageError
	if !stderrors.As(err, &skip) || !strings.Contains(skip.Reason, "malformed") {
		t.Fatalf("malformed message must be skipped, got %v", err)
	}
	if len(d.got) != 0 {
		t.Fatal("malformed message must not be delivered")
	}
}

type fakeConsumer struct {
	opts mq.ConsumeOptions
}

func (f *fakeConsumer) Consume(_ context.Context, opts mq.ConsumeOptions) error {
	f.opts = opts
	return nil
}

func TestStartNotificationConsumer(t *testing.T) {
	c := &fakeConsumer{}
	h := newHandler(t, &recordingDeliverer{})

	if err := StartNotificationConsumer(context.Background(), c, h); err != nil {
		t.Fatal(err)
	}
	if c.opts.Queue != mq.NotificationsQueue || c.opts.Handler == nil || c.opts.PrefetchCount != 10 {
		t.Fatalf("unexpected consume options %+v", c.opts)
	}
}
