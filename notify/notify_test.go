package notify

import (
	"errors"
	"testing"

	"go.uber.org/zap"
)

func TestHubPublishOrder(t *testing.T) {
	hub := NewHub[int](zap.NewNop().Sugar())
	sink := NewChanSink[int](10)
	unsubscribe := hub.Subscribe(sink)

	for i := 1; i <= 3; i++ {
		hub.Publish(i)
	}
	for want := 1; want <= 3; want++ {
		if got := <-sink.C; got != want {
			t.Fatalf("got %d, want %d", got, want)
		}
	}

	unsubscribe()
	hub.Publish(4)
	if len(sink.C) != 0 {
		t.Fatalf("expected no events after unsubscribe, got %d", len(sink.C))
	}
}

func TestHubSurvivesFailingSinks(t *testing.T) {
	hub := NewHub[string](nil)
	hub.Subscribe(SinkFunc[string](func(string) error { return errors.New("detached") }))
	hub.Subscribe(SinkFunc[string](func(string) error { panic("boom") }))

	var got []string
	hub.Subscribe(SinkFunc[string](func(s string) error {
		got = append(got, s)
		return nil
	}))

	hub.Publish("a")
	hub.Publish("b")

	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("healthy sink got %v, want [a b]", got)
	}
}

func TestChanSinkFull(t *testing.T) {
	sink := NewChanSink[int](1)
	if err := sink.Send(1); err != nil {
		t.Fatalf("first send: %v", err)
	}
	if err := sink.Send(2); !errors.Is(err, ErrSinkFull) {
		t.Fatalf("second send error = %v, want ErrSinkFull", err)
	}
}

func TestDeliverNilSink(t *testing.T) {
	Deliver[int](nil, nil, 1)
}
