package eventbus

import "testing"

func TestPublishDeliversToSubscriber(t *testing.T) {
	b := New()
	_, ch := b.Subscribe()

	b.RunStart("run-1", "build a page")

	evt := <-ch
	if evt.Kind != KindRunStart {
		t.Fatalf("got kind %q, want %q", evt.Kind, KindRunStart)
	}
	if evt.Data["run_id"] != "run-1" {
		t.Fatalf("got data %+v", evt.Data)
	}
}

func TestPublishFansOutToAllSubscribers(t *testing.T) {
	b := New()
	_, ch1 := b.Subscribe()
	_, ch2 := b.Subscribe()

	b.Evaluation(1, 80, true)

	e1, e2 := <-ch1, <-ch2
	if e1.Kind != KindEvaluation || e2.Kind != KindEvaluation {
		t.Fatalf("expected both subscribers to see evaluation, got %v %v", e1.Kind, e2.Kind)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	id, ch := b.Subscribe()
	b.Unsubscribe(id)

	b.Log("info", "hello")

	if _, ok := <-ch; ok {
		t.Fatal("expected channel closed after unsubscribe, got a delivered event")
	}
}

func TestPublishDoesNotBlockOnFullSubscriber(t *testing.T) {
	b := New()
	_, ch := b.Subscribe()

	for i := 0; i < subscriberBuffer+10; i++ {
		b.Log("info", "filling buffer")
	}

	if len(ch) != subscriberBuffer {
		t.Fatalf("expected buffer capped at %d, got %d", subscriberBuffer, len(ch))
	}
}

func TestCloseClosesAllSubscriberChannels(t *testing.T) {
	b := New()
	_, ch1 := b.Subscribe()
	_, ch2 := b.Subscribe()
	b.Close()

	if _, ok := <-ch1; ok {
		t.Fatal("expected ch1 closed")
	}
	if _, ok := <-ch2; ok {
		t.Fatal("expected ch2 closed")
	}
}
