package blackboard

import (
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

type finding struct {
	Title    string `json:"title"`
	Severity string `json:"severity"`
}

func TestPost_ListTopicAccumulates(t *testing.T) {
	b := New(WithTopic("findings", List))
	defer b.Close()

	if err := b.Post("findings", finding{"f1", "low"}); err != nil {
		t.Fatalf("Post failed: %v", err)
	}
	if err := b.Post("findings", finding{"f2", "high"}); err != nil {
		t.Fatalf("Post failed: %v", err)
	}

	got := b.Snapshot()["findings"]
	want := []any{
		map[string]any{"title": "f1", "severity": "low"},
		map[string]any{"title": "f2", "severity": "high"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("findings mismatch (-want +got):\n%s", diff)
	}

	var typed []finding
	if err := b.DecodeTopic("findings", &typed); err != nil {
		t.Fatalf("DecodeTopic failed: %v", err)
	}
	if len(typed) != 2 || typed[1].Title != "f2" {
		t.Errorf("DecodeTopic = %+v", typed)
	}
}

func TestPost_ScalarTopicReplaces(t *testing.T) {
	b := New(WithTopic("status", Scalar))
	defer b.Close()

	_ = b.Post("status", "scanning")
	_ = b.Post("status", "reporting")

	if got := b.Snapshot()["status"]; got != "reporting" {
		t.Errorf("status = %v, want reporting", got)
	}

	var s string
	if err := b.DecodeTopic("status", &s); err != nil || s != "reporting" {
		t.Errorf("DecodeTopic = %q, %v", s, err)
	}
}

func TestUndeclaredTopicIsList(t *testing.T) {
	b := New()
	defer b.Close()

	_ = b.Post("notes", 1)
	_ = b.Post("notes", 2)

	if b.Kind("notes") != List {
		t.Errorf("Kind(notes) = %v, want list", b.Kind("notes"))
	}
	if diff := cmp.Diff([]any{float64(1), float64(2)}, b.Snapshot()["notes"]); diff != "" {
		t.Errorf("notes mismatch (-want +got):\n%s", diff)
	}
}

func TestGet(t *testing.T) {
	b := New(WithTopic("status", Scalar), WithTopic("findings", List))
	defer b.Close()

	if _, ok := b.Get("status"); ok {
		t.Error("scalar topic without posts should be absent")
	}
	if got, ok := b.Get("findings"); !ok || len(got.([]any)) != 0 {
		t.Errorf("Get(findings) = %v, %v, want empty list", got, ok)
	}
	if _, ok := b.Get("unknown"); ok {
		t.Error("unknown topic should be absent")
	}

	_ = b.Post("status", "done")
	if got, ok := b.Get("status"); !ok || got != "done" {
		t.Errorf("Get(status) = %v, %v", got, ok)
	}
}

func TestSnapshot_IsDeepCopy(t *testing.T) {
	b := New(WithTopic("findings", List), WithTopic("status", Scalar))
	defer b.Close()

	_ = b.Post("findings", map[string]any{"title": "orig"})

	snap := b.Snapshot()
	snap["findings"].([]any)[0].(map[string]any)["title"] = "mutated"

	again := b.Snapshot()
	if title := again["findings"].([]any)[0].(map[string]any)["title"]; title != "orig" {
		t.Errorf("snapshot aliased internal state, title = %v", title)
	}
	if _, ok := again["status"]; ok {
		t.Error("scalar topic with no posts should be absent")
	}
}

func TestSnapshot_DeclaredEmptyList(t *testing.T) {
	b := New(WithTopic("credentials", List))
	defer b.Close()

	got, ok := b.Snapshot()["credentials"]
	if !ok {
		t.Fatal("declared list topic missing from snapshot")
	}
	if len(got.([]any)) != 0 {
		t.Errorf("credentials = %v, want empty", got)
	}
}

func TestSubscribers_CalledInRegistrationOrder(t *testing.T) {
	b := New()

	var mu sync.Mutex
	var order []string
	record := func(name string) Subscriber {
		return func(Event) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
		}
	}
	b.Subscribe("t", record("first"))
	b.Subscribe("t", record("second"))
	b.Subscribe("t", record("third"))
	b.Subscribe("other", record("never"))

	_ = b.Post("t", "x")
	b.Close()

	if diff := cmp.Diff([]string{"first", "second", "third"}, order); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestSubscriberPanicIsContained(t *testing.T) {
	b := New()

	delivered := make(chan string, 1)
	b.Subscribe("t", func(Event) { panic("boom") })
	b.Subscribe("t", func(e Event) {
		var s string
		_ = e.Decode(&s)
		delivered <- s
	})

	if err := b.Post("t", "payload"); err != nil {
		t.Fatalf("Post returned error: %v", err)
	}
	b.Close()

	select {
	case got := <-delivered:
		if got != "payload" {
			t.Errorf("delivered %q, want payload", got)
		}
	default:
		t.Fatal("second subscriber never ran")
	}
}

func TestReentrantPostDoesNotDeadlock(t *testing.T) {
	b := New(WithTopic("findings", List))

	b.Subscribe("findings", func(e Event) {
		var f finding
		_ = e.Decode(&f)
		if f.Severity == "high" {
			_ = b.Post("alerts", f.Title)
		}
	})

	alerted := make(chan struct{}, 1)
	b.Subscribe("alerts", func(Event) { alerted <- struct{}{} })

	done := make(chan struct{})
	go func() {
		_ = b.Post("findings", finding{"exposed admin panel", "high"})
		_ = b.Post("findings", finding{"banner", "info"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Post deadlocked")
	}
	select {
	case <-alerted:
	case <-time.After(2 * time.Second):
		t.Fatal("re-entrant post never delivered")
	}
	b.Close()

	var alerts []string
	if err := b.DecodeTopic("alerts", &alerts); err != nil {
		t.Fatalf("DecodeTopic failed: %v", err)
	}
	if len(alerts) != 1 || alerts[0] != "exposed admin panel" {
		t.Errorf("alerts = %v", alerts)
	}
}

func TestPostDoesNotBlockOnSlowSubscriber(t *testing.T) {
	release := make(chan struct{})
	b := New(WithQueueSize(1), WithEnqueueTimeout(5*time.Millisecond))

	b.Subscribe("t", func(Event) { <-release })

	start := time.Now()
	for i := 0; i < 10; i++ {
		if err := b.Post("t", i); err != nil {
			t.Fatalf("Post failed: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("posting took %v with a blocked subscriber", elapsed)
	}
	if b.Dropped() == 0 {
		t.Error("expected dropped notifications with a full queue")
	}

	var values []int
	_ = b.DecodeTopic("t", &values)
	if len(values) != 10 {
		t.Errorf("state recorded %d posts, want 10", len(values))
	}

	close(release)
	b.Close()
}

func TestUnsubscribe(t *testing.T) {
	b := New()

	var mu sync.Mutex
	calls := 0
	unsub := b.Subscribe("t", func(Event) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	unsub()

	_ = b.Post("t", 1)
	b.Close()

	if calls != 0 {
		t.Errorf("unsubscribed callback ran %d times", calls)
	}
}

func TestPostAfterClose(t *testing.T) {
	b := New()
	b.Close()
	b.Close()

	if err := b.Post("t", 1); err != ErrClosed {
		t.Errorf("Post after Close = %v, want ErrClosed", err)
	}
}

func TestPost_UnencodablePayload(t *testing.T) {
	b := New()
	defer b.Close()

	if err := b.Post("t", make(chan int)); err == nil {
		t.Error("expected encode error")
	}
	if len(b.Topics()) != 0 {
		t.Errorf("failed post created topics: %v", b.Topics())
	}
}
