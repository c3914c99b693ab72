package signal

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPublishReachesAllSubscribers(t *testing.T) {
	b := New[Event](quietLogger())
	ch1, unsub1 := b.Subscribe(1)
	defer unsub1()
	ch2, unsub2 := b.Subscribe(1)
	defer unsub2()

	assert.Equal(t, 2, b.Publish(Stale))

	select {
	case e := <-ch1:
		assert.Equal(t, Stale, e)
	case <-time.After(time.Second):
		t.Fatal("subscriber 1 did not receive event")
	}
	select {
	case e := <-ch2:
		assert.Equal(t, Stale, e)
	case <-time.After(time.Second):
		t.Fatal("subscriber 2 did not receive event")
	}
}

func TestPublishWithoutSubscribers(t *testing.T) {
	b := New[Event](quietLogger())
	assert.Equal(t, 0, b.Publish(ContextChanged))
}

func TestPublishDropsForFullSubscriber(t *testing.T) {
	b := New[Event](quietLogger())
	ch, unsub := b.Subscribe(1)
	defer unsub()

	assert.Equal(t, 1, b.Publish(Stale))
	assert.Equal(t, 0, b.Publish(ContextChanged), "full buffer must not block")

	assert.Equal(t, Stale, <-ch)
	select {
	case e := <-ch:
		t.Fatalf("unexpected event %v", e)
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New[Event](quietLogger())
	ch, unsub := b.Subscribe(0)
	require.Equal(t, 1, b.Len())

	unsub()
	unsub()

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, b.Len())
}

func TestCloseClosesSubscribersAndRejectsNew(t *testing.T) {
	b := New[Event](quietLogger())
	ch, unsub := b.Subscribe(2)

	b.Close()
	b.Close()
	unsub()

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, b.Publish(Stale))

	late, lateUnsub := b.Subscribe(1)
	defer lateUnsub()
	_, open = <-late
	assert.False(t, open, "subscribing after close yields a closed channel")
}

func TestConcurrentPublishAndSubscribe(t *testing.T) {
	b := New[int](quietLogger())
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, unsub := b.Subscribe(4)
			unsub()
		}()
		go func(v int) {
			defer wg.Done()
			b.Publish(v)
		}(i)
	}
	wg.Wait()
	b.Close()
	assert.Equal(t, 0, b.Len())
}

func TestEventString(t *testing.T) {
	assert.Equal(t, "stale", Stale.String())
	assert.Equal(t, "context_changed", ContextChanged.String())
	assert.Equal(t, "unknown", Event(0).String())
}
