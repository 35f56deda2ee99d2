package app_test

import (
	"sync"
	"testing"
	"time"

	"classroom-service/internal/app"
	"classroom-service/internal/domain"
)

func snapshotFor(classID string, progress int) domain.ClassProgressSnapshot {
	return domain.ClassProgressSnapshot{
		ClassID: classID,
		Students: []domain.StudentProgress{
			{StudentID: "s1", DisplayName: "Ana", Progress: progress},
		},
		UpdatedAt: time.Now(),
	}
}

func TestFeedDeliversPerClass(t *testing.T) {
	feed := app.NewProgressFeed()
	math, cancelMath := feed.Subscribe("math")
	defer cancelMath()
	science, cancelScience := feed.Subscribe("science")
	defer cancelScience()

	feed.Publish(snapshotFor("math", 40))

	select {
	case got := <-math:
		if got.ClassID != "math" || got.Students[0].Progress != 40 {
			t.Fatalf("unexpected snapshot %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("math subscriber got nothing")
	}
	select {
	case got := <-science:
		t.Fatalf("science subscriber must stay silent, got %+v", got)
	default:
	}
}

func TestFeedCancelClosesChannel(t *testing.T) {
	feed := app.NewProgressFeed()
	ch, cancel := feed.Subscribe("math")

	cancel()
	if _, ok := <-ch; ok {
		t.Fatal("canceled subscription must close its channel")
	}
	cancel() // repeat cancel is a no-op

	feed.Publish(snapshotFor("math", 10))
}

func TestFeedDropsStaleForSlowSubscriber(t *testing.T) {
	feed := app.NewProgressFeed()
	ch, cancel := feed.Subscribe("math")
	defer cancel()

	// Publish far past the buffer without reading; must not block.
	for i := 1; i <= 20; i++ {
		feed.Publish(snapshotFor("math", i))
	}

	last := 0
	for {
		select {
		case got := <-ch:
			last = got.Students[0].Progress
			continue
		default:
		}
		break
	}
	if last != 20 {
		t.Fatalf("latest snapshot must survive, last seen %d", last)
	}
}

func TestFeedConcurrentPublishWithStuckSubscriber(t *testing.T) {
	feed := app.NewProgressFeed()
	_, cancel := feed.Subscribe("math")
	defer cancel()

	// Fill the buffer, then hammer Publish from many goroutines without the
	// subscriber ever reading. Every call must return.
	for i := 0; i < 16; i++ {
		feed.Publish(snapshotFor("math", i))
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		var wg sync.WaitGroup
		for round := 0; round < 100; round++ {
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func(progress int) {
					defer wg.Done()
					feed.Publish(snapshotFor("math", progress))
				}(i)
			}
			wg.Wait()
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publish blocked on a subscriber that never reads")
	}
}
