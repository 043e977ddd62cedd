package assignment

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWorkloadTracker_Basics(t *testing.T) {
	tracker := NewWorkloadTracker()

	assert.Equal(t, 0, tracker.CurrentLoad("u1"))
	assert.Equal(t, 1, tracker.Reserve("u1"))
	assert.Equal(t, 2, tracker.Reserve("u1"))
	tracker.Release("u1")
	assert.Equal(t, 1, tracker.CurrentLoad("u1"))

	tracker.Release("u2")
	assert.Equal(t, 0, tracker.CurrentLoad("u2"))

	tracker.Seed(map[string]int{"u3": 4})
	assert.Equal(t, map[string]int{"u3": 4}, tracker.Snapshot())

	snap := tracker.Snapshot()
	snap["u3"] = 100
	assert.Equal(t, 4, tracker.CurrentLoad("u3"))
}

func TestWorkloadTracker_ReserveLeastLoaded(t *testing.T) {
	tracker := NewWorkloadTracker()
	tracker.Seed(map[string]int{"a": 2, "b": 1, "c": 1})

	id, ok := tracker.ReserveLeastLoaded([]string{"a", "b", "c"}, "")
	assert.True(t, ok)
	assert.Equal(t, "b", id)
	assert.Equal(t, 2, tracker.CurrentLoad("b"))

	id, ok = tracker.ReserveLeastLoaded([]string{"a", "b", "c"}, "c")
	assert.True(t, ok)
	assert.Equal(t, "a", id)

	_, ok = tracker.ReserveLeastLoaded([]string{"c"}, "c")
	assert.False(t, ok)
	_, ok = tracker.ReserveLeastLoaded(nil, "")
	assert.False(t, ok)
}

func TestWorkloadTracker_FairnessBound(t *testing.T) {
	for _, tc := range []struct{ n, u int }{{10, 3}, {7, 7}, {100, 6}, {1, 4}} {
		t.Run(fmt.Sprintf("%d_over_%d", tc.n, tc.u), func(t *testing.T) {
			tracker := NewWorkloadTracker()
			users := make([]string, tc.u)
			for i := range users {
				users[i] = fmt.Sprintf("u%d", i)
			}
			for i := 0; i < tc.n; i++ {
				_, ok := tracker.ReserveLeastLoaded(users, "")
				assert.True(t, ok)
			}

			bound := (tc.n+tc.u-1)/tc.u + 1
			for id, load := range tracker.Snapshot() {
				assert.LessOrEqual(t, load, bound, "user %s", id)
			}
		})
	}
}

func TestWorkloadTracker_ConcurrentReservations(t *testing.T) {
	tracker := NewWorkloadTracker()
	users := []string{"a", "b", "c", "d"}
	const workers, perWorker = 8, 50

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				tracker.ReserveLeastLoaded(users, "")
			}
		}()
	}
	wg.Wait()

	total := 0
	bound := (workers*perWorker+len(users)-1)/len(users) + 1
	for _, load := range tracker.Snapshot() {
		total += load
		assert.LessOrEqual(t, load, bound)
	}
	assert.Equal(t, workers*perWorker, total)
}
