package scheduler

import (
	"testing"
	"time"
)

func TestAfterFiresOnRunChannel(t *testing.T) {
	s := New()
	defer s.Stop()

	s.After(5*time.Millisecond, func() {})

	select {
	case f := <-s.Run():
		f()
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for scheduled task")
	}
}

func TestCancelSuppressesCallback(t *testing.T) {
	s := New()
	defer s.Stop()

	task := s.After(5*time.Millisecond, func() {})
	task.Cancel()

	s.After(20*time.Millisecond, func() {})

	select {
	case f := <-s.Run():
		f()
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the un-cancelled task")
	}

	select {
	case <-s.Run():
		t.Fatal("cancelled task was posted to Run")
	default:
	}
}

func TestOrderingByDueTime(t *testing.T) {
	s := New()
	defer s.Stop()

	var order []int
	done := make(chan struct{}, 3)

	post := func(n int) func() {
		return func() {
			order = append(order, n)
			done <- struct{}{}
		}
	}

	s.After(30*time.Millisecond, post(3))
	s.After(10*time.Millisecond, post(1))
	s.After(20*time.Millisecond, post(2))

	for i := 0; i < 3; i++ {
		select {
		case f := <-s.Run():
			f()
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for tasks")
		}
		<-done
	}

	want := []int{1, 2, 3}
	for i, v := range want {
		if order[i] != v {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}
