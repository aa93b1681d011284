package hunt

import (
	"fmt"
	"testing"
	"time"
)

func TestNotificationsExpire(t *testing.T) {
	q := NewNotifications()
	t0 := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	q.Push(KindInfo, "first", t0)
	q.Push(KindError, "second", t0.Add(2*time.Second))

	if got := q.Active(t0.Add(time.Second)); len(got) != 2 {
		t.Fatalf("active = %d, want 2", len(got))
	}
	got := q.Active(t0.Add(3 * time.Second))
	if len(got) != 1 || got[0].Message != "second" {
		t.Fatalf("after first expired: %+v", got)
	}
	if got := q.Active(t0.Add(time.Minute)); len(got) != 0 {
		t.Fatalf("all should be expired, got %+v", got)
	}
}

func TestNotificationsBounded(t *testing.T) {
	q := NewNotifications()
	now := time.Now()

	for i := 0; i < 8; i++ {
		q.Push(KindInfo, fmt.Sprintf("msg %d", i), now)
	}
	got := q.Active(now)
	if len(got) != notificationLimit {
		t.Fatalf("len = %d, want %d", len(got), notificationLimit)
	}
	if got[0].Message != "msg 3" {
		t.Errorf("oldest kept = %q, want msg 3", got[0].Message)
	}
}

func TestNotificationsDismiss(t *testing.T) {
	q := NewNotifications()
	now := time.Now()
	a := q.Push(KindInfo, "a", now)
	q.Push(KindInfo, "b", now)

	if !q.Dismiss(a.ID) {
		t.Fatal("Dismiss returned false")
	}
	if q.Dismiss(a.ID) {
		t.Error("second Dismiss returned true")
	}
	if got := q.Active(now); len(got) != 1 || got[0].Message != "b" {
		t.Errorf("remaining = %+v", got)
	}
}
