package milestone

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/starford/focusguard/internal/feed"
	"github.com/starford/focusguard/internal/session"
	"github.com/starford/focusguard/internal/testutil"
)

type fakeNotifier struct {
	mu    sync.Mutex
	hours []int
}

func (n *fakeNotifier) RepeatedMessages(string, string) {}
func (n *fakeNotifier) IncreasedActivity(string, string) {}
func (n *fakeNotifier) FocusMilestone(hours int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.hours = append(n.hours, hours)
}

func (n *fakeNotifier) fired() []int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]int(nil), n.hours...)
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestScheduler(t *testing.T, broker *feed.Broker) (*Scheduler, *session.Session, *testClock, *fakeNotifier) {
	t.Helper()
	db := testutil.TestDB(t)
	clock := &testClock{t: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
	sess, err := session.New(db, broker, clock.now)
	if err != nil {
		t.Fatal(err)
	}
	notifier := &fakeNotifier{}
	s, err := New(sess, notifier, broker, nil, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return s, sess, clock, notifier
}

func (s *Scheduler) armed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.job != nil
}

func eventually(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func TestTick_QuietUnderAnHour(t *testing.T) {
	s, sess, clock, notifier := newTestScheduler(t, nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	_ = sess.SetActive(true)
	clock.advance(30 * time.Minute)
	s.tick()

	if got := notifier.fired(); len(got) != 0 {
		t.Errorf("reminder fired for a 30m session: %v", got)
	}
}

func TestTick_FiresWithSessionHours(t *testing.T) {
	s, sess, clock, notifier := newTestScheduler(t, nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	_ = sess.SetActive(true)
	clock.advance(time.Hour + 5*time.Minute)
	s.tick()
	clock.advance(time.Hour)
	s.tick()

	got := notifier.fired()
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("fired = %v, want [1 2]", got)
	}
}

func TestTick_DisarmsWhenInactive(t *testing.T) {
	s, sess, _, notifier := newTestScheduler(t, nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	_ = sess.SetActive(true)
	s.armIfEnabled()
	if !s.armed() {
		t.Fatal("expected armed after focus on")
	}

	_ = sess.SetActive(false)
	s.tick()

	if s.armed() {
		t.Error("stale job did not disarm itself")
	}
	if got := notifier.fired(); len(got) != 0 {
		t.Errorf("reminder fired while inactive: %v", got)
	}
}

func TestFeedFollowerArmsAndDisarms(t *testing.T) {
	broker := feed.NewBroker(time.Millisecond)
	defer broker.Close()

	s, sess, _, _ := newTestScheduler(t, broker)
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	if s.armed() {
		t.Fatal("armed before any session")
	}

	_ = sess.SetActive(true)
	if !eventually(t, 2*time.Second, s.armed) {
		t.Fatal("never armed after focus on")
	}

	_ = sess.SetActive(false)
	if !eventually(t, 2*time.Second, func() bool { return !s.armed() }) {
		t.Fatal("never disarmed after focus off")
	}
}

func TestStart_ArmsForRunningSession(t *testing.T) {
	broker := feed.NewBroker(time.Millisecond)
	defer broker.Close()

	s, sess, _, _ := newTestScheduler(t, broker)
	_ = sess.SetActive(true)

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	if !s.armed() {
		t.Error("restart with an active session should arm immediately")
	}
}

func TestSetEnabled(t *testing.T) {
	s, sess, _, _ := newTestScheduler(t, nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	_ = sess.SetActive(true)
	s.armIfEnabled()
	if !s.armed() {
		t.Fatal("expected armed")
	}

	if err := s.SetEnabled(false); err != nil {
		t.Fatal(err)
	}
	if s.armed() {
		t.Error("disable did not cancel the pending reminder")
	}

	if err := s.SetEnabled(true); err != nil {
		t.Fatal(err)
	}
	if !s.armed() {
		t.Error("re-enable with an active session did not re-arm")
	}
}

func TestArmSkippedWhenDisabled(t *testing.T) {
	s, sess, _, _ := newTestScheduler(t, nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	_ = sess.SetMilestonesEnabled(false)
	_ = sess.SetActive(true)
	s.armIfEnabled()

	if s.armed() {
		t.Error("armed despite milestones disabled")
	}
}
