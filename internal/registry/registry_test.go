package registry

import (
	"testing"
	"time"
)

func newHandle(owner, session string) *Handle {
	return &Handle{
		OwnerID:     owner,
		SessionID:   session,
		Send:        func([]byte) error { return nil },
		ConnectedAt: time.Now(),
	}
}

func TestRegisterAndLive(t *testing.T) {
	r := New()

	if r.Live("owner1") {
		t.Error("Owner live before registration")
	}
	r.Register(newHandle("owner1", "s1"))
	if !r.Live("owner1") {
		t.Error("Owner not live after registration")
	}
	if r.Sender("owner1") == nil {
		t.Error("Sender nil for live owner")
	}
	if r.Sender("owner2") != nil {
		t.Error("Sender not nil for unknown owner")
	}
}

func TestUnregisterSessionChecked(t *testing.T) {
	r := New()
	r.Register(newHandle("owner1", "s1"))
	r.Register(newHandle("owner1", "s2")) // reconnect replaces s1

	// The old session's disconnect must not drop the new connection.
	r.Unregister("owner1", "s1")
	if !r.Live("owner1") {
		t.Error("Stale unregister removed the newer session")
	}

	r.Unregister("owner1", "s2")
	if r.Live("owner1") {
		t.Error("Owner still live after matching unregister")
	}
}

func TestOnRegisterHookFires(t *testing.T) {
	r := New()

	flushed := make(chan string, 1)
	r.OnRegister(func(ownerID string) {
		flushed <- ownerID
	})

	r.Register(newHandle("owner1", "s1"))

	select {
	case owner := <-flushed:
		if owner != "owner1" {
			t.Errorf("Hook fired for wrong owner: %q", owner)
		}
	case <-time.After(time.Second):
		t.Fatal("OnRegister hook never fired")
	}
}
