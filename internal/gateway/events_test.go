// ABOUTME: Tests for worker event application: QR, connect, disconnect, inbound messages.
// ABOUTME: Covers redelivery suppression and channel-drop handling.

package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garapadev/garapasystem-sub001/internal/session"
	"github.com/garapadev/garapasystem-sub001/internal/worker"
)

func seedSession(fx *managerFixture, id string, status session.Status) {
	fx.registry.Upsert(id, func(s *session.Session) {
		s.SessionKey = "key-" + id
		s.Status = status
	})
}

func TestQRIssuedEvent(t *testing.T) {
	fx := newManagerFixture(t, nil)
	seedSession(fx, "s1", session.StatusConnecting)

	fx.manager.HandleEvent("s1", worker.Event{Type: worker.EventQRIssued, QRCode: "QR-1"})

	s, ok := fx.registry.Get("s1")
	require.True(t, ok)
	assert.Equal(t, session.StatusQrRequired, s.Status)
	assert.Equal(t, "QR-1", s.QRCode)
	assert.Empty(t, s.PhoneNumber)
	assert.False(t, s.LastActivity.IsZero())
}

func TestQRIssuedReplacesPreviousCode(t *testing.T) {
	fx := newManagerFixture(t, nil)
	seedSession(fx, "s1", session.StatusConnecting)

	fx.manager.HandleEvent("s1", worker.Event{Type: worker.EventQRIssued, QRCode: "QR-1"})
	fx.manager.HandleEvent("s1", worker.Event{Type: worker.EventQRIssued, QRCode: "QR-2"})

	s, _ := fx.registry.Get("s1")
	assert.Equal(t, "QR-2", s.QRCode, "a freshly issued code supersedes the old one")
}

func TestConnectedEvent(t *testing.T) {
	fx := newManagerFixture(t, nil)
	seedSession(fx, "s1", session.StatusQrRequired)

	fx.manager.HandleEvent("s1", worker.Event{Type: worker.EventConnected, PhoneNumber: "+5511999999999"})

	s, _ := fx.registry.Get("s1")
	assert.Equal(t, session.StatusConnected, s.Status)
	assert.Equal(t, "+5511999999999", s.PhoneNumber)
	assert.Empty(t, s.QRCode)
}

func TestDisconnectedEventRetainsPhoneNumber(t *testing.T) {
	fx := newManagerFixture(t, nil)
	seedSession(fx, "s1", session.StatusConnected)
	fx.registry.Update("s1", func(s *session.Session) {
		s.PhoneNumber = "+5511999999999"
	})

	fx.manager.HandleEvent("s1", worker.Event{Type: worker.EventDisconnected})

	s, ok := fx.registry.Get("s1")
	require.True(t, ok, "record is retained after a worker disconnect")
	assert.Equal(t, session.StatusDisconnected, s.Status)
	assert.Equal(t, "+5511999999999", s.PhoneNumber, "last known number kept for diagnostics")
	assert.Empty(t, s.QRCode)
}

func TestEventsForUnknownSessionAreDropped(t *testing.T) {
	fx := newManagerFixture(t, nil)

	fx.manager.HandleEvent("ghost", worker.Event{Type: worker.EventConnected, PhoneNumber: "+55"})
	fx.manager.HandleEvent("ghost", worker.Event{Type: worker.EventQRIssued, QRCode: "QR"})

	assert.Equal(t, 0, fx.registry.Len(), "events must never resurrect a closed session")
}

func TestMessageReceivedFansOut(t *testing.T) {
	fx := newManagerFixture(t, nil)
	seedSession(fx, "s1", session.StatusConnected)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, _ := fx.manager.Subscribe(ctx, "s1")

	msg := &worker.InboundMessage{
		MessageID:   "m1",
		ChatID:      "chat-1",
		MessageType: "text",
		Content:     "hello",
		Timestamp:   time.Now(),
	}
	fx.manager.HandleEvent("s1", worker.Event{Type: worker.EventMessageReceived, Message: msg})

	select {
	case got := <-ch:
		assert.Equal(t, "m1", got.MessageID)
		assert.Equal(t, "hello", got.Content)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber never received the message")
	}

	s, _ := fx.registry.Get("s1")
	assert.False(t, s.LastActivity.IsZero(), "inbound traffic counts as activity")
}

func TestMessageRedeliveryIsSuppressed(t *testing.T) {
	fx := newManagerFixture(t, nil)
	seedSession(fx, "s1", session.StatusConnected)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, _ := fx.manager.Subscribe(ctx, "s1")

	msg := &worker.InboundMessage{MessageID: "m1", ChatID: "chat-1", MessageType: "text", Content: "hello"}
	fx.manager.HandleEvent("s1", worker.Event{Type: worker.EventMessageReceived, Message: msg})
	fx.manager.HandleEvent("s1", worker.Event{Type: worker.EventMessageReceived, Message: msg})

	<-ch
	select {
	case got := <-ch:
		t.Fatalf("redelivered message %q reached a subscriber", got.MessageID)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestChannelDropMarksSessionDisconnected(t *testing.T) {
	fx := newManagerFixture(t, nil)
	wire := newFakeWire(t)

	seedSession(fx, "s1", session.StatusConnected)
	fx.registry.Update("s1", func(s *session.Session) {
		s.PhoneNumber = "+5511999999999"
	})

	ch, err := worker.Dial(context.Background(), worker.DialConfig{
		WSURL:      wire.wsURL(),
		AdminToken: "admin-secret",
		MaxRetries: 1,
	}, "s1", fx.manager, testLogger())
	require.NoError(t, err)
	require.NoError(t, fx.channels.Bind(ch))

	// Simulate transport loss; the read loop must report closure.
	ch.Close()

	deadline := time.Now().Add(2 * time.Second)
	for {
		s, ok := fx.registry.Get("s1")
		require.True(t, ok, "record must remain queryable after a drop")
		if s.Status == session.StatusDisconnected {
			assert.Equal(t, "+5511999999999", s.PhoneNumber)
			assert.False(t, fx.channels.IsBound("s1"))
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("session never disconnected, status %s", s.Status)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHandleClosedWithoutBindingIsNoop(t *testing.T) {
	fx := newManagerFixture(t, nil)
	seedSession(fx, "s1", session.StatusConnected)

	// Deliberate close unbinds before the read loop ends; the late
	// notification must not flip the session back to disconnected.
	fx.manager.HandleClosed("s1", nil)

	s, _ := fx.registry.Get("s1")
	assert.Equal(t, session.StatusConnected, s.Status)
}

func TestStaleChannelClosureKeepsReplacementBound(t *testing.T) {
	fx := newManagerFixture(t, nil)
	wire := newFakeWire(t)

	seedSession(fx, "s1", session.StatusConnected)

	dial := func() *worker.Channel {
		ch, err := worker.Dial(context.Background(), worker.DialConfig{
			WSURL:      wire.wsURL(),
			AdminToken: "admin-secret",
			MaxRetries: 1,
		}, "s1", fx.manager, testLogger())
		require.NoError(t, err)
		return ch
	}

	stale := dial()
	require.NoError(t, fx.channels.Bind(stale))
	fx.channels.Unbind("s1")

	replacement := dial()
	require.NoError(t, fx.channels.Bind(replacement))
	t.Cleanup(replacement.Close)

	// The stale channel's read loop reports closure after the session
	// has already re-dialed; the replacement must survive it.
	fx.manager.HandleClosed("s1", stale)

	got, ok := fx.channels.Get("s1")
	require.True(t, ok)
	assert.Same(t, replacement, got)

	s, _ := fx.registry.Get("s1")
	assert.Equal(t, session.StatusConnected, s.Status)
}
