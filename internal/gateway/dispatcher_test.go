// ABOUTME: Tests for the message dispatcher against a live fake event channel.
// ABOUTME: Validation failures are checked before any frame reaches the wire.

package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garapadev/garapasystem-sub001/internal/auth"
	"github.com/garapadev/garapasystem-sub001/internal/session"
	"github.com/garapadev/garapasystem-sub001/internal/worker"
)

// fakeWire accepts one websocket per session path and records every frame
// the dispatcher writes to it.
type fakeWire struct {
	server *httptest.Server

	mu     sync.Mutex
	frames []worker.Frame
}

func newFakeWire(t *testing.T) *fakeWire {
	t.Helper()
	f := &fakeWire{}
	upgrader := websocket.Upgrader{}

	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		go func() {
			defer conn.Close()
			for {
				var frame worker.Frame
				if err := conn.ReadJSON(&frame); err != nil {
					return
				}
				f.mu.Lock()
				f.frames = append(f.frames, frame)
				f.mu.Unlock()
			}
		}()
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeWire) wsURL() string {
	return "ws" + strings.TrimPrefix(f.server.URL, "http") + "/events"
}

func (f *fakeWire) sentFrames() []worker.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]worker.Frame, len(f.frames))
	copy(out, f.frames)
	return out
}

type dispatcherFixture struct {
	dispatcher *Dispatcher
	registry   *session.Registry
	channels   *worker.ChannelRegistry
	wire       *fakeWire
}

func newDispatcherFixture(t *testing.T, delay time.Duration) *dispatcherFixture {
	t.Helper()
	logger := testLogger()

	fx := &dispatcherFixture{
		registry: session.NewRegistry(),
		channels: worker.NewChannelRegistry(logger),
		wire:     newFakeWire(t),
	}
	fx.dispatcher = NewDispatcher(DispatcherParams{
		Verifier:          auth.NewStaticVerifier(testToken),
		Registry:          fx.registry,
		Channels:          fx.channels,
		Logger:            logger,
		MessageDelay:      delay,
		AllowedMediaTypes: []string{"image", "audio", "video", "document"},
	})
	t.Cleanup(fx.channels.CloseAll)
	return fx
}

// connectSession registers a connected session with a live bound channel.
func (fx *dispatcherFixture) connectSession(t *testing.T, id string) {
	t.Helper()

	fx.registry.Upsert(id, func(s *session.Session) {
		s.SessionKey = "key-" + id
		s.Status = session.StatusConnected
		s.PhoneNumber = "+5511999999999"
	})

	ch, err := worker.Dial(context.Background(), worker.DialConfig{
		WSURL:      fx.wire.wsURL(),
		AdminToken: testToken,
		MaxRetries: 1,
	}, id, discardHandler{}, testLogger())
	require.NoError(t, err)
	require.NoError(t, fx.channels.Bind(ch))
}

type discardHandler struct{}

func (discardHandler) HandleEvent(string, worker.Event)     {}
func (discardHandler) HandleClosed(string, *worker.Channel) {}

func TestSendTextWritesFrame(t *testing.T) {
	fx := newDispatcherFixture(t, 0)
	fx.connectSession(t, "s1")

	result, err := fx.dispatcher.SendText("s1", testToken, "chat-1", "hello there")
	require.NoError(t, err)

	assert.NotEmpty(t, result.MessageID)
	assert.Equal(t, "chat-1", result.ChatID)
	assert.Equal(t, "sent", result.Status)
	assert.False(t, result.Timestamp.IsZero())

	deadline := time.Now().Add(2 * time.Second)
	for len(fx.wire.sentFrames()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("frame never reached the wire")
		}
		time.Sleep(5 * time.Millisecond)
	}

	frame := fx.wire.sentFrames()[0]
	assert.Equal(t, worker.FrameSendMessage, frame.Type)
	assert.Equal(t, result.MessageID, frame.MessageID)
	assert.Equal(t, "chat-1", frame.ChatID)
	assert.Equal(t, "text", frame.MessageType)
	assert.Equal(t, "hello there", frame.Content)
	assert.Equal(t, result.Timestamp.UnixMilli(), frame.Timestamp)
}

func TestSendImageCarriesMediaURLAndCaption(t *testing.T) {
	fx := newDispatcherFixture(t, 0)
	fx.connectSession(t, "s1")

	result, err := fx.dispatcher.SendImage("s1", testToken, "chat-1", "https://cdn.example/pic.jpg", "look at this")
	require.NoError(t, err)

	deadline := time.Now().Add(2 * time.Second)
	for len(fx.wire.sentFrames()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("frame never reached the wire")
		}
		time.Sleep(5 * time.Millisecond)
	}

	frame := fx.wire.sentFrames()[0]
	assert.Equal(t, result.MessageID, frame.MessageID)
	assert.Equal(t, "image", frame.MessageType)
	assert.Equal(t, "https://cdn.example/pic.jpg", frame.MediaURL)
	assert.Equal(t, "look at this", frame.Content)
}

func TestSendAppliesMessageDelay(t *testing.T) {
	const delay = 150 * time.Millisecond
	fx := newDispatcherFixture(t, delay)
	fx.connectSession(t, "s1")

	start := time.Now()
	_, err := fx.dispatcher.SendText("s1", testToken, "chat-1", "paced")
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), delay)
}

func TestSendUniqueMessageIDs(t *testing.T) {
	fx := newDispatcherFixture(t, 0)
	fx.connectSession(t, "s1")

	r1, err := fx.dispatcher.SendText("s1", testToken, "chat-1", "one")
	require.NoError(t, err)
	r2, err := fx.dispatcher.SendText("s1", testToken, "chat-1", "two")
	require.NoError(t, err)

	assert.NotEqual(t, r1.MessageID, r2.MessageID)
}

func TestSendRejectsInvalidToken(t *testing.T) {
	fx := newDispatcherFixture(t, 0)
	fx.connectSession(t, "s1")

	_, err := fx.dispatcher.SendText("s1", "wrong", "chat-1", "hello")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
	assert.Empty(t, fx.wire.sentFrames())
}

func TestSendTokenCheckedBeforePayload(t *testing.T) {
	fx := newDispatcherFixture(t, 0)
	fx.connectSession(t, "s1")

	// An unauthorized caller gets the token error even when the payload
	// is also bad: validation details leak nothing before auth.
	_, err := fx.dispatcher.SendText("s1", "wrong", "chat-1", "")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
	assert.NotErrorIs(t, err, ErrInvalidParameters)

	_, err = fx.dispatcher.SendImage("s1", "wrong", "chat-1", "", "")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	_, err = fx.dispatcher.SendDocument("s1", "wrong", "", "https://cdn.example/f.pdf", "f.pdf")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	assert.Empty(t, fx.wire.sentFrames())
}

func TestSendUnknownSession(t *testing.T) {
	fx := newDispatcherFixture(t, 0)

	_, err := fx.dispatcher.SendText("nope", testToken, "chat-1", "hello")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSendWhileNotConnected(t *testing.T) {
	fx := newDispatcherFixture(t, 0)

	for _, status := range []session.Status{
		session.StatusDisconnected,
		session.StatusConnecting,
		session.StatusQrRequired,
	} {
		t.Run(status.String(), func(t *testing.T) {
			fx.registry.Upsert("s-"+status.String(), func(s *session.Session) {
				s.Status = status
			})

			_, err := fx.dispatcher.SendText("s-"+status.String(), testToken, "chat-1", "hello")
			assert.ErrorIs(t, err, ErrSessionNotConnected, "no sends outside connected states")
		})
	}
	assert.Empty(t, fx.wire.sentFrames())
}

func TestSendInChatSessionIsAllowed(t *testing.T) {
	fx := newDispatcherFixture(t, 0)
	fx.connectSession(t, "s1")
	fx.registry.Update("s1", func(s *session.Session) {
		s.Status = session.StatusInChat
	})

	_, err := fx.dispatcher.SendText("s1", testToken, "chat-1", "hello")
	assert.NoError(t, err)
}

func TestSendWithoutBoundChannel(t *testing.T) {
	fx := newDispatcherFixture(t, 0)
	fx.registry.Upsert("s1", func(s *session.Session) {
		s.Status = session.StatusConnected
	})

	_, err := fx.dispatcher.SendText("s1", testToken, "chat-1", "hello")
	assert.ErrorIs(t, err, worker.ErrChannelNotFound)
}

func TestSendValidatesParameters(t *testing.T) {
	fx := newDispatcherFixture(t, 0)
	fx.connectSession(t, "s1")

	_, err := fx.dispatcher.SendText("s1", testToken, "", "hello")
	assert.ErrorIs(t, err, ErrInvalidParameters, "chatId required")

	_, err = fx.dispatcher.SendText("s1", testToken, "chat-1", "")
	assert.ErrorIs(t, err, ErrInvalidParameters, "content required")

	_, err = fx.dispatcher.SendImage("s1", testToken, "chat-1", "", "caption")
	assert.ErrorIs(t, err, ErrInvalidParameters, "mediaUrl required")
}

func TestSendRejectsDisallowedMediaType(t *testing.T) {
	logger := testLogger()
	registry := session.NewRegistry()
	channels := worker.NewChannelRegistry(logger)
	dispatcher := NewDispatcher(DispatcherParams{
		Verifier:          auth.NewStaticVerifier(testToken),
		Registry:          registry,
		Channels:          channels,
		Logger:            logger,
		AllowedMediaTypes: []string{"image"},
	})
	registry.Upsert("s1", func(s *session.Session) {
		s.Status = session.StatusConnected
	})

	_, err := dispatcher.SendVideo("s1", testToken, "chat-1", "https://cdn.example/v.mp4", "")
	assert.ErrorIs(t, err, ErrInvalidParameters)
}
