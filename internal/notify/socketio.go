package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/vk/actiongrid/internal/action"
	"github.com/vk/actiongrid/internal/ctxlog"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// DefaultEvent is the socket.io event name transitions are emitted under.
const DefaultEvent = "transition"

const connectTimeout = 15 * time.Second

// SocketIOConfig configures DialSocketIO.
type SocketIOConfig struct {
	URL                string
	Namespace          string
	Event              string
	RunID              string
	InsecureSkipVerify bool
}

// SocketIO emits every transition to a socket.io server.
type SocketIO struct {
	event string
	runID string
	emit  func(event string, payload map[string]any)
	close func()
}

var _ action.Observer = (*SocketIO)(nil)

// DialSocketIO connects to the server and waits for the connect event.
func DialSocketIO(ctx context.Context, cfg SocketIOConfig) (*SocketIO, error) {
	logger := ctxlog.FromContext(ctx).With("notifier", "socketio", "url", cfg.URL)

	parsedURL, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("notify url %q must be absolute", cfg.URL)
	}

	opts := socket.DefaultOptions()
	if parsedURL.Path != "" {
		opts.SetPath(parsedURL.Path)
	}
	if cfg.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	connectChan := make(chan error, 1)
	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(cfg.Namespace, opts)

	io.Once(types.EventName("connect"), func(...any) {
		logger.Info("Notifier connected.", "sid", io.Id())
		signal(connectChan, nil)
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		err := errors.New("connect_error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		signal(connectChan, err)
	})

	io.Connect()

	select {
	case err := <-connectChan:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("context cancelled while waiting for socket.io connection: %w", ctx.Err())
	case <-time.After(connectTimeout):
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %s waiting for socket.io connection", connectTimeout)
	}

	return newSocketIO(cfg.Event, cfg.RunID,
		func(event string, payload map[string]any) { io.Emit(event, payload) },
		func() { io.Disconnect() },
	), nil
}

// signal reports the first connection outcome. Later outcomes, or ones that
// arrive after DialSocketIO gave up, are dropped so library goroutines
// never block on the channel.
func signal(ch chan<- error, err error) {
	select {
	case ch <- err:
	default:
	}
}

func newSocketIO(event, runID string, emit func(string, map[string]any), closeFn func()) *SocketIO {
	if event == "" {
		event = DefaultEvent
	}
	return &SocketIO{event: event, runID: runID, emit: emit, close: closeFn}
}

// OnTransition implements action.Observer.
func (s *SocketIO) OnTransition(ctx context.Context, tr action.Transition) {
	ev := NewEvent(s.runID, tr)
	ctxlog.FromContext(ctx).Debug("Emitting transition.", "event", s.event, "action", ev.Prefix, "to", ev.To)
	s.emit(s.event, ev.Map())
}

// Close disconnects from the server.
func (s *SocketIO) Close() {
	if s.close != nil {
		s.close()
	}
}
