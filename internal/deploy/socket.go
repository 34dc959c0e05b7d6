package deploy

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/specialistvlad/stepship/internal/ctxlog"
	"github.com/specialistvlad/stepship/internal/deploy/status"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// DefaultFeedURL is the production status feed.
const DefaultFeedURL = "wss://ws.stepship.dev"

// SocketFeed is a Feed backed by a socket.io connection.
type SocketFeed struct {
	URL string
	// ConnectTimeout bounds the wait for the first connect. Zero means 15s.
	ConnectTimeout time.Duration
}

type itemRef struct {
	EntityType string
	ID         string
	Field      string
}

func (r itemRef) payload() map[string]any {
	return map[string]any{"entityType": r.EntityType, "id": r.ID, "field": r.Field}
}

type socketSubscription struct {
	io      *socket.Socket
	ref     itemRef
	updates chan status.DeployData
	done    chan struct{}

	mu     sync.Mutex
	latest *status.DeployData

	closeOnce sync.Once
}

// Subscribe connects to the feed and joins the item. The item is re-joined on
// every reconnect.
func (f *SocketFeed) Subscribe(ctx context.Context, entityType, id, field string) (Subscription, error) {
	logger := ctxlog.FromContext(ctx).With("feed", f.URL, "id", id)

	parsedURL, err := url.Parse(f.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed URL: %w", err)
	}

	opts := socket.DefaultOptions()
	if parsedURL.Path != "" && parsedURL.Path != "/" {
		opts.SetPath(parsedURL.Path)
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket("/", opts)

	sub := &socketSubscription{
		io:      io,
		ref:     itemRef{EntityType: entityType, ID: id, Field: field},
		updates: make(chan status.DeployData, 16),
		done:    make(chan struct{}),
	}

	connected := make(chan error, 1)
	var first sync.Once

	io.On(types.EventName("connect"), func(...any) {
		logger.Debug("Feed connected.", "sid", io.Id())
		io.Emit("join", sub.ref.payload())
		first.Do(func() { connected <- nil })
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		var err error = fmt.Errorf("connect error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		first.Do(func() { connected <- err })
	})
	io.On(types.EventName(field), func(args ...any) {
		if len(args) == 0 {
			return
		}
		d, err := decodeDeployData(args[0])
		if err != nil {
			logger.Debug("Dropping malformed feed payload.", "error", err)
			return
		}
		sub.push(d)
	})

	io.Connect()

	timeout := f.ConnectTimeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	select {
	case err := <-connected:
		if err != nil {
			sub.Close()
			return nil, fmt.Errorf("status feed connection failed: %w", err)
		}
		return sub, nil
	case <-ctx.Done():
		sub.Close()
		return nil, ctx.Err()
	case <-time.After(timeout):
		sub.Close()
		return nil, fmt.Errorf("timed out after %s waiting for the status feed", timeout)
	}
}

func (s *socketSubscription) push(d status.DeployData) {
	s.mu.Lock()
	s.latest = &d
	s.mu.Unlock()

	select {
	case s.updates <- d:
	case <-s.done:
	default:
		// The poll path still sees the latest snapshot.
	}
}

func (s *socketSubscription) Updates() <-chan status.DeployData {
	return s.updates
}

func (s *socketSubscription) Fetch(context.Context) (status.DeployData, bool, error) {
	select {
	case <-s.done:
		return status.DeployData{}, false, fmt.Errorf("subscription closed")
	default:
	}
	s.io.Emit("get", s.ref.payload())

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == nil {
		return status.DeployData{}, false, nil
	}
	return *s.latest, true, nil
}

func (s *socketSubscription) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.io.Disconnect()
	})
	return nil
}
