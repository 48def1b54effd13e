package wled

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Reconnect backoff bounds for the push channel.
const (
	socketBackoffMin = 1 * time.Second
	socketBackoffMax = 60 * time.Second
)

// socketReadLimit bounds a single push frame.
const socketReadLimit = 256 * 1024

// SocketLogger receives connection lifecycle events from a Socket.
type SocketLogger interface {
	Warn(msg string, args ...any)
	Debug(msg string, args ...any)
}

// Socket maintains a WebSocket connection to the controller's /ws endpoint
// and delivers state push frames as snapshots.
//
// The push channel is an accelerator, not a requirement: the firmware pushes
// the same state document it serves over HTTP whenever anything changes, so
// a working socket turns a change made at the device (physical button, its
// own UI) into a snapshot within milliseconds instead of a poll interval.
// When the socket is down the loop still converges through polling.
//
// Thread Safety: Run is a single-goroutine loop; Snapshots may be consumed
// from any goroutine.
type Socket struct {
	client *Client
	url    string
	out    chan Snapshot
	logger SocketLogger
}

// NewSocket creates a push channel bound to client's device. Snapshots it
// emits share the client's timestamp stamp, so push and poll observations
// stay mutually ordered.
func NewSocket(client *Client, logger SocketLogger) *Socket {
	wsURL := client.Host()
	wsURL = strings.Replace(wsURL, "https://", "wss://", 1)
	wsURL = strings.Replace(wsURL, "http://", "ws://", 1)

	return &Socket{
		client: client,
		url:    wsURL + "/ws",
		out:    make(chan Snapshot, 8),
		logger: logger,
	}
}

// Snapshots returns the channel carrying decoded push frames. Closed when
// Run returns.
func (s *Socket) Snapshots() <-chan Snapshot {
	return s.out
}

// Run connects, reads push frames, and reconnects with exponential backoff
// until ctx is cancelled. Malformed frames are logged and dropped; they
// never terminate the connection.
func (s *Socket) Run(ctx context.Context) {
	defer close(s.out)

	backoff := socketBackoffMin
	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Debug("push channel dial failed",
				"url", s.url,
				"error", err,
				"retry_in", backoff.String(),
			)
			if !sleepCtx(ctx, backoff) {
				return
			}
			backoff = min(backoff*2, socketBackoffMax)
			continue
		}

		backoff = socketBackoffMin
		s.logger.Debug("push channel connected", "url", s.url)

		s.readLoop(ctx, conn)
		conn.Close()

		if ctx.Err() != nil {
			return
		}
		s.logger.Debug("push channel disconnected", "url", s.url)
	}
}

// readLoop consumes frames until the connection breaks or ctx is cancelled.
func (s *Socket) readLoop(ctx context.Context, conn *websocket.Conn) {
	conn.SetReadLimit(socketReadLimit)

	// Unblock ReadMessage on cancellation.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var frame pushWire
		if err := json.Unmarshal(data, &frame); err != nil {
			s.logger.Warn("dropping undecodable push frame", "error", err)
			continue
		}
		if frame.State == nil {
			// Frames without a state object (e.g. live-view data) are noise.
			continue
		}

		snap, err := decodeState(frame.State)
		if err != nil {
			s.logger.Warn("dropping malformed push frame", "error", err)
			continue
		}
		snap.Timestamp = s.client.stamp()

		select {
		case s.out <- snap:
		default:
			// Consumer is behind; the next frame supersedes this one anyway.
		}
	}
}

// sleepCtx sleeps for d or until ctx is cancelled; reports whether the full
// duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
