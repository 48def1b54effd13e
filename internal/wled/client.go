package wled

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// maxResponseSize bounds how much of a device response we are willing to
// buffer. Preset files on a full device run to a few hundred KB at most.
const maxResponseSize = 1 << 20

// Client talks JSON-over-HTTP to one controller.
//
// All methods take a context and respect both the context deadline and the
// client's configured per-request timeout, whichever is shorter. Errors wrap
// ErrUnreachable or ErrMalformed so callers can classify without inspecting
// messages.
//
// Thread Safety: Client is safe for concurrent use. The timestamp stamp is
// serialized internally so snapshots from concurrent calls still carry
// strictly increasing timestamps.
type Client struct {
	baseURL string
	http    *http.Client

	mu     sync.Mutex
	lastTS time.Time
}

// New creates a client for the controller at host.
//
// host may be a bare hostname/IP or include an http:// scheme and port;
// a trailing slash is trimmed.
func New(host string, timeout time.Duration) *Client {
	base := strings.TrimRight(host, "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}

	return &Client{
		baseURL: base,
		http: &http.Client{
			Timeout: timeout,
		},
	}
}

// Host returns the normalized base URL the client targets.
func (c *Client) Host() string {
	return c.baseURL
}

// Read fetches the combined state+info document and returns the decoded
// snapshot with a fresh timestamp.
func (c *Client) Read(ctx context.Context) (Snapshot, error) {
	var doc documentWire
	if err := c.getJSON(ctx, "/json", &doc); err != nil {
		return Snapshot{}, err
	}

	snap, err := decodeState(doc.State)
	if err != nil {
		return Snapshot{}, err
	}
	snap.Timestamp = c.stamp()
	return snap, nil
}

// Write applies a native command field set and returns the resulting state.
//
// The request is sent verbose, so the firmware answers with the full state
// after applying the change; that answer becomes the returned snapshot. A
// write therefore never needs a follow-up poll to observe its own effect.
func (c *Client) Write(ctx context.Context, req StateRequest) (Snapshot, error) {
	req.Verbose = true

	body, err := json.Marshal(req)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: encoding request: %v", ErrMalformed, err)
	}

	var wire stateWire
	if err := c.postJSON(ctx, "/json/state", body, &wire); err != nil {
		return Snapshot{}, err
	}

	snap, err := decodeState(&wire)
	if err != nil {
		return Snapshot{}, err
	}
	snap.Timestamp = c.stamp()
	return snap, nil
}

// Info fetches the device description and capability flags.
func (c *Client) Info(ctx context.Context) (Info, error) {
	var wire infoWire
	if err := c.getJSON(ctx, "/json/info", &wire); err != nil {
		return Info{}, err
	}
	return decodeInfo(&wire)
}

// Effects fetches the effect name list. The slice index is the effect index
// the firmware uses in segment state.
func (c *Client) Effects(ctx context.Context) ([]string, error) {
	var names []string
	if err := c.getJSON(ctx, "/json/eff", &names); err != nil {
		return nil, err
	}
	return names, nil
}

// Presets fetches the device-persisted presets keyed by slot number.
//
// Slot 0 is the firmware's scratch slot and is dropped. Unnamed presets get
// a "Preset N" placeholder, matching how the device's own UI lists them.
func (c *Client) Presets(ctx context.Context) (map[int]Preset, error) {
	var raw map[string]json.RawMessage
	if err := c.getJSON(ctx, "/presets.json", &raw); err != nil {
		return nil, err
	}

	presets := make(map[int]Preset, len(raw))
	for key, msg := range raw {
		slot, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("%w: preset slot %q is not a number", ErrMalformed, key)
		}
		if slot <= 0 {
			continue
		}
		// Empty slots serialize as {}.
		if string(bytes.TrimSpace(msg)) == "{}" {
			continue
		}

		var pw presetWire
		if err := json.Unmarshal(msg, &pw); err != nil {
			return nil, fmt.Errorf("%w: preset slot %d: %v", ErrMalformed, slot, err)
		}
		name := pw.Name
		if name == "" {
			name = "Preset " + strconv.Itoa(slot)
		}
		presets[slot] = Preset{Name: name}
	}
	return presets, nil
}

// PresetSlots returns the preset slot numbers in ascending order.
func PresetSlots(presets map[int]Preset) []int {
	slots := make([]int, 0, len(presets))
	for slot := range presets {
		slots = append(slots, slot)
	}
	sort.Ints(slots)
	return slots
}

// Restart asks the firmware to reboot. The device drops off the network for
// a few seconds, so the caller should expect the next reads to fail.
func (c *Client) Restart(ctx context.Context) error {
	body, err := json.Marshal(StateRequest{Reboot: true})
	if err != nil {
		return fmt.Errorf("%w: encoding request: %v", ErrMalformed, err)
	}
	// The reboot acknowledgement is not a full state document; ignore it.
	return c.postJSON(ctx, "/json/state", body, nil)
}

// stamp returns a receive timestamp that is strictly after every previously
// issued one, even when the wall clock does not advance between calls.
func (c *Client) stamp() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if !now.After(c.lastTS) {
		now = c.lastTS.Add(time.Nanosecond)
	}
	c.lastTS = now
	return now
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("%w: building request: %v", ErrUnreachable, err)
	}
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, body []byte, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: building request: %v", ErrUnreachable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

// do executes a request and classifies the outcome.
//
// Transport failures, timeouts, and 5xx answers map to ErrUnreachable
// (transient, worth retrying); 4xx answers and undecodable bodies map to
// ErrMalformed (retrying the same request cannot help).
func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrUnreachable, req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("%w: reading response: %v", ErrUnreachable, err)
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("%w: %s %s: status %d", ErrUnreachable, req.Method, req.URL.Path, resp.StatusCode)
	case resp.StatusCode >= http.StatusBadRequest:
		return fmt.Errorf("%w: %s %s: status %d", ErrMalformed, req.Method, req.URL.Path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decoding %s response: %v", ErrMalformed, req.URL.Path, err)
	}
	return nil
}
