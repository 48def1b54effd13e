package wled

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

const testStateJSON = `{
	"on": true,
	"bri": 128,
	"ps": -1,
	"seg": [{"id":0,"on":true,"bri":255,"col":[[255,160,0],[0,0,0],[0,0,0]],"fx":0,"sx":128,"ix":128}]
}`

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, New(srv.URL, 2*time.Second)
}

func TestNewNormalizesHost(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"192.168.1.50", "http://192.168.1.50"},
		{"http://192.168.1.50", "http://192.168.1.50"},
		{"http://wled-kitchen.local/", "http://wled-kitchen.local"},
		{"https://wled.example.com:8443", "https://wled.example.com:8443"},
	}
	for _, tt := range tests {
		if got := New(tt.host, time.Second).Host(); got != tt.want {
			t.Errorf("New(%q).Host() = %q, want %q", tt.host, got, tt.want)
		}
	}
}

func TestRead(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/json" {
			t.Errorf("path = %s, want /json", r.URL.Path)
		}
		io.WriteString(w, `{"state":`+testStateJSON+`,"info":{"name":"Test","ver":"0.14.4","mac":"aabbccddeeff","leds":{"count":60,"cct":false}}}`)
	})

	snap, err := client.Read(context.Background())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !snap.Power || snap.Brightness != 128 {
		t.Errorf("power/brightness = %v/%d, want true/128", snap.Power, snap.Brightness)
	}
	if snap.Timestamp.IsZero() {
		t.Error("snapshot missing timestamp")
	}
}

func TestWriteSendsVerboseAndDecodesResult(t *testing.T) {
	var received map[string]interface{}
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/json/state" || r.Method != http.MethodPost {
			t.Errorf("got %s %s, want POST /json/state", r.Method, r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &received); err != nil {
			t.Errorf("request body not JSON: %v", err)
		}
		io.WriteString(w, testStateJSON)
	})

	bri := uint8(128)
	snap, err := client.Write(context.Background(), StateRequest{Brightness: &bri})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if received["v"] != true {
		t.Error("write request missing verbose flag")
	}
	if received["bri"] != float64(128) {
		t.Errorf("request bri = %v, want 128", received["bri"])
	}
	if snap.Brightness != 128 {
		t.Errorf("result brightness = %d, want 128", snap.Brightness)
	}
}

func TestEffects(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/json/eff" {
			t.Errorf("path = %s, want /json/eff", r.URL.Path)
		}
		io.WriteString(w, `["Solid","Blink","Breathe"]`)
	})

	effects, err := client.Effects(context.Background())
	if err != nil {
		t.Fatalf("Effects: %v", err)
	}
	if len(effects) != 3 || effects[1] != "Blink" {
		t.Errorf("effects = %v", effects)
	}
}

func TestPresets(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/presets.json" {
			t.Errorf("path = %s, want /presets.json", r.URL.Path)
		}
		io.WriteString(w, `{"0":{},"1":{"n":"Sunrise","on":true},"2":{},"5":{"on":true}}`)
	})

	presets, err := client.Presets(context.Background())
	if err != nil {
		t.Fatalf("Presets: %v", err)
	}
	if len(presets) != 2 {
		t.Fatalf("got %d presets, want 2", len(presets))
	}
	if presets[1].Name != "Sunrise" {
		t.Errorf("slot 1 name = %q, want Sunrise", presets[1].Name)
	}
	if presets[5].Name != "Preset 5" {
		t.Errorf("slot 5 name = %q, want placeholder", presets[5].Name)
	}
	if got := PresetSlots(presets); len(got) != 2 || got[0] != 1 || got[1] != 5 {
		t.Errorf("PresetSlots = %v, want [1 5]", got)
	}
}

func TestRestart(t *testing.T) {
	var received map[string]interface{}
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &received)
		io.WriteString(w, `{"success":true}`)
	})

	if err := client.Restart(context.Background()); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if received["rb"] != true {
		t.Error("restart request missing rb flag")
	}
}

func TestErrorClassification(t *testing.T) {
	t.Run("server error is unreachable", func(t *testing.T) {
		_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})
		_, err := client.Read(context.Background())
		if !errors.Is(err, ErrUnreachable) {
			t.Errorf("error %v does not wrap ErrUnreachable", err)
		}
	})

	t.Run("client error is malformed", func(t *testing.T) {
		_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
		_, err := client.Read(context.Background())
		if !errors.Is(err, ErrMalformed) {
			t.Errorf("error %v does not wrap ErrMalformed", err)
		}
	})

	t.Run("undecodable body is malformed", func(t *testing.T) {
		_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `not json at all`)
		})
		_, err := client.Read(context.Background())
		if !errors.Is(err, ErrMalformed) {
			t.Errorf("error %v does not wrap ErrMalformed", err)
		}
	})

	t.Run("connection refused is unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		client := New(url, 500*time.Millisecond)
		_, err := client.Read(context.Background())
		if !errors.Is(err, ErrUnreachable) {
			t.Errorf("error %v does not wrap ErrUnreachable", err)
		}
	})

	t.Run("timeout is unreachable", func(t *testing.T) {
		_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(300 * time.Millisecond)
		})
		client.http.Timeout = 50 * time.Millisecond
		_, err := client.Read(context.Background())
		if !errors.Is(err, ErrUnreachable) {
			t.Errorf("error %v does not wrap ErrUnreachable", err)
		}
	})
}

func TestStampStrictlyIncreases(t *testing.T) {
	client := New("192.168.1.50", time.Second)

	const workers = 8
	const perWorker = 200

	var mu sync.Mutex
	stamps := make([]time.Time, 0, workers*perWorker)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				ts := client.stamp()
				mu.Lock()
				stamps = append(stamps, ts)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	seen := make(map[time.Time]bool, len(stamps))
	for _, ts := range stamps {
		if seen[ts] {
			t.Fatalf("duplicate timestamp issued: %v", ts)
		}
		seen[ts] = true
	}
}
