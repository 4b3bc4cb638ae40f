package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// envelope is the parsed WS message structure.
type envelope struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
	TS      string          `json:"ts"`
	Seq     int64           `json:"seq"`
	Initial bool            `json:"initial"`
}

func TestAppendEnvelopeFormat(t *testing.T) {
	data := []byte(`{"snapshot_id":"s1","summary":{"total_current_value":15000}}`)
	now := time.Date(2026, 2, 25, 10, 0, 1, 0, time.UTC)

	buf := appendEnvelope(nil, SummaryChannel, data, now, 42)

	var env envelope
	if err := json.Unmarshal(buf, &env); err != nil {
		t.Fatalf("envelope is not valid JSON: %v\nraw: %s", err, buf)
	}
	if env.Channel != SummaryChannel {
		t.Errorf("channel: got %q, want %q", env.Channel, SummaryChannel)
	}
	if env.Seq != 42 {
		t.Errorf("seq: got %d, want 42", env.Seq)
	}
	if !bytes.Equal(env.Data, data) {
		t.Errorf("data: got %s, want %s", env.Data, data)
	}
	parsed, err := time.Parse(time.RFC3339Nano, env.TS)
	if err != nil {
		t.Fatalf("ts is not valid RFC3339Nano: %v", err)
	}
	if !parsed.Equal(now) {
		t.Errorf("ts: got %v, want %v", parsed, now)
	}
}

func TestAppendEnvelopeNestedData(t *testing.T) {
	data := []byte(`{"note":"a \"quoted\" name","nested":{"a":1},"arr":[1,2,3]}`)
	buf := appendEnvelope(nil, SummaryChannel, data, time.Now().UTC(), 999)

	var env envelope
	if err := json.Unmarshal(buf, &env); err != nil {
		t.Fatalf("envelope is not valid JSON: %v\nraw: %s", err, buf)
	}
	var payload struct {
		Note string `json:"note"`
	}
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		t.Fatalf("data is not valid JSON: %v", err)
	}
	if payload.Note != `a "quoted" name` {
		t.Errorf("note: got %q", payload.Note)
	}
}

func TestHubPublish_SeqMonotonic(t *testing.T) {
	h := NewHub(nil)
	for i := 1; i <= 10; i++ {
		if err := h.Publish(context.Background(), []byte(`{"n":`+strconv.Itoa(i)+`}`)); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	if h.Seq() != 10 {
		t.Fatalf("Seq() = %d, want 10", h.Seq())
	}

	missed := h.Missed(4, 6)
	if len(missed) != 3 {
		t.Fatalf("Missed(4,6): got %d envelopes", len(missed))
	}
	for i, raw := range missed {
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("missed[%d]: %v", i, err)
		}
		if env.Seq != int64(i+4) {
			t.Errorf("missed[%d].seq = %d, want %d", i, env.Seq, i+4)
		}
	}
}

func TestHubPublish_RejectsInvalidJSON(t *testing.T) {
	h := NewHub(nil)
	if err := h.Publish(context.Background(), []byte(`{not json`)); err != ErrInvalidPayload {
		t.Fatalf("Publish(invalid) = %v, want ErrInvalidPayload", err)
	}
	if h.Seq() != 0 {
		t.Errorf("invalid payload advanced seq to %d", h.Seq())
	}
}

// wsServer serves hub on /ws and returns a dial URL.
func wsServer(t *testing.T, h *Hub) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		lastSeq, _ := strconv.ParseInt(r.URL.Query().Get("last_seq"), 10, 64)
		h.HandleWSRequest(conn, lastSeq)
	}))
	t.Cleanup(func() {
		h.Close()
		srv.Close()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// readEnvelopes reads frames until n envelopes have arrived. Frames may
// carry several newline-separated envelopes.
func readEnvelopes(t *testing.T, conn *websocket.Conn, n int) []envelope {
	t.Helper()
	var out []envelope
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for len(out) < n {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read after %d envelopes: %v", len(out), err)
		}
		for _, line := range bytes.Split(msg, []byte{'\n'}) {
			var env envelope
			if err := json.Unmarshal(line, &env); err != nil {
				t.Fatalf("bad envelope %s: %v", line, err)
			}
			out = append(out, env)
		}
	}
	return out
}

func waitForClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for h.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("ClientCount() = %d, want %d", h.ClientCount(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_StreamsToClient(t *testing.T) {
	h := NewHub(nil)
	url := wsServer(t, h)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	waitForClients(t, h, 1)

	h.Publish(context.Background(), []byte(`{"n":1}`))
	h.Publish(context.Background(), []byte(`{"n":2}`))

	got := readEnvelopes(t, conn, 2)
	if got[0].Seq != 1 || got[1].Seq != 2 {
		t.Fatalf("seqs = %d, %d, want 1, 2", got[0].Seq, got[1].Seq)
	}
	if got[0].Initial {
		t.Error("live update flagged as initial")
	}
}

func TestHub_InitialStateOnConnect(t *testing.T) {
	h := NewHub(nil)
	h.Publish(context.Background(), []byte(`{"n":1}`))
	h.Publish(context.Background(), []byte(`{"n":2}`))
	url := wsServer(t, h)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	got := readEnvelopes(t, conn, 1)
	if !got[0].Initial || got[0].Seq != 2 || string(got[0].Data) != `{"n":2}` {
		t.Fatalf("initial envelope = %+v", got[0])
	}
}

func TestHub_ResumeAfterLastSeq(t *testing.T) {
	h := NewHub(nil)
	for i := 1; i <= 4; i++ {
		h.Publish(context.Background(), []byte(`{"n":`+strconv.Itoa(i)+`}`))
	}
	url := wsServer(t, h)

	conn, _, err := websocket.DefaultDialer.Dial(url+"?last_seq=2", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	got := readEnvelopes(t, conn, 2)
	if got[0].Seq != 3 || got[1].Seq != 4 {
		t.Fatalf("replayed seqs = %d, %d, want 3, 4", got[0].Seq, got[1].Seq)
	}
	if got[0].Initial || got[1].Initial {
		t.Error("replayed envelopes flagged as initial")
	}
}

func TestHub_StaleLastSeqAfterRestart(t *testing.T) {
	h := NewHub(nil)
	h.Publish(context.Background(), []byte(`{"n":1}`))
	url := wsServer(t, h)

	// The client saw seq 40 from the previous process.
	conn, _, err := websocket.DefaultDialer.Dial(url+"?last_seq=40", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	got := readEnvelopes(t, conn, 1)
	if !got[0].Initial || got[0].Seq != 1 {
		t.Fatalf("envelope = %+v, want initial seq 1", got[0])
	}
}

func TestHub_BacklogUpToDate(t *testing.T) {
	h := NewHub(nil)
	h.Publish(context.Background(), []byte(`{"n":1}`))
	h.mu.Lock()
	defer h.mu.Unlock()
	if got := h.backlog(1); len(got) != 0 {
		t.Fatalf("backlog(current seq) = %d envelopes, want 0", len(got))
	}
}

func TestHub_DisconnectUnregisters(t *testing.T) {
	h := NewHub(nil)
	url := wsServer(t, h)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	waitForClients(t, h, 1)
	conn.Close()
	waitForClients(t, h, 0)

	if err := h.Publish(context.Background(), []byte(`{}`)); err != nil {
		t.Fatalf("Publish after disconnect: %v", err)
	}
}
