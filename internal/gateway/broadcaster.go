package gateway

import (
	"strconv"
	"time"
)

// appendEnvelope writes {"channel":...,"data":...,"ts":...,"seq":N} to buf.
// data must already be valid JSON; channel must not need escaping.
func appendEnvelope(buf []byte, channel string, data []byte, ts time.Time, seq int64) []byte {
	buf = append(buf, `{"channel":"`...)
	buf = append(buf, channel...)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = ts.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, '}')
	return buf
}

// broadcast stamps data with the next sequence number, remembers it as the
// latest value and for replay, then fans it out. Slow clients whose send
// queue is full miss the message; they recover via replay on reconnect.
func (h *Hub) broadcast(channel string, data []byte) int64 {
	now := h.now().UTC()

	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq++
	seq := h.seq
	env := appendEnvelope(make([]byte, 0, len(channel)+len(data)+96), channel, data, now, seq)
	h.latest = &latestEntry{Channel: channel, Data: append([]byte(nil), data...), TS: now, Seq: seq}
	h.replay.Push(seq, env)

	for client := range h.clients {
		select {
		case client.send <- env:
		default:
		}
	}
	return seq
}
