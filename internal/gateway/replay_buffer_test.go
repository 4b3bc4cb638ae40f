package gateway

import "testing"

func TestReplayBuffer_Range(t *testing.T) {
	rb := NewReplayBuffer(20)
	for i := int64(1); i <= 10; i++ {
		rb.Push(i, []byte(`{}`))
	}

	got := rb.Range(3, 7)
	if len(got) != 5 {
		t.Fatalf("Range(3,7): expected 5, got %d", len(got))
	}
	for i, e := range got {
		if want := int64(i) + 3; e.Seq != want {
			t.Errorf("entry[%d].Seq = %d, want %d", i, e.Seq, want)
		}
	}
}

func TestReplayBuffer_EvictsOldest(t *testing.T) {
	rb := NewReplayBuffer(4)
	for i := int64(1); i <= 7; i++ {
		rb.Push(i, []byte(`{}`))
	}

	if rb.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", rb.Len())
	}
	if rb.Oldest() != 4 {
		t.Errorf("Oldest() = %d, want 4", rb.Oldest())
	}
	got := rb.Range(1, 100)
	if len(got) != 4 || got[0].Seq != 4 || got[3].Seq != 7 {
		t.Fatalf("Range(1,100) after wrap = %+v", got)
	}
}

func TestReplayBuffer_After(t *testing.T) {
	rb := NewReplayBuffer(3)
	for i := int64(1); i <= 5; i++ {
		rb.Push(i, []byte{byte('0' + i)})
	}

	got := rb.After(3)
	if len(got) != 2 {
		t.Fatalf("After(3): expected 2, got %d", len(got))
	}
	if string(got[0].Data) != "4" || string(got[1].Data) != "5" {
		t.Errorf("After(3) data = %q, %q", got[0].Data, got[1].Data)
	}
	if n := len(rb.After(5)); n != 0 {
		t.Errorf("After(newest) returned %d entries", n)
	}
}

func TestReplayBuffer_PushCopies(t *testing.T) {
	rb := NewReplayBuffer(2)
	data := []byte("abc")
	rb.Push(1, data)
	data[0] = 'x'

	if got := string(rb.Range(1, 1)[0].Data); got != "abc" {
		t.Errorf("buffer aliased caller slice: %q", got)
	}
}

func TestReplayBuffer_Empty(t *testing.T) {
	rb := NewReplayBuffer(10)
	if got := rb.Range(1, 100); len(got) != 0 {
		t.Fatalf("empty buffer Range should return 0, got %d", len(got))
	}
	if rb.Oldest() != 0 {
		t.Errorf("Oldest() on empty = %d", rb.Oldest())
	}
}
