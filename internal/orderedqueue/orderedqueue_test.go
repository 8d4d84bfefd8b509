package orderedqueue

import "testing"

func frames(n int, tag byte) [][]byte {
	out := make([][]byte, n)
	for i := range out {
		out[i] = []byte{tag}
	}
	return out
}

func TestDequeueWaitsForJitterThreshold(t *testing.T) {
	q := New(5)
	// Seq 1 arrives first, so the next-expected seq (0) has no frame yet and
	// only the threshold can open the gate: 2 queued frames < 5.
	q.Enqueue(1, frames(2, 'b'))

	if _, ok := q.Dequeue(); ok {
		t.Fatal("expected dequeue to wait below jitter threshold")
	}

	q.Enqueue(0, frames(3, 'a'))
	if _, ok := q.Dequeue(); !ok {
		t.Fatal("expected dequeue to succeed once jitter threshold is met")
	}
}

func TestDequeueTriggersEarlyWhenNextExpectedSeqReady(t *testing.T) {
	q := New(25)
	q.Enqueue(0, frames(1, 'a'))

	frame, ok := q.Dequeue()
	if !ok {
		t.Fatal("expected dequeue to trigger on seq-0 readiness even below jitter threshold")
	}
	if frame[0] != 'a' {
		t.Errorf("frame = %v, want tag 'a'", frame)
	}
}

func TestJitterGateDisabledAfterFirstDequeue(t *testing.T) {
	q := New(25)
	q.Enqueue(0, frames(1, 'a'))
	if _, ok := q.Dequeue(); !ok {
		t.Fatal("expected first dequeue to succeed")
	}

	if _, ok := q.Dequeue(); ok {
		t.Fatal("expected seq 1 not yet enqueued to hold off dequeue")
	}

	q.Enqueue(1, frames(1, 'b'))
	frame, ok := q.Dequeue()
	if !ok {
		t.Fatal("expected dequeue to succeed immediately once seq 1 arrives, jitter gate disabled")
	}
	if frame[0] != 'b' {
		t.Errorf("frame = %v, want tag 'b'", frame)
	}
}

func TestSkipAdvancesNextExpectedSeq(t *testing.T) {
	q := New(1)
	q.Skip(0)
	q.Enqueue(1, frames(1, 'b'))

	frame, ok := q.Dequeue()
	if !ok {
		t.Fatal("expected dequeue to advance past skipped seq 0 to seq 1")
	}
	if frame[0] != 'b' {
		t.Errorf("frame = %v, want tag 'b'", frame)
	}
}

func TestSkipAdvancesAcrossConsecutiveSkips(t *testing.T) {
	q := New(1)
	q.Skip(1)
	q.Skip(0)
	q.Enqueue(2, frames(1, 'c'))

	frame, ok := q.Dequeue()
	if !ok {
		t.Fatal("expected dequeue to jump past two consecutively skipped seqs")
	}
	if frame[0] != 'c' {
		t.Errorf("frame = %v, want tag 'c'", frame)
	}
}

func TestOutOfOrderEnqueueStillDrainsInOrder(t *testing.T) {
	q := New(1)
	q.Enqueue(2, frames(1, 'c'))
	q.Enqueue(0, frames(1, 'a'))
	q.Enqueue(1, frames(1, 'b'))

	var got []byte
	for i := 0; i < 3; i++ {
		frame, ok := q.Dequeue()
		if !ok {
			t.Fatalf("expected dequeue %d to succeed", i)
		}
		got = append(got, frame[0])
	}

	want := "abc"
	if string(got) != want {
		t.Errorf("drained order = %q, want %q", got, want)
	}
}

func TestResetClearsState(t *testing.T) {
	q := New(1)
	q.Enqueue(0, frames(3, 'a'))
	q.Dequeue()

	q.Reset()

	if !q.Empty() {
		t.Fatal("expected queue to be empty after Reset")
	}
	if _, ok := q.Dequeue(); ok {
		t.Fatal("expected dequeue after reset to wait on the jitter gate again")
	}
}

func TestEmptyReportsQueuedFrameCount(t *testing.T) {
	q := New(1)
	if !q.Empty() {
		t.Fatal("expected a fresh queue to be empty")
	}
	q.Enqueue(0, frames(1, 'a'))
	if q.Empty() {
		t.Fatal("expected queue with a pending frame to be non-empty")
	}
}
