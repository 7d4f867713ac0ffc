package ringbuf

import (
	"math/rand"
	"testing"
)

func TestRingPutGetOrder(t *testing.T) {
	r := New[byte](4)
	for _, c := range []byte("abc") {
		if !r.Put(c) {
			t.Fatalf("put %q rejected", c)
		}
	}
	if r.Size() != 3 {
		t.Fatalf("expected size 3, got %d", r.Size())
	}
	for _, want := range []byte("abc") {
		got, ok := r.Get()
		if !ok || got != want {
			t.Fatalf("expected %q, got %q (ok=%v)", want, got, ok)
		}
	}
	if !r.Empty() {
		t.Fatal("expected empty ring")
	}
}

func TestRingGetEmpty(t *testing.T) {
	r := New[int](2)
	v, ok := r.Get()
	if ok || v != 0 {
		t.Fatalf("expected zero/false on empty ring, got %d/%v", v, ok)
	}
	if r.Head() != 0 || r.Tail() != 0 {
		t.Fatalf("cursors moved on empty get: head=%d tail=%d", r.Head(), r.Tail())
	}
}

func TestRingPutOnFullIsRejected(t *testing.T) {
	r := New[byte](3)
	r.Put('a')
	r.Put('b')
	r.Get()
	r.Put('c')
	r.Put('d')
	if !r.Full() {
		t.Fatal("expected full ring")
	}

	head, tail, size := r.Head(), r.Tail(), r.Size()
	if r.Put('x') {
		t.Fatal("put on full ring accepted")
	}
	if r.Head() != head || r.Tail() != tail || r.Size() != size {
		t.Fatalf("state changed: head %d->%d tail %d->%d size %d->%d",
			head, r.Head(), tail, r.Tail(), size, r.Size())
	}
	if head != tail {
		t.Fatalf("full ring should have head == tail, got %d/%d", head, tail)
	}

	var got []byte
	for !r.Empty() {
		c, _ := r.Get()
		got = append(got, c)
	}
	if string(got) != "bcd" {
		t.Fatalf("expected bcd, got %q", got)
	}
}

func TestRingCursorsWrap(t *testing.T) {
	r := New[byte](8)
	for i := 0; i < 8; i++ {
		r.Put(byte(i))
	}
	for i := 0; i < 6; i++ {
		r.Get()
	}
	for i := 0; i < 3; i++ {
		r.Put(byte(10 + i))
	}
	if r.Tail() != 6 || r.Head() != 3 || r.Size() != 5 {
		t.Fatalf("expected tail=6 head=3 size=5, got tail=%d head=%d size=%d", r.Tail(), r.Head(), r.Size())
	}
	if r.Free() != 3 {
		t.Fatalf("expected free 3, got %d", r.Free())
	}
}

func TestRingResetIdempotent(t *testing.T) {
	r := New[byte](4)
	r.Put('a')
	r.Put('b')
	r.Get()

	for i := 0; i < 2; i++ {
		r.Reset()
		if !r.Empty() || r.Size() != 0 || r.Head() != 0 || r.Tail() != 0 {
			t.Fatalf("reset #%d: size=%d head=%d tail=%d", i+1, r.Size(), r.Head(), r.Tail())
		}
	}
	if !r.Put('z') {
		t.Fatal("put after reset rejected")
	}
	if c, _ := r.Get(); c != 'z' {
		t.Fatalf("expected z, got %q", c)
	}
}

func TestRingNewPanicsOnZeroCapacity(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	New[byte](0)
}

// Random put/get sequences against a slice model.
func TestRingMatchesSliceModel(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for _, n := range []int{1, 2, 7, 8, 64} {
		r := New[int](n)
		var model []int
		puts, gets := 0, 0
		for step := 0; step < 2000; step++ {
			if rng.Intn(2) == 0 {
				ok := r.Put(step)
				if ok != (len(model) < n) {
					t.Fatalf("n=%d step=%d: put ok=%v with model len %d", n, step, ok, len(model))
				}
				if ok {
					model = append(model, step)
					puts++
				}
			} else {
				v, ok := r.Get()
				if ok != (len(model) > 0) {
					t.Fatalf("n=%d step=%d: get ok=%v with model len %d", n, step, ok, len(model))
				}
				if ok {
					if v != model[0] {
						t.Fatalf("n=%d step=%d: got %d want %d", n, step, v, model[0])
					}
					model = model[1:]
					gets++
				}
			}
			if r.Size() != puts-gets {
				t.Fatalf("n=%d step=%d: size %d != puts-gets %d", n, step, r.Size(), puts-gets)
			}
			if r.Head() < 0 || r.Head() >= n || r.Tail() < 0 || r.Tail() >= n {
				t.Fatalf("n=%d step=%d: cursor out of range head=%d tail=%d", n, step, r.Head(), r.Tail())
			}
		}
	}
}
