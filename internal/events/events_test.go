package events

import "testing"

func TestOnFiresEveryTime(t *testing.T) {
	var e Emitter
	var calls int
	e.On(PartDone, func(any) { calls++ })

	e.Emit(PartDone, PartPayload{PartNo: 1})
	e.Emit(PartDone, PartPayload{PartNo: 2})

	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestOnceFiresOnlyOnce(t *testing.T) {
	var e Emitter
	var calls int
	e.Once(ObjectDownloading, func(any) { calls++ })

	e.Emit(ObjectDownloading, ObjectPayload{ObjectSize: 10})
	e.Emit(ObjectDownloading, ObjectPayload{ObjectSize: 10})

	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestOffStopsDelivery(t *testing.T) {
	var e Emitter
	var calls int
	fn := func(any) { calls++ }
	e.On(PartDownloading, fn)
	e.Off(PartDownloading, fn)

	e.Emit(PartDownloading, PartPayload{PartNo: 1})

	if calls != 0 {
		t.Fatalf("calls = %d, want 0", calls)
	}
}

func TestEmitPreservesRegistrationOrder(t *testing.T) {
	var e Emitter
	var order []int
	e.On(PartDone, func(any) { order = append(order, 1) })
	e.On(PartDone, func(any) { order = append(order, 2) })
	e.On(PartDone, func(any) { order = append(order, 3) })

	e.Emit(PartDone, PartPayload{PartNo: 1})

	want := []int{1, 2, 3}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestUnsubscribedEventNoPanic(t *testing.T) {
	var e Emitter
	e.Emit(PartDone, PartPayload{PartNo: 1})
}
