// Package events provides the on/once/off event bus consumed by external
// callers of the download coordinator (spec §4.7, §6 event names).
//
// # Usage
//
//	var e events.Emitter
//	e.On(events.PartDone, func(p any) {
//	    fmt.Println("done:", p.(events.PartPayload).PartNo)
//	})
//	e.Emit(events.PartDone, events.PartPayload{PartNo: 3})
package events
