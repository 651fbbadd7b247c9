// Package feed adapts the market-data stream into discrete events for the
// ingestion path: it connects, subscribes, and classifies each raw line as a
// live update, an initial snapshot, or neither.
package feed

import (
	"github.com/tidwall/gjson"
)

// Class is the classification of one inbound line.
type Class int

const (
	// ClassNone is any line that is neither a live update nor a snapshot.
	ClassNone Class = iota
	// ClassLive is a real-time book update for one instrument.
	ClassLive
	// ClassSnapshot is the initial state of one instrument, delivered once
	// per subscription.
	ClassSnapshot
)

// String returns a human-readable representation of the class.
func (c Class) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassLive:
		return "live"
	case ClassSnapshot:
		return "snapshot"
	default:
		return "unknown"
	}
}

// Event names on the wire.
const (
	evBook         = "book"
	evLastEvent    = "get_last_event"
	evAvailable    = "available_to_subscribe"
	statusSuccess  = "success"
	fieldEvent     = "ev"
	fieldStatus    = "status"
	fieldSymbol    = "symb"
	fieldMessage   = "message"
	pathInnerEvent = "message.ev"
	pathInnerSymb  = "message.symb"
)

// Event is one classified line. Instrument is empty when the message did
// not carry a symbol.
type Event struct {
	Class      Class
	Instrument string
}

// Classify inspects a raw line.
//
//	{"ev":"book","symb":"X",...}                                      -> live X
//	{"ev":"get_last_event","status":"success","message":{"ev":"book","symb":"X"}} -> snapshot X
//
// Anything else, including malformed JSON, is ClassNone.
func Classify(line string) Event {
	if !gjson.Valid(line) {
		return Event{}
	}

	fields := gjson.GetMany(line, fieldEvent, fieldSymbol, fieldStatus, pathInnerEvent, pathInnerSymb)
	ev, symb, status, innerEv, innerSymb := fields[0], fields[1], fields[2], fields[3], fields[4]

	switch ev.String() {
	case evBook:
		return Event{Class: ClassLive, Instrument: stringOrEmpty(symb)}
	case evLastEvent:
		if status.String() == statusSuccess && innerEv.String() == evBook {
			return Event{Class: ClassSnapshot, Instrument: stringOrEmpty(innerSymb)}
		}
	}
	return Event{}
}

func stringOrEmpty(r gjson.Result) string {
	if r.Type != gjson.String {
		return ""
	}
	return r.Str
}

// Handler receives the events produced for every inbound line.
type Handler interface {
	OnTotalMessage()
	OnLiveMessage(instrument string)
	OnSnapshotMessage(instrument string)
	OnRawLine(line string)
}

// Dispatch classifies line and drives h: the total counter always, then the
// class-specific event, then the raw line.
func Dispatch(line string, h Handler) Event {
	h.OnTotalMessage()

	event := Classify(line)
	switch event.Class {
	case ClassLive:
		h.OnLiveMessage(event.Instrument)
	case ClassSnapshot:
		h.OnSnapshotMessage(event.Instrument)
	}

	h.OnRawLine(line)
	return event
}
