package feed

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// AvailableRequest asks the server for the list of subscribable instruments.
const AvailableRequest = `{"action":"available_to_subscribe"}`

// ParseAvailable extracts the instrument list from an availability reply.
// ok is false when line is not a successful availability reply.
func ParseAvailable(line string) (instruments []string, ok bool) {
	if !gjson.Valid(line) {
		return nil, false
	}

	fields := gjson.GetMany(line, fieldEvent, fieldStatus, fieldMessage)
	if fields[0].String() != evAvailable || fields[1].String() != statusSuccess || !fields[2].IsArray() {
		return nil, false
	}

	list := fields[2].Array()
	instruments = make([]string, 0, len(list))
	for _, item := range list {
		if item.Type == gjson.String {
			instruments = append(instruments, item.Str)
		}
	}
	return instruments, true
}

type subscribeParams struct {
	Tickers         []string `json:"tickers"`
	N               int      `json:"n"`
	InitialSnapshot bool     `json:"initial_snapshot"`
}

type subscribeRequest struct {
	Action string          `json:"action"`
	Params subscribeParams `json:"params"`
}

// SubscribeMessage builds the request subscribing to every ticker with one
// book level and an initial snapshot per instrument.
func SubscribeMessage(tickers []string) ([]byte, error) {
	if tickers == nil {
		tickers = []string{}
	}
	data, err := json.Marshal(subscribeRequest{
		Action: "subscribe",
		Params: subscribeParams{Tickers: tickers, N: 1, InitialSnapshot: true},
	})
	if err != nil {
		return nil, fmt.Errorf("encoding subscribe request: %w", err)
	}
	return data, nil
}
