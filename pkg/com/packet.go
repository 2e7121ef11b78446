package com

import "github.com/goccy/go-json"

// Each api call (request and response) is a json-encoded packet of the following structure:
//
//	id - (optional) a globally unique packet id;
//	 t - (required) one of the predefined unique packet types;
//	 p - (optional) packet payload with arbitrary data.
//
// Packets differentiate by their predefined types with which it is possible
// to unwrap the payload into distinct request/response data structures,
// and the id field is used for tracking request/response pairs.
type (
	In struct {
		Id      Uid             `json:"id,omitempty"`
		T       uint8           `json:"t"`
		Payload json.RawMessage `json:"p,omitempty"` // should be json.RawMessage for 2-pass unmarshal
	}
	Out struct {
		Id      string `json:"id,omitempty"` // string because omitempty won't work as intended with arrays
		T       uint8  `json:"t"`
		Payload any    `json:"p,omitempty"`
	}
)
