// Package sandbox runs script plugins inside isolated goja runtimes.
// A script has no direct host access; every external effect travels as
// one JSON message {method, params} through the bridge, which answers
// with a success payload or an error object.
package sandbox

import (
	"encoding/json"
	"fmt"
)

// message is the single outbound wire shape of the sandbox.
type message struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// The closed catalog of mediated capabilities. Anything else is
// rejected at the boundary before dispatch.
const (
	methodLog         = "log"
	methodFetch       = "fetch"
	methodGetValue    = "getValue"
	methodSetValue    = "setValue"
	methodRemoveValue = "removeValue"
	methodS2T         = "s2t"
	methodT2S         = "t2s"
)

// From labels identify the originating helper inside the script. They
// are diagnostic only and never checked for authorization.
type logParams struct {
	Message string `json:"message"`
	From    string `json:"from"`
}

type fetchParams struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body"`
}

// fetchResult crosses back to the script with the body base64-encoded;
// the prelude decodes it into text/json/binary views.
type fetchResult struct {
	OK         bool                `json:"ok"`
	Status     int                 `json:"status"`
	StatusText string              `json:"statusText"`
	Headers    map[string][]string `json:"headers"`
	URL        string              `json:"url"`
	Data       string              `json:"data"`
}

type kvParams struct {
	Key   string `json:"key"`
	Value string `json:"value"`
	From  string `json:"from"`
}

type convertParams struct {
	Text string `json:"text"`
}

// request is a validated, typed variant of one inbound message.
type request struct {
	method  string
	log     *logParams
	fetch   *fetchParams
	kv      *kvParams
	convert *convertParams
}

// parseRequest validates raw message JSON against the method catalog.
func parseRequest(raw string) (*request, error) {
	var msg message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return nil, fmt.Errorf("unparsable bridge message: %w", err)
	}

	req := &request{method: msg.Method}
	params := msg.Params
	if params == nil {
		params = json.RawMessage("{}")
	}

	var err error
	switch msg.Method {
	case methodLog:
		req.log = &logParams{}
		err = json.Unmarshal(params, req.log)
	case methodFetch:
		req.fetch = &fetchParams{}
		if err = json.Unmarshal(params, req.fetch); err == nil && req.fetch.URL == "" {
			err = fmt.Errorf("fetch requires a url")
		}
	case methodGetValue, methodSetValue, methodRemoveValue:
		req.kv = &kvParams{}
		if err = json.Unmarshal(params, req.kv); err == nil && req.kv.Key == "" {
			err = fmt.Errorf("%s requires a key", msg.Method)
		}
	case methodS2T, methodT2S:
		req.convert = &convertParams{}
		err = json.Unmarshal(params, req.convert)
	default:
		return nil, fmt.Errorf("unknown bridge method %q", msg.Method)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid params for %q: %w", msg.Method, err)
	}
	return req, nil
}
