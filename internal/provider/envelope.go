package provider

import (
	"encoding/json"
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

type Paging struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// Envelope is the provider's response wrapper. Response stays raw so each
// syncer decodes its own item shape.
type Envelope struct {
	Get        string          `json:"get"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
	Errors     json.RawMessage `json:"errors,omitempty"`
	Results    int             `json:"results"`
	Paging     Paging          `json:"paging"`
	Response   json.RawMessage `json:"response"`
}

// EmptyEnvelope is what callers get when no provider is configured.
func EmptyEnvelope(endpoint string) *Envelope {
	return &Envelope{
		Get:      endpoint,
		Errors:   json.RawMessage(`[]`),
		Paging:   Paging{Current: 1, Total: 1},
		Response: json.RawMessage(`[]`),
	}
}

func parseEnvelope(body []byte) (*Envelope, error) {
	var env Envelope
	if err := jsoniter.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if len(env.Response) == 0 || string(env.Response) == "null" {
		env.Response = json.RawMessage(`[]`)
	}
	return &env, nil
}

// Decode unmarshals the response items into dest.
func (e *Envelope) Decode(dest any) error {
	if e == nil || len(e.Response) == 0 {
		return nil
	}
	if err := jsoniter.Unmarshal(e.Response, dest); err != nil {
		return fmt.Errorf("decode %s response: %w", e.Get, err)
	}
	return nil
}
