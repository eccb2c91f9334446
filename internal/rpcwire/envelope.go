package rpcwire

import "encoding/json"

// Envelope carries one RPC call or callback over a single bidirectional
// connection, generalizing the teacher's opcode-prefixed packet
// (gslistener's `data[0]` opcode byte + `data[1:]` body) from a fixed
// binary opcode to a named operation with a JSON payload. Op is matched
// against the dispatch table in gatewayrpc/worldrpc the same way the
// teacher's HandlePacket switches on opcode.
type Envelope struct {
	// CallID correlates a request to its response on the same connection.
	// rpcconn.Conn gives every call, callbacks included, a fresh non-zero
	// id, and the reply carries the same id back.
	CallID uint64 `json:"call_id,omitempty"`

	Op      string          `json:"op"`
	Payload json.RawMessage `json:"payload,omitempty"`

	// Reply marks this Envelope as the answer to a prior call rather
	// than a fresh one. CallID alone can't disambiguate: both directions
	// of the bidirectional channel mint call ids from their own
	// independent counters, so the same id legitimately appears on calls
	// travelling in opposite directions at the same time.
	Reply bool `json:"reply,omitempty"`

	// Err is set on a response envelope when the call failed; Op on an
	// error response still names the operation that failed, for logging.
	Err string `json:"err,omitempty"`
}

// Encode marshals payload into an Envelope's Payload field.
func Encode(op string, callID uint64, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{CallID: callID, Op: op, Payload: raw}, nil
}

// Decode unmarshals an Envelope's Payload into dst.
func (e Envelope) Decode(dst any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(e.Payload, dst)
}
