package persistence

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/wyldlands/wyldlands/internal/session"
	"github.com/wyldlands/wyldlands/internal/token"
)

// EncodeState renders a session.State into the (state_variant_tag,
// state_payload_blob) pair spec.md §6's persisted layout names. The tag
// is Kind.String(); the payload is a small JSON object carrying exactly
// the branch's own fields, keeping the sealed-interface discipline
// (internal/session/state.go) intact across the persistence boundary
// instead of flattening every variant's fields into one row shape.
func EncodeState(state session.State) (tag string, payload []byte, err error) {
	switch st := state.(type) {
	case session.Connecting:
		return session.KindConnecting.String(), []byte("{}"), nil

	case session.Authenticating:
		return session.KindAuthenticating.String(), []byte("{}"), nil

	case session.Authenticated:
		body := authenticatedPayload{AccountID: st.AccountID, Mode: "PLAYING"}
		if editing, ok := st.Mode.(session.Editing); ok {
			body.Mode = "EDITING"
			body.EditingTitle = editing.Title
			body.EditingBuffer = editing.Buffer
			body.EditingOriginHandle = editing.OriginOpaqueHandle
		}
		payload, err = json.Marshal(body)
		return session.KindAuthenticated.String(), payload, err

	case session.Disconnected:
		prevTag, prevPayload, err := EncodeState(st.Previous)
		if err != nil {
			return "", nil, fmt.Errorf("encoding disconnected session's previous state: %w", err)
		}
		body := disconnectedPayload{
			PreviousTag:     prevTag,
			PreviousPayload: prevPayload,
			Token:           token.Encode(st.Token),
			DisconnectedAt:  st.DisconnectedAt,
		}
		payload, err = json.Marshal(body)
		return session.KindDisconnected.String(), payload, err

	case session.Closed:
		return session.KindClosed.String(), []byte("{}"), nil

	default:
		return "", nil, fmt.Errorf("encoding session state: unknown variant %T", state)
	}
}

// DecodeState is EncodeState's inverse.
func DecodeState(tag string, payload []byte) (session.State, error) {
	switch tag {
	case "CONNECTING":
		return session.Connecting{}, nil

	case "AUTHENTICATING":
		return session.Authenticating{}, nil

	case "AUTHENTICATED":
		var body authenticatedPayload
		if err := json.Unmarshal(payload, &body); err != nil {
			return nil, fmt.Errorf("decoding authenticated session payload: %w", err)
		}
		var mode session.InputMode = session.Playing{}
		if body.Mode == "EDITING" {
			mode = session.Editing{
				Title:              body.EditingTitle,
				Buffer:             body.EditingBuffer,
				OriginOpaqueHandle: body.EditingOriginHandle,
			}
		}
		return session.Authenticated{AccountID: body.AccountID, Mode: mode}, nil

	case "DISCONNECTED":
		var body disconnectedPayload
		if err := json.Unmarshal(payload, &body); err != nil {
			return nil, fmt.Errorf("decoding disconnected session payload: %w", err)
		}
		prev, err := DecodeState(body.PreviousTag, body.PreviousPayload)
		if err != nil {
			return nil, fmt.Errorf("decoding disconnected session's previous state: %w", err)
		}
		tok, err := token.Decode(body.Token)
		if err != nil {
			return nil, fmt.Errorf("decoding disconnected session's token: %w", err)
		}
		prevAuth, ok := prev.(session.Authenticated)
		if !ok {
			return nil, fmt.Errorf("disconnected session's previous state was %T, want session.Authenticated", prev)
		}
		return session.Disconnected{Previous: prevAuth, Token: tok, DisconnectedAt: body.DisconnectedAt}, nil

	case "CLOSED":
		return session.Closed{}, nil

	default:
		return nil, fmt.Errorf("decoding session state: unknown tag %q", tag)
	}
}

type authenticatedPayload struct {
	AccountID           string `json:"account_id"`
	Mode                string `json:"mode"`
	EditingTitle        string `json:"editing_title,omitempty"`
	EditingBuffer       string `json:"editing_buffer,omitempty"`
	EditingOriginHandle string `json:"editing_origin_handle,omitempty"`
}

type disconnectedPayload struct {
	PreviousTag     string          `json:"previous_tag"`
	PreviousPayload json.RawMessage `json:"previous_payload"`
	Token           string          `json:"token"`
	DisconnectedAt  time.Time       `json:"disconnected_at"`
}
