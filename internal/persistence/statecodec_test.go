package persistence

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyldlands/wyldlands/internal/ids"
	"github.com/wyldlands/wyldlands/internal/session"
	"github.com/wyldlands/wyldlands/internal/token"
)

func TestEncodeDecodeStateRoundTrip(t *testing.T) {
	tok, err := token.New(ids.NewSessionId(), time.Minute, time.Now())
	require.NoError(t, err)

	cases := []struct {
		name  string
		state session.State
	}{
		{"connecting", session.Connecting{}},
		{"authenticating", session.Authenticating{}},
		{"authenticated playing", session.Authenticated{
			AccountID: "acct-1",
			Mode:      session.Playing{},
		}},
		{"authenticated editing", session.Authenticated{
			AccountID: "acct-2",
			Mode: session.Editing{
				Title:              "describe room",
				Buffer:             "a dusty old library",
				OriginOpaqueHandle: "cmd-42",
			},
		}},
		{"disconnected", session.Disconnected{
			Previous:       session.Authenticated{AccountID: "acct-3", Mode: session.Playing{}},
			Token:          tok,
			DisconnectedAt: time.Now().UTC().Truncate(time.Second),
		}},
		{"closed", session.Closed{}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tag, payload, err := EncodeState(tc.state)
			require.NoError(t, err)
			require.NotEmpty(t, tag)

			got, err := DecodeState(tag, payload)
			require.NoError(t, err)
			assert.Equal(t, tc.state, got)
		})
	}
}

func TestDecodeStateRejectsUnknownTag(t *testing.T) {
	_, err := DecodeState("BOGUS", []byte("{}"))
	assert.Error(t, err)
}

func TestDecodeStateRejectsDisconnectedWithNonAuthenticatedPrevious(t *testing.T) {
	_, payload, err := EncodeState(session.Disconnected{
		Previous:       session.Authenticated{AccountID: "acct-4", Mode: session.Playing{}},
		Token:          token.Token{},
		DisconnectedAt: time.Now(),
	})
	require.NoError(t, err)

	var body disconnectedPayload
	require.NoError(t, json.Unmarshal(payload, &body))
	body.PreviousTag = session.KindAuthenticating.String()
	body.PreviousPayload = []byte("{}")

	reencoded, err := json.Marshal(body)
	require.NoError(t, err)

	_, err = DecodeState(session.KindDisconnected.String(), reencoded)
	assert.Error(t, err)
}
