package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseClientFrame_Types(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want any
	}{
		{"register", `{"type":"register","profile":{"id":"abc","name":"Ann","avatarIndex":2}}`,
			&Register{Type: TypeRegister, Profile: &Profile{ID: "abc", Name: "Ann", AvatarIndex: 2}}},
		{"scan", `{"type":"scan"}`, &Scan{Type: TypeScan}},
		{"connect", `{"type":"connect","peerId":"p1"}`, &Connect{Type: TypeConnect, PeerID: "p1"}},
		{"message", `{"type":"message","to":"b","content":"hi","from":{"id":"a","name":"A","avatarIndex":0},"messageId":"m1"}`,
			&OutboundMessage{Type: TypeMessage, To: "b", Content: "hi", From: &Profile{ID: "a", Name: "A"}, MessageID: "m1"}},
		{"messages_read", `{"type":"messages_read","to":"b","messageIds":["x","y"]}`,
			&MarkRead{Type: TypeMessagesRead, To: "b", MessageIDs: []string{"x", "y"}}},
		{"delete_chat", `{"type":"delete_chat","to":"b"}`, &DeleteChat{Type: TypeDeleteChat, To: "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseClientFrame([]byte(tt.raw))
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestParseClientFrame_RejectsHubOnlyTypes(t *testing.T) {
	_, err := ParseClientFrame([]byte(`{"type":"peers","peers":[]}`))
	require.True(t, errors.Is(err, ErrUnknownType))
}

func TestParseClientFrame_Malformed(t *testing.T) {
	_, err := ParseClientFrame([]byte(`{"type":`))
	require.Error(t, err)

	_, err = ParseClientFrame([]byte(`{"type":"connect","peerId":42}`))
	require.Error(t, err)
}

func TestParseHubFrame_ReadReceiptKeepsAutoDelete(t *testing.T) {
	got, err := ParseHubFrame([]byte(`{"type":"messages_read","from":"a","messageIds":["m1"],"autoDeleteAt":1700}`))
	require.NoError(t, err)

	read, ok := got.(*MessagesRead)
	require.True(t, ok)
	require.Equal(t, "a", read.From)
	require.Equal(t, []string{"m1"}, read.MessageIDs)
	require.NotNil(t, read.AutoDeleteAt)
	require.EqualValues(t, 1700, *read.AutoDeleteAt)
}

func TestParseHubFrame_MessageIsRelayedShape(t *testing.T) {
	got, err := ParseHubFrame([]byte(`{"type":"message","from":{"id":"a","name":"A","avatarIndex":1},"content":"hello","timestamp":99}`))
	require.NoError(t, err)
	msg, ok := got.(*RelayedMessage)
	require.True(t, ok)
	require.Equal(t, "a", msg.From.ID)
	require.EqualValues(t, 99, msg.Timestamp)
	require.Empty(t, msg.MessageID)
}

func TestEncode_OmitsOptionalFields(t *testing.T) {
	data, err := Encode(MarkRead{Type: TypeMessagesRead, To: "b", MessageIDs: []string{"m"}})
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	require.NotContains(t, raw, "autoDeleteAt")
	require.Equal(t, "messages_read", raw["type"])
}

func TestDeviceIDAndDefaultName(t *testing.T) {
	require.Equal(t, "ABCDEF123456", DeviceID("abcdef1234567890"))
	require.Equal(t, "AB", DeviceID("ab"))
	require.Equal(t, "User_abcd", DefaultName("abcdef"))
	require.Equal(t, "User_ab", DefaultName("ab"))
}
