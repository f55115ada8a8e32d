package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/profitwave/support-chat-api/api"
	"github.com/profitwave/support-chat-api/api/chathub"
	"github.com/profitwave/support-chat-api/models"
)

func chatWebSocketServer(t *testing.T) (*httptest.Server, *api.SocketTokenIssuer) {
	t.Helper()
	issuer := api.NewSocketTokenIssuer("test-secret")
	h := ChatWebSocket{Hub: chathub.New(0, 0, nil), Issuer: issuer}
	srv := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	t.Cleanup(srv.Close)
	return srv, issuer
}

func dialChat(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func writeEnvelope(t *testing.T, conn *websocket.Conn, event string, payload interface{}) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(models.Envelope{Event: event, Data: data}))
}

func readEnvelope(t *testing.T, conn *websocket.Conn) models.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env models.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func TestChatWebSocket_RejectsBadToken(t *testing.T) {
	srv, _ := chatWebSocketServer(t)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "?token=garbage"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)

	require.Error(t, err)
	assert.Nil(t, conn)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestChatWebSocket_UserMessageRoundTrip(t *testing.T) {
	srv, issuer := chatWebSocketServer(t)
	token, err := issuer.Issue("u1", false)
	require.NoError(t, err)

	conn := dialChat(t, srv, token)
	writeEnvelope(t, conn, models.EventJoinUserRoom, models.JoinRoomPayload{UserID: "u1"})
	writeEnvelope(t, conn, models.EventUserMessage, models.UserMessagePayload{UserID: "u1", Message: "hello"})

	env := readEnvelope(t, conn)
	require.Equal(t, models.EventMessageSent, env.Event)
	var ack models.MessageSentPayload
	require.NoError(t, json.Unmarshal(env.Data, &ack))
	assert.True(t, ack.Success)
}

func TestChatWebSocket_MalformedMessagePayloadGetsFailureAck(t *testing.T) {
	srv, issuer := chatWebSocketServer(t)
	token, err := issuer.Issue("u1", false)
	require.NoError(t, err)

	conn := dialChat(t, srv, token)
	require.NoError(t, conn.WriteJSON(models.Envelope{
		Event: models.EventUserMessage,
		Data:  json.RawMessage(`"not an object"`),
	}))

	env := readEnvelope(t, conn)
	require.Equal(t, models.EventMessageSent, env.Event)
	var ack models.MessageSentPayload
	require.NoError(t, json.Unmarshal(env.Data, &ack))
	assert.False(t, ack.Success)
}

func TestChatWebSocket_AdminRelayToUserRoom(t *testing.T) {
	srv, issuer := chatWebSocketServer(t)
	userToken, err := issuer.Issue("u1", false)
	require.NoError(t, err)
	adminToken, err := issuer.Issue("admin1", true)
	require.NoError(t, err)

	userConn := dialChat(t, srv, userToken)
	writeEnvelope(t, userConn, models.EventJoinUserRoom, models.JoinRoomPayload{UserID: "u1"})
	// round-trip a message so the join is known to be processed
	writeEnvelope(t, userConn, models.EventUserMessage, models.UserMessagePayload{UserID: "u1", Message: "anyone there"})
	readEnvelope(t, userConn)

	adminConn := dialChat(t, srv, adminToken)
	writeEnvelope(t, adminConn, models.EventJoinAdminRoom, models.JoinRoomPayload{})
	writeEnvelope(t, adminConn, models.EventAdminMessage, models.AdminMessagePayload{UserID: "u1", Message: "yes, hello"})

	env := readEnvelope(t, userConn)
	require.Equal(t, models.EventNewAdminMessage, env.Event)
	var p models.NewAdminMessagePayload
	require.NoError(t, json.Unmarshal(env.Data, &p))
	assert.Equal(t, "yes, hello", p.Message)
}
