// Missionboard - Collaborative Mission Tracking and Team Chat
// Copyright 2026 Missionboard Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/missionhq/missionboard

package api

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	gws "github.com/gorilla/websocket"

	"github.com/missionhq/missionboard/internal/models"
	"github.com/missionhq/missionboard/internal/websocket"
)

// dialWS opens an authenticated websocket connection to the test server.
func dialWS(t *testing.T, ts *testServer, token string) *gws.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/api/v1/ws?token=" + token
	conn, _, err := gws.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *gws.Conn) websocket.Message {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg websocket.Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return msg
}

// expectFrame reads until a frame with the wanted event arrives. Broadcasts
// and command replies share the connection, so interleaving is expected.
func expectFrame(t *testing.T, conn *gws.Conn, event string) websocket.Message {
	t.Helper()
	for i := 0; i < 5; i++ {
		msg := readFrame(t, conn)
		if msg.Event == event {
			return msg
		}
	}
	t.Fatalf("no %q frame arrived", event)
	return websocket.Message{}
}

func sendCommand(t *testing.T, conn *gws.Conn, cmd map[string]string) {
	t.Helper()
	_ = conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	if err := conn.WriteJSON(cmd); err != nil {
		t.Fatalf("write command: %v", err)
	}
}

func TestWebSocket_RequiresToken(t *testing.T) {
	ts := newTestServer(t, nil)

	url := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/api/v1/ws"
	_, resp, err := gws.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("dial without token should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("handshake status = %v, want 401", resp)
	}
}

func TestWebSocket_ChatRoundTrip(t *testing.T) {
	ts := newTestServer(t, nil)
	aliceToken, _ := ts.registerUser(t, "alice")
	bobToken, bobID := ts.registerUser(t, "bob")

	status, env := ts.request(t, http.MethodPost, "/api/v1/missions/", aliceToken, map[string]interface{}{
		"title":            "night watch",
		"related_user_ids": []string{bobID},
	})
	if status != http.StatusCreated {
		t.Fatalf("create mission = %d %+v", status, env.Error)
	}
	var mission models.Mission
	if err := json.Unmarshal(env.Data, &mission); err != nil {
		t.Fatalf("decode mission: %v", err)
	}
	missionID := mission.ID.String()

	alice := dialWS(t, ts, aliceToken)
	bob := dialWS(t, ts, bobToken)

	// Both members join the mission's group.
	for _, conn := range []*gws.Conn{alice, bob} {
		sendCommand(t, conn, map[string]string{"action": "join", "mission_id": missionID})
		ack := expectFrame(t, conn, websocket.EventAck)
		data, _ := ack.Data.(map[string]interface{})
		if data["action"] != "join" {
			t.Fatalf("ack = %+v, want join ack", ack)
		}
	}

	// Alice's message reaches both connections.
	sendCommand(t, alice, map[string]string{"action": "send", "mission_id": missionID, "text": "all quiet"})
	var messageID string
	for _, conn := range []*gws.Conn{alice, bob} {
		frame := expectFrame(t, conn, "message.new")
		data, ok := frame.Data.(map[string]interface{})
		if !ok || data["text"] != "all quiet" {
			t.Fatalf("broadcast = %+v, want the chat message", frame)
		}
		messageID, _ = data["id"].(string)
	}
	if messageID == "" {
		t.Fatal("broadcast carried no message id")
	}

	// Bob may not delete Alice's message.
	sendCommand(t, bob, map[string]string{"action": "delete", "mission_id": missionID, "message_id": messageID})
	errFrame := expectFrame(t, bob, websocket.EventError)
	data, _ := errFrame.Data.(map[string]interface{})
	if data["code"] != "forbidden" {
		t.Fatalf("delete by non-author = %+v, want forbidden", errFrame)
	}

	// Alice deletes her own message and both members hear about it.
	sendCommand(t, alice, map[string]string{"action": "delete", "mission_id": missionID, "message_id": messageID})
	for _, conn := range []*gws.Conn{alice, bob} {
		frame := expectFrame(t, conn, "message.deleted")
		data, _ := frame.Data.(map[string]interface{})
		if data["message_id"] != messageID {
			t.Fatalf("deletion notice = %+v, want the message id", frame)
		}
	}
}

func TestWebSocket_OutsiderCannotJoin(t *testing.T) {
	ts := newTestServer(t, nil)
	aliceToken, _ := ts.registerUser(t, "alice")
	eveToken, _ := ts.registerUser(t, "eve")

	status, env := ts.request(t, http.MethodPost, "/api/v1/missions/", aliceToken, map[string]interface{}{
		"title": "private op",
	})
	if status != http.StatusCreated {
		t.Fatalf("create mission = %d %+v", status, env.Error)
	}
	var mission models.Mission
	if err := json.Unmarshal(env.Data, &mission); err != nil {
		t.Fatalf("decode mission: %v", err)
	}

	eve := dialWS(t, ts, eveToken)
	sendCommand(t, eve, map[string]string{"action": "join", "mission_id": mission.ID.String()})
	frame := expectFrame(t, eve, websocket.EventError)
	data, _ := frame.Data.(map[string]interface{})
	if data["code"] != "forbidden" {
		t.Errorf("outsider join = %+v, want forbidden", frame)
	}
}

func TestWebSocket_PingAndUnknownAction(t *testing.T) {
	ts := newTestServer(t, nil)
	token, _ := ts.registerUser(t, "alice")

	conn := dialWS(t, ts, token)
	sendCommand(t, conn, map[string]string{"action": "ping"})
	expectFrame(t, conn, websocket.EventPong)

	sendCommand(t, conn, map[string]string{"action": "somersault"})
	frame := expectFrame(t, conn, websocket.EventError)
	data, _ := frame.Data.(map[string]interface{})
	if data["code"] != "validation_error" {
		t.Errorf("unknown action = %+v, want validation_error", frame)
	}
}
