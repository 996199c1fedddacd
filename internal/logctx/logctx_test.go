package logctx

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestHandler_AttachesContextGroups(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(Handler{Handler: slog.NewJSONHandler(&buf, nil)})

	ctx := WithSessionData(context.Background(), &SessionData{
		SessionID:       "sess-1",
		Peer:            "host",
		ProtocolVersion: "2025-03-26",
	})
	ctx = WithRPCMessage(ctx, &RPCMessage{Method: "operations/invoke", ID: "7", Type: "request"})

	log.InfoContext(ctx, "test.event")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode record: %v (%s)", err, buf.String())
	}

	sess, ok := rec["sess"].(map[string]any)
	if !ok {
		t.Fatalf("record %v missing sess group", rec)
	}
	if sess["id"] != "sess-1" || sess["peer"] != "host" {
		t.Fatalf("sess group = %v", sess)
	}

	rpc, ok := rec["rpc"].(map[string]any)
	if !ok {
		t.Fatalf("record %v missing rpc group", rec)
	}
	if rpc["method"] != "operations/invoke" || rpc["id"] != "7" || rpc["type"] != "request" {
		t.Fatalf("rpc group = %v", rpc)
	}
}

func TestHandler_PlainContextAddsNothing(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(Handler{Handler: slog.NewJSONHandler(&buf, nil)})
	log.Info("test.event")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if _, ok := rec["sess"]; ok {
		t.Fatalf("unexpected sess group: %v", rec)
	}
	if _, ok := rec["rpc"]; ok {
		t.Fatalf("unexpected rpc group: %v", rec)
	}
}
