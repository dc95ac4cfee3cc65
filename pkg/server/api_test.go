package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/cephview/cephview/pkg/overlay"
	"github.com/cephview/cephview/pkg/protocol"
)

func decodeSnapshot(t *testing.T, body []byte) overlay.Snapshot {
	t.Helper()
	var snap overlay.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		t.Fatalf("decode snapshot %s: %v", body, err)
	}
	return snap
}

func TestCreateAndGetSession(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, body := env.do(t, http.MethodPost, "/api/sessions", "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	var created SessionResponse
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatal(err)
	}
	if created.ID == "" {
		t.Fatal("expected a session id")
	}
	if loc := resp.Header.Get("Location"); loc != "/api/sessions/"+created.ID {
		t.Errorf("Location = %q", loc)
	}
	if len(created.Snapshot.Images) != 0 || created.Snapshot.Mode != overlay.ModeOverlay || created.Snapshot.Active {
		t.Errorf("new session should start empty, got %+v", created.Snapshot)
	}

	resp, body = env.do(t, http.MethodGet, "/api/sessions/"+created.ID, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	var got SessionResponse
	json.Unmarshal(body, &got)
	if got.ID != created.ID {
		t.Errorf("got session %q, want %q", got.ID, created.ID)
	}
}

func TestUnknownSession(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, req := range []struct{ method, path, body string }{
		{http.MethodGet, "/api/sessions/nope", ""},
		{http.MethodDelete, "/api/sessions/nope", ""},
		{http.MethodPost, "/api/sessions/nope/mode/toggle", ""},
		{http.MethodPost, "/api/sessions/nope/images", `{"id":"a"}`},
		{http.MethodGet, "/api/sessions/nope/ws", ""},
	} {
		resp, body := env.do(t, req.method, req.path, req.body)
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("%s %s: status = %d, want 404", req.method, req.path, resp.StatusCode)
			continue
		}
		assertErrorCode(t, body, "E100")
	}
}

func TestUnknownAPIRoute(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, body := env.do(t, http.MethodGet, "/api/nothing", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "No route") {
		t.Errorf("unexpected body %s", body)
	}
}

func TestWrongMethodOnAPIRoute(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, body := env.do(t, http.MethodPut, "/api/sessions", "")
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	assertErrorCode(t, body, "E142")
}

func TestImageOperations(t *testing.T) {
	env := newTestEnv(t, nil)
	sid := env.createSession(t)
	base := "/api/sessions/" + sid

	env.do(t, http.MethodPost, base+"/images", `{"id":"pre","visible":true,"opacity":1}`)
	resp, body := env.do(t, http.MethodPost, base+"/images", `{"id":"post","visible":true,"opacity":1,"source":"/api/uploads/x","label":"Post-op"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("add image status = %d: %s", resp.StatusCode, body)
	}
	if resp.Header.Get(ChangedHeader) != "true" {
		t.Errorf("%s = %q, want true", ChangedHeader, resp.Header.Get(ChangedHeader))
	}

	// Duplicate IDs are ignored.
	resp, _ = env.do(t, http.MethodPost, base+"/images", `{"id":"pre","visible":false,"opacity":0}`)
	if resp.Header.Get(ChangedHeader) != "false" {
		t.Errorf("duplicate add should not change state")
	}

	resp, body = env.do(t, http.MethodPatch, base+"/images/post", `{"visible":false,"opacity":0.4,"colorFilter":"red"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch status = %d: %s", resp.StatusCode, body)
	}

	resp, body = env.do(t, http.MethodPut, base+"/active-image", `{"id":"post"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("active-image status = %d: %s", resp.StatusCode, body)
	}
	env.do(t, http.MethodPost, base+"/mode/toggle", "")
	_, body = env.do(t, http.MethodPost, base+"/active/toggle", "")

	snap := decodeSnapshot(t, body)
	want := []overlay.Image{
		{ID: "pre", Visible: true, Opacity: 1},
		{ID: "post", Visible: false, Opacity: 0.4, ColorFilter: "red", Source: "/api/uploads/x", Label: "Post-op"},
	}
	if diff := cmp.Diff(want, snap.Images); diff != "" {
		t.Errorf("images mismatch (-want +got):\n%s", diff)
	}
	if snap.ActiveImageID != "post" || snap.Mode != overlay.ModeSideBySide || !snap.Active {
		t.Errorf("unexpected state: active=%q mode=%v on=%v", snap.ActiveImageID, snap.Mode, snap.Active)
	}

	// Removing the active image falls back to the first remaining one.
	_, body = env.do(t, http.MethodDelete, base+"/images/post", "")
	snap = decodeSnapshot(t, body)
	if len(snap.Images) != 1 || snap.ActiveImageID != "pre" {
		t.Errorf("after remove: %+v", snap)
	}

	// Unknown image IDs are no-ops, not errors.
	resp, _ = env.do(t, http.MethodDelete, base+"/images/ghost", "")
	if resp.StatusCode != http.StatusOK || resp.Header.Get(ChangedHeader) != "false" {
		t.Errorf("removing unknown image: status=%d changed=%s", resp.StatusCode, resp.Header.Get(ChangedHeader))
	}
	resp, _ = env.do(t, http.MethodPut, base+"/active-image", `{"id":"ghost"}`)
	if resp.Header.Get(ChangedHeader) != "false" {
		t.Error("activating an unknown image should be ignored")
	}
}

func TestEndSession(t *testing.T) {
	env := newTestEnv(t, nil)
	sid := env.createSession(t)

	resp, _ := env.do(t, http.MethodDelete, "/api/sessions/"+sid, "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
	resp, _ = env.do(t, http.MethodGet, "/api/sessions/"+sid, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("ended session still reachable: %d", resp.StatusCode)
	}
}

func TestRequestValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	sid := env.createSession(t)
	base := "/api/sessions/" + sid

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"malformed image", http.MethodPost, "/images", `{"id":`, http.StatusBadRequest, "E110"},
		{"unknown image field", http.MethodPost, "/images", `{"id":"a","zoom":2}`, http.StatusBadRequest, "E110"},
		{"empty image id", http.MethodPost, "/images", `{"visible":true}`, http.StatusBadRequest, "E112"},
		{"empty patch", http.MethodPatch, "/images/a", `{}`, http.StatusBadRequest, "E112"},
		{"active without id", http.MethodPut, "/active-image", `{}`, http.StatusBadRequest, "E112"},
		{"batch unknown op", http.MethodPost, "/commands", `[{"op":"zoom"}]`, http.StatusBadRequest, "E111"},
		{"batch not array", http.MethodPost, "/commands", `{"op":"toggleMode"}`, http.StatusBadRequest, "E110"},
		{"body too large", http.MethodPost, "/commands", "[" + strings.Repeat(" ", protocol.MaxMessageSize) + "]", http.StatusRequestEntityTooLarge, "E113"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := env.do(t, tt.method, base+tt.path, tt.body)
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d: %s", resp.StatusCode, tt.status, body)
			}
			assertErrorCode(t, body, tt.code)
		})
	}
}

func TestCommandBatch(t *testing.T) {
	env := newTestEnv(t, nil)
	sid := env.createSession(t)
	base := "/api/sessions/" + sid

	batch := `[
		{"op":"addImage","image":{"id":"a","visible":true,"opacity":1}},
		{"op":"addImage","image":{"id":"b","visible":true,"opacity":1}},
		{"op":"setImageOpacity","id":"b","opacity":0.25},
		{"op":"setActiveImage","id":"b"},
		{"op":"toggleActive"}
	]`
	resp, body := env.do(t, http.MethodPost, base+"/commands", batch)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	snap := decodeSnapshot(t, body)
	if len(snap.Images) != 2 || snap.Images[1].Opacity != 0.25 || snap.ActiveImageID != "b" || !snap.Active {
		t.Errorf("unexpected snapshot %+v", snap)
	}

	// One bad command rejects the whole batch.
	bad := `[{"op":"toggleMode"},{"op":"setImageOpacity","id":"a"}]`
	resp, body = env.do(t, http.MethodPost, base+"/commands", bad)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	assertErrorCode(t, body, "E112")

	_, body = env.do(t, http.MethodGet, base, "")
	var got SessionResponse
	json.Unmarshal(body, &got)
	if got.Snapshot.Mode != overlay.ModeOverlay {
		t.Error("rejected batch must not apply any command")
	}
}

func TestResponseIsStateProducedByRequest(t *testing.T) {
	env := newTestEnv(t, nil)
	sid := env.createSession(t)
	sess, err := env.sessions.Get(sid)
	if err != nil {
		t.Fatal(err)
	}

	// Another writer changes the registry right after this request's
	// commands are applied.
	wrote := false
	sess.Registry().Subscribe(func(overlay.Snapshot) {
		if !wrote {
			wrote = true
			sess.Registry().ToggleMode()
		}
	})

	resp, body := env.do(t, http.MethodPost, "/api/sessions/"+sid+"/active/toggle", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	if resp.Header.Get(ChangedHeader) != "true" {
		t.Errorf("%s = %q", ChangedHeader, resp.Header.Get(ChangedHeader))
	}
	snap := decodeSnapshot(t, body)
	if !snap.Active || snap.Mode != overlay.ModeOverlay || snap.Version != 1 {
		t.Errorf("response = %+v, want only the request's own toggle", snap)
	}

	if got := sess.Registry().Mode(); got != overlay.ModeSideBySide {
		t.Errorf("concurrent write lost: mode = %v", got)
	}
}

func TestSessionLimitPerIP(t *testing.T) {
	env := newTestEnv(t, nil)

	for i := 0; i < 100; i++ {
		env.createSession(t)
	}
	resp, body := env.do(t, http.MethodPost, "/api/sessions", "")
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", resp.StatusCode)
	}
	assertErrorCode(t, body, "E101")
}
