package testutil

import (
	"net/http"
	"os"
	"strings"
	"testing"
)

func TestDebugRequest(t *testing.T) {
	t.Parallel()

	req := DebugRequest(http.MethodPost, "/debug/x", strings.NewReader("a=b"))
	if req.RemoteAddr != "127.0.0.1:12345" {
		t.Errorf("RemoteAddr = %q", req.RemoteAddr)
	}
	if req.Method != http.MethodPost || req.URL.Path != "/debug/x" {
		t.Errorf("unexpected request %s %s", req.Method, req.URL.Path)
	}
}

func TestServeAndDecode(t *testing.T) {
	t.Parallel()

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	})
	rec := Serve(h, DebugRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got struct{ OK bool }
	DecodeJSON(t, rec, &got)
	if !got.OK {
		t.Error("expected ok")
	}
}

func TestWriteFile(t *testing.T) {
	t.Parallel()

	path := WriteFile(t, "c.json", "{}")
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "{}" {
		t.Errorf("content = %q", b)
	}
}
