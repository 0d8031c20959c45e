package capture

import (
	"context"
	"testing"
)

func TestNormalizeDefaults(t *testing.T) {
	o := Options{URL: "http://127.0.0.1:8080/board", OutputPath: "board.png"}
	if err := o.normalize(); err != nil {
		t.Fatal(err)
	}
	if o.Width != DefaultWidth || o.Height != DefaultHeight || o.Timeout == 0 {
		t.Errorf("defaults not applied: %+v", o)
	}
}

func TestBoardPNGRequiresURLAndPath(t *testing.T) {
	if err := BoardPNG(context.Background(), Options{OutputPath: "x.png"}); err == nil {
		t.Error("expected error without URL")
	}
	if err := BoardPNG(context.Background(), Options{URL: "http://x"}); err == nil {
		t.Error("expected error without output path")
	}
}

func TestAuthHeader(t *testing.T) {
	o := Options{Username: "admin", Password: "secret"}
	if got := o.authHeader(); got != "Basic YWRtaW46c2VjcmV0" {
		t.Errorf("authHeader = %q", got)
	}
	if got := (&Options{Username: "admin"}).authHeader(); got != "" {
		t.Errorf("partial credentials should disable auth, got %q", got)
	}
}
