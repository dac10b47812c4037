package spec

import (
	"strings"
	"testing"
)

func TestDecodeInitRequest(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr string
	}{
		{name: "valid", raw: `{"run":{"WorkDir":"/work","Cmd":["/work/main"]},"namespaces":true,"rootfs":"/opt/rootfs"}`},
		{name: "missing command", raw: `{"run":{"WorkDir":"/work"}}`, wantErr: "command"},
		{name: "missing workdir", raw: `{"run":{"Cmd":["python3"]}}`, wantErr: "work dir"},
		{name: "rootfs without namespaces", raw: `{"run":{"WorkDir":"/work","Cmd":["a"]},"rootfs":"/r"}`, wantErr: "namespaces"},
		{name: "garbage", raw: `not json`, wantErr: "invalid"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := DecodeInitRequest(strings.NewReader(tt.raw))
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if req.Run.Cmd[0] != "/work/main" || !req.Namespaces {
					t.Fatalf("unexpected request: %+v", req)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
