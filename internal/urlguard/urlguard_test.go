package urlguard

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCheck(t *testing.T) {
	tests := []struct {
		url  string
		want error
	}{
		{"https://93.184.216.34/page", nil},
		{"http://8.8.8.8", nil},
		{"file:///etc/passwd", ErrUnsafeScheme},
		{"javascript:alert(1)", ErrUnsafeScheme},
		{"http://127.0.0.1:8080/", ErrPrivateAddress},
		{"http://localhost/", ErrPrivateAddress},
		{"http://10.1.2.3/", ErrPrivateAddress},
		{"http://172.20.0.1/", ErrPrivateAddress},
		{"http://192.168.1.1/", ErrPrivateAddress},
		{"http://169.254.169.254/latest/meta-data", ErrPrivateAddress},
		{"http://[::1]/", ErrPrivateAddress},
		{"http://[fd00::1]/", ErrPrivateAddress},
		{"http://0.0.0.0/", ErrPrivateAddress},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			err := Check(context.Background(), tt.url)
			if tt.want == nil {
				if err != nil {
					t.Errorf("got %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCheck_NoHost(t *testing.T) {
	if err := Check(context.Background(), "http:///path"); err == nil {
		t.Error("expected error for url without host")
	}
}

func TestIsPrivate(t *testing.T) {
	for _, s := range []string{"127.0.0.1", "10.0.0.1", "100.64.0.1", "fe80::1", "::1"} {
		if !IsPrivate(net.ParseIP(s)) {
			t.Errorf("%s: got public, want private", s)
		}
	}
	for _, s := range []string{"1.1.1.1", "2606:4700:4700::1111"} {
		if IsPrivate(net.ParseIP(s)) {
			t.Errorf("%s: got private, want public", s)
		}
	}
}

func TestCheckIdentifier(t *testing.T) {
	for _, ok := range []string{"home", "page-1", "a.b_c", "0193a1b2-7c3d-7e4f-8a9b-0c1d2e3f4a5b"} {
		if err := CheckIdentifier(ok); err != nil {
			t.Errorf("%q: %v", ok, err)
		}
	}
	for _, bad := range []string{"", "a b", "a/b", "<x>", string(make([]byte, 129))} {
		if err := CheckIdentifier(bad); !errors.Is(err, ErrInvalidIdentifier) {
			t.Errorf("%q: got %v, want ErrInvalidIdentifier", bad, err)
		}
	}
}

func TestClient_RefusesLoopback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("secret"))
	}))
	defer srv.Close()

	_, err := Client(5 * time.Second).Get(srv.URL)
	if !errors.Is(err, ErrPrivateAddress) {
		t.Errorf("got %v, want ErrPrivateAddress", err)
	}
}
