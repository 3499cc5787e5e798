package publish

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/lox/raincouver/internal/models"
)

func TestNewFTPPublisher(t *testing.T) {
	tests := []struct {
		addr, want string
	}{
		{"ftp.example.org", "ftp.example.org:21"},
		{"ftp.example.org:2121", "ftp.example.org:2121"},
	}
	for _, tt := range tests {
		p, err := NewFTPPublisher(tt.addr, "")
		if err != nil {
			t.Fatalf("NewFTPPublisher(%q): %v", tt.addr, err)
		}
		if got := p.Addr(); got != tt.want {
			t.Errorf("Addr() = %q, want %q", got, tt.want)
		}
	}

	if _, err := NewFTPPublisher("  ", ""); !errors.Is(err, models.ErrInvalidArgument) {
		t.Errorf("empty addr: err = %v, want ErrInvalidArgument", err)
	}
}

func TestRemotePath(t *testing.T) {
	p, _ := NewFTPPublisher("localhost", "reports/rain")
	if got := p.RemotePath("/tmp/out/classification_report.png"); got != "reports/rain/classification_report.png" {
		t.Errorf("RemotePath = %q", got)
	}
	p, _ = NewFTPPublisher("localhost", "")
	if got := p.RemotePath("/tmp/out/cross_val_results.csv"); got != "cross_val_results.csv" {
		t.Errorf("RemotePath = %q", got)
	}
}

func TestUpload_NoFiles(t *testing.T) {
	p, _ := NewFTPPublisher("127.0.0.1:1", "")
	if err := p.Upload(context.Background(), nil); err != nil {
		t.Errorf("Upload(nil) = %v, want nil", err)
	}
}

func TestUpload_Unreachable(t *testing.T) {
	// Grab a free port and close it so the dial is refused.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	p, _ := NewFTPPublisher(addr, "")
	p.SetRetries(0)
	p.SetTimeout(time.Second)
	if err := p.Upload(context.Background(), []string{"report.csv"}); err == nil {
		t.Error("expected dial error")
	}
}
