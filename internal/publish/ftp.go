// Package publish uploads report artifacts to an FTP server.
package publish

import (
	"context"
	"fmt"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jlaffaye/ftp"

	"github.com/lox/raincouver/internal/models"
)

const (
	defaultTimeout  = 30 * time.Second
	defaultRetries  = 3
	defaultUser     = "anonymous"
	defaultPassword = "anonymous"
)

// FTPPublisher stores files under a remote directory, one connection per
// Upload call.
type FTPPublisher struct {
	addr      string
	user      string
	password  string
	remoteDir string
	timeout   time.Duration
	retries   uint64
}

// NewFTPPublisher targets addr ("host:port"). Credentials default to
// anonymous login.
func NewFTPPublisher(addr, remoteDir string) (*FTPPublisher, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, fmt.Errorf("%w: ftp address is empty", models.ErrInvalidArgument)
	}
	if !strings.Contains(addr, ":") {
		addr += ":21"
	}
	return &FTPPublisher{
		addr:      addr,
		user:      defaultUser,
		password:  defaultPassword,
		remoteDir: remoteDir,
		timeout:   defaultTimeout,
		retries:   defaultRetries,
	}, nil
}

func (p *FTPPublisher) SetCredentials(user, password string) {
	if user != "" {
		p.user = user
		p.password = password
	}
}

func (p *FTPPublisher) SetTimeout(d time.Duration) { p.timeout = d }

func (p *FTPPublisher) SetRetries(n uint64) { p.retries = n }

func (p *FTPPublisher) Addr() string { return p.addr }

// RemotePath is where a local file lands on the server.
func (p *FTPPublisher) RemotePath(local string) string {
	if p.remoteDir == "" {
		return filepath.Base(local)
	}
	return path.Join(p.remoteDir, filepath.Base(local))
}

func (p *FTPPublisher) connect(ctx context.Context) (*ftp.ServerConn, error) {
	var conn *ftp.ServerConn
	op := func() error {
		c, err := ftp.Dial(p.addr, ftp.DialWithContext(ctx), ftp.DialWithTimeout(p.timeout))
		if err != nil {
			return fmt.Errorf("ftp dial: %w", err)
		}
		if err := c.Login(p.user, p.password); err != nil {
			c.Quit()
			return backoff.Permanent(fmt.Errorf("ftp login: %w", err))
		}
		conn = c
		return nil
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, p.retries), ctx)); err != nil {
		return nil, err
	}
	return conn, nil
}

// Upload stores every file, replacing remote copies. It stops at the first
// failure.
func (p *FTPPublisher) Upload(ctx context.Context, files []string) error {
	if len(files) == 0 {
		return nil
	}
	conn, err := p.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Quit()

	if p.remoteDir != "" {
		// MakeDir fails when the directory exists; ChangeDir is the real check.
		_ = conn.MakeDir(p.remoteDir)
		if err := conn.ChangeDir(p.remoteDir); err != nil {
			return fmt.Errorf("ftp cwd %s: %w", p.remoteDir, err)
		}
	}

	for _, local := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.store(conn, local); err != nil {
			return err
		}
		log.Printf("publish: uploaded %s to %s", filepath.Base(local), p.addr)
	}
	return nil
}

func (p *FTPPublisher) store(conn *ftp.ServerConn, local string) error {
	f, err := os.Open(local)
	if err != nil {
		return fmt.Errorf("open %s: %w", local, err)
	}
	defer f.Close()
	if err := conn.Stor(filepath.Base(local), f); err != nil {
		return fmt.Errorf("ftp stor %s: %w", filepath.Base(local), err)
	}
	return nil
}
