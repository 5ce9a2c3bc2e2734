// Copyright (c) 2026 Keymaster Team
// Keyguard - EEPROM access key store
// This source code is licensed under the MIT license found in the LICENSE file.

package deploy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/pkg/sftp"
	"github.com/toeirei/keyguard/internal/logging"
	"github.com/toeirei/keyguard/internal/security"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// DefaultTimeout bounds the SSH handshake.
const DefaultTimeout = 10 * time.Second

// RemoteConfig describes where a device image lives and how to log in.
type RemoteConfig struct {
	Host       string // host or host:port; port 22 is assumed
	User       string
	Path       string // image path on the remote host
	PrivateKey security.Secret
	Password   security.Secret
	KnownHosts string // known_hosts file; defaults to ~/.ssh/known_hosts
	Timeout    time.Duration
}

// remoteFS is the subset of SFTP operations the medium needs.
type remoteFS interface {
	Open(name string) (io.ReadCloser, error)
	Create(name string) (io.WriteCloser, error)
	MkdirAll(dir string) error
	Chmod(name string, mode os.FileMode) error
	Rename(oldname, newname string) error
	Remove(name string) error
	Close() error
}

// RemoteMedium implements eeprom.Medium for an image file on a remote host.
// Every Load and Flush opens its own SSH session.
type RemoteMedium struct {
	cfg  RemoteConfig
	dial func(ctx context.Context) (remoteFS, error)
}

// NewRemoteMedium returns a medium for cfg. No connection is made until the
// image is loaded.
func NewRemoteMedium(cfg RemoteConfig) (*RemoteMedium, error) {
	if cfg.Host == "" || cfg.User == "" || cfg.Path == "" {
		return nil, errors.New("deploy: host, user and path are required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	m := &RemoteMedium{cfg: cfg}
	m.dial = m.dialSFTP
	return m, nil
}

// Load implements eeprom.Medium. A missing remote file reads as erased.
func (m *RemoteMedium) Load(ctx context.Context, _ int) ([]byte, error) {
	rfs, err := m.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rfs.Close() }()

	f, err := rfs.Open(m.cfg.Path)
	if errors.Is(err, fs.ErrNotExist) {
		logging.Debugf("deploy: %s:%s does not exist yet", m.cfg.Host, m.cfg.Path)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open remote file %s: %w", m.cfg.Path, err)
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read from remote file %s: %w", m.cfg.Path, err)
	}
	return data, nil
}

// Flush implements eeprom.Medium. The image is uploaded to a temporary file
// next to the target and renamed into place.
func (m *RemoteMedium) Flush(ctx context.Context, image []byte) error {
	rfs, err := m.dial(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = rfs.Close() }()

	if dir := path.Dir(m.cfg.Path); dir != "." && dir != "/" {
		if err := rfs.MkdirAll(dir); err != nil {
			return fmt.Errorf("failed to create remote directory %s: %w", dir, err)
		}
	}

	tmpPath := fmt.Sprintf("%s.keyguard.%d", m.cfg.Path, time.Now().UnixNano())
	f, err := rfs.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary file on remote: %w", err)
	}
	if _, err := f.Write(image); err != nil {
		_ = f.Close()
		_ = rfs.Remove(tmpPath)
		return fmt.Errorf("failed to write to temporary file on remote: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = rfs.Remove(tmpPath)
		return fmt.Errorf("failed to close temporary file on remote: %w", err)
	}
	if err := rfs.Chmod(tmpPath, 0o600); err != nil {
		_ = rfs.Remove(tmpPath)
		return fmt.Errorf("failed to chmod temporary file: %w", err)
	}
	if err := rfs.Rename(tmpPath, m.cfg.Path); err != nil {
		_ = rfs.Remove(tmpPath)
		return fmt.Errorf("failed to atomically rename image file: %w", err)
	}
	return nil
}

// hostAddr appends port 22 when host has no port.
func hostAddr(host string) string {
	if _, _, err := net.SplitHostPort(host); err != nil {
		return net.JoinHostPort(host, "22")
	}
	return host
}

func (m *RemoteMedium) knownHostsPath() (string, error) {
	if m.cfg.KnownHosts != "" {
		return m.cfg.KnownHosts, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not locate known_hosts: %w", err)
	}
	return filepath.Join(home, ".ssh", "known_hosts"), nil
}

// authMethods lists the configured credentials in the order they are tried:
// private key, SSH agent, password.
func (m *RemoteMedium) authMethods() ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod
	if !m.cfg.PrivateKey.IsEmpty() {
		signer, err := ssh.ParsePrivateKey(m.cfg.PrivateKey.Bytes())
		if err != nil {
			return nil, fmt.Errorf("unable to parse private key: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if agentClient := getSSHAgent(); agentClient != nil {
		methods = append(methods, ssh.PublicKeysCallback(agentClient.Signers))
	}
	if !m.cfg.Password.IsEmpty() {
		methods = append(methods, ssh.Password(string(m.cfg.Password.Bytes())))
	}
	if len(methods) == 0 {
		return nil, errors.New("no authentication method available (no private key, ssh agent or password)")
	}
	return methods, nil
}

func (m *RemoteMedium) dialSFTP(ctx context.Context) (remoteFS, error) {
	khPath, err := m.knownHostsPath()
	if err != nil {
		return nil, err
	}
	hostKeyCallback, err := knownhosts.New(khPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load known hosts %s: %w", khPath, err)
	}
	auth, err := m.authMethods()
	if err != nil {
		return nil, err
	}
	config := &ssh.ClientConfig{
		User:            m.cfg.User,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         m.cfg.Timeout,
	}

	addr := hostAddr(m.cfg.Host)
	d := net.Dialer{Timeout: m.cfg.Timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s failed: %w", addr, err)
	}
	client := ssh.NewClient(c, chans, reqs)
	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to create sftp client: %w", err)
	}
	return &sftpFS{ssh: client, sftp: sftpClient}, nil
}

// sftpFS adapts *sftp.Client to remoteFS.
type sftpFS struct {
	ssh  *ssh.Client
	sftp *sftp.Client
}

func (s *sftpFS) Open(name string) (io.ReadCloser, error)    { return s.sftp.Open(name) }
func (s *sftpFS) Create(name string) (io.WriteCloser, error) { return s.sftp.Create(name) }
func (s *sftpFS) MkdirAll(dir string) error                  { return s.sftp.MkdirAll(dir) }
func (s *sftpFS) Chmod(name string, mode os.FileMode) error  { return s.sftp.Chmod(name, mode) }
func (s *sftpFS) Remove(name string) error                   { return s.sftp.Remove(name) }

func (s *sftpFS) Rename(oldname, newname string) error {
	return replaceFile(s.sftp, oldname, newname)
}

// renamer is the part of *sftp.Client used to move an image into place.
type renamer interface {
	PosixRename(oldname, newname string) error
	Rename(oldname, newname string) error
	Remove(name string) error
}

// replaceFile moves oldname over newname. It prefers the posix-rename
// extension, which replaces the target atomically. Servers without it only
// offer a rename that refuses an existing target, so the current image is
// first moved aside to newname+".bak". Between the two renames newname does
// not exist; a reader in that window sees an erased store. If the second
// rename fails the backup is moved back.
func replaceFile(c renamer, oldname, newname string) error {
	perr := c.PosixRename(oldname, newname)
	if perr == nil {
		return nil
	}
	logging.Warnf("sftp: posix-rename of %s failed (%v), replacing via backup", newname, perr)

	backup := newname + ".bak"
	_ = c.Remove(backup)
	moved := c.Rename(newname, backup) == nil
	if err := c.Rename(oldname, newname); err != nil {
		if moved {
			if rerr := c.Rename(backup, newname); rerr != nil {
				return fmt.Errorf("rename failed: %w; previous image left at %s: %v", err, backup, rerr)
			}
		}
		return err
	}
	if moved {
		if err := c.Remove(backup); err != nil {
			logging.Warnf("sftp: could not remove %s: %v", backup, err)
		}
	}
	return nil
}

func (s *sftpFS) Close() error {
	err := s.sftp.Close()
	if cerr := s.ssh.Close(); err == nil {
		err = cerr
	}
	return err
}
