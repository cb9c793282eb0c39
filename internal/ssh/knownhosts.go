package ssh

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	xssh "golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// TrustHost records a host's public key in the known_hosts file at
// path so later dials pass strict checking. hostPattern follows
// known_hosts syntax ("host" or "[host]:port"); authorizedKey is the
// host key as a single authorized_keys-format line, typically pasted
// from ssh-keyscan output.
func TrustHost(path, hostPattern, authorizedKey string) error {
	key, _, _, _, err := xssh.ParseAuthorizedKey([]byte(strings.TrimSpace(authorizedKey)))
	if err != nil {
		return fmt.Errorf("parse host key: %w", err)
	}
	if err := ensureFile(path); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open known_hosts: %w", err)
	}
	defer f.Close()
	if _, err := fmt.Fprintln(f, knownhosts.Line([]string{hostPattern}, key)); err != nil {
		return fmt.Errorf("append known_hosts: %w", err)
	}
	return nil
}

// KnownHostsCallback builds a strict host key callback from the file
// at path, creating it (and its directory) empty when absent so a
// fresh setup fails with an unknown-key error rather than a missing
// file.
func KnownHostsCallback(path string) (xssh.HostKeyCallback, error) {
	if err := ensureFile(path); err != nil {
		return nil, err
	}
	return knownhosts.New(path)
}

func ensureFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create known_hosts dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("create known_hosts: %w", err)
	}
	return f.Close()
}
