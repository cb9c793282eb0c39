package stage

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	gssh "github.com/csub-dev/csub/internal/ssh"
)

// Target identifies the cluster head node that receives a run's files.
// TrustKey, when set, is the head node's host public key as an
// authorized_keys line; it is recorded in the known_hosts file before
// dialing so a first connection can pass strict checking.
type Target struct {
	Host       string
	Port       int
	User       string
	KeyPath    string
	KnownHosts string
	TrustKey   string
	RemoteDir  string
}

// Push uploads the run's chunk and job trees (cs_chunks/<name> and
// cs_jobs/<name> under workdir) to the target, preserving the relative
// layout below RemoteDir. It dials once and returns the number of files
// pushed. Chunks are pushed so the job files' chunk references resolve
// on the head node.
func Push(ctx context.Context, t Target, workdir, name string) (int, error) {
	signer, err := gssh.LoadPrivateKeySigner(t.KeyPath)
	if err != nil {
		return 0, err
	}
	port := t.Port
	if port == 0 {
		port = 22
	}
	if t.TrustKey != "" {
		pattern := t.Host
		if port != 22 {
			pattern = fmt.Sprintf("[%s]:%d", t.Host, port)
		}
		if err := gssh.TrustHost(t.KnownHosts, pattern, t.TrustKey); err != nil {
			return 0, err
		}
		log.Info().Str("host", pattern).Str("file", t.KnownHosts).Msg("host key recorded")
	}
	kh, err := gssh.KnownHostsCallback(t.KnownHosts)
	if err != nil {
		return 0, err
	}
	c := &gssh.Client{
		Addr:       fmt.Sprintf("%s:%d", t.Host, port),
		User:       t.User,
		Signer:     signer,
		KnownHosts: kh,
		Timeout:    15 * time.Second,
	}
	cli, err := gssh.Dial(ctx, c)
	if err != nil {
		return 0, fmt.Errorf("dial %s: %w", c.Addr, err)
	}
	defer cli.Close()

	pushed := 0
	for _, tree := range []string{
		filepath.Join("cs_chunks", name),
		filepath.Join("cs_jobs", name),
	} {
		root := filepath.Join(workdir, tree)
		err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(workdir, p)
			if err != nil {
				return err
			}
			remote := path.Join(t.RemoteDir, filepath.ToSlash(rel))
			if err := gssh.PushFile(cli, p, remote); err != nil {
				return fmt.Errorf("push %s: %w", rel, err)
			}
			log.Debug().Str("local", p).Str("remote", remote).Msg("pushed")
			pushed++
			return nil
		})
		if err != nil {
			if os.IsNotExist(err) {
				return pushed, fmt.Errorf("no generated files at %s", root)
			}
			return pushed, err
		}
	}
	return pushed, nil
}
