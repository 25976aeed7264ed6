package utility

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/labfleet/fleetwatch/internal/drone/calls"
	"go.uber.org/zap"
)

// sendFileTo pushes a path to another host with rsync over ssh. The
// destination's parent directory is created on the peer first.
func (u *Utility) sendFileTo(ctx context.Context, c calls.SendFileTo) ([]string, error) {
	src, dst := rsyncPaths(c.Source, c.Destination)

	args := u.rsyncArgs()
	args = append(args,
		"--rsync-path", fmt.Sprintf("mkdir -p %s && rsync", shellQuote(filepath.Dir(c.Destination))),
		src,
		u.remotePath(c.Hostname, dst),
	)

	out, err := u.run(ctx, u.config.RsyncCommand, args...)
	if err == nil {
		return nil, nil
	}

	err = fmt.Errorf("failed to send %s to %s:%s: %w: %s", c.Source, c.Hostname, c.Destination, err, strings.TrimSpace(string(out)))

	if c.CanFail {
		u.log.Warn("transfer failed", zap.Error(err))
		return []string{err.Error()}, nil
	}

	return nil, err
}

// getFileFrom fetches a path from another host with rsync over ssh.
func (u *Utility) getFileFrom(ctx context.Context, c calls.GetFileFrom) error {
	if err := os.MkdirAll(filepath.Dir(c.Destination), 0o755); err != nil {
		return fmt.Errorf("failed to create parent of %s: %w", c.Destination, err)
	}

	src, dst := c.Source, c.Destination
	if strings.HasSuffix(src, "/") && !strings.HasSuffix(dst, "/") {
		dst += "/"
	}

	args := u.rsyncArgs()
	args = append(args, u.remotePath(c.Hostname, src), dst)

	out, err := u.run(ctx, u.config.RsyncCommand, args...)
	if err != nil {
		return fmt.Errorf("failed to fetch %s:%s: %w: %s", c.Hostname, c.Source, err, strings.TrimSpace(string(out)))
	}

	return nil
}

func (u *Utility) rsyncArgs() []string {
	ssh := []string{"ssh", "-x", "-o", "BatchMode=yes"}
	ssh = append(ssh, u.config.SSHOptions...)

	return []string{
		"--archive",
		"--delete",
		"--rsh", strings.Join(ssh, " "),
	}
}

func (u *Utility) remotePath(hostname, path string) string {
	if u.config.SSHUser != "" {
		return fmt.Sprintf("%s@%s:%s", u.config.SSHUser, hostname, path)
	}
	return fmt.Sprintf("%s:%s", hostname, path)
}

// rsyncPaths adds trailing slashes to directory transfers, so that
// rsync copies the contents of the source into the destination
// instead of nesting the source directory inside it.
func rsyncPaths(src, dst string) (string, string) {
	info, err := os.Stat(src)
	if err == nil && info.IsDir() {
		return strings.TrimSuffix(src, "/") + "/", strings.TrimSuffix(dst, "/") + "/"
	}
	return src, dst
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
