package assets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	getter "github.com/hashicorp/go-getter"
	"go.uber.org/zap"
)

// Fetch downloads src into name under the highest priority directory and
// returns the local path. src is any go-getter address: a local path, an
// http(s) URL, s3::, gcs:: or git:: with a //subpath. Archives are not
// unpacked.
func (m *Manager) Fetch(ctx context.Context, src, name string) (string, error) {
	dst, err := m.WritePath(name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("creating directory for %s: %w", name, err)
	}
	pwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting working directory: %w", err)
	}

	m.log.Info("fetching asset", zap.String("src", src), zap.String("dst", dst))
	// an empty decompressor map keeps archives as they are
	client := &getter.Client{
		Ctx:           ctx,
		Src:           src,
		Dst:           dst,
		Pwd:           pwd,
		Mode:          getter.ClientModeFile,
		Decompressors: map[string]getter.Decompressor{},
	}
	if err := client.Get(); err != nil {
		return "", fmt.Errorf("fetching %s: %w", src, err)
	}
	m.cache.Delete(name)
	return dst, nil
}
