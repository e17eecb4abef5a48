package origin

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/charlievieth/fastwalk"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
)

const sessionFileExt = ".json"

// FileBackend stores one JSON document per origin. Origins contain
// characters that are not safe in file names, so each file is named by the
// blake2b-256 digest of its origin.
type FileBackend struct {
	dir    string
	logger *zap.Logger
}

// NewFileBackend creates dir if needed.
func NewFileBackend(dir string, logger *zap.Logger) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create session dir: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileBackend{dir: dir, logger: logger.Named("file_backend")}, nil
}

func (b *FileBackend) path(origin string) string {
	sum := blake2b.Sum256([]byte(origin))
	return filepath.Join(b.dir, hex.EncodeToString(sum[:])+sessionFileExt)
}

// Load reads every session file under the directory. Unreadable or corrupt
// files are logged and skipped so one bad file does not lose the rest.
func (b *FileBackend) Load(ctx context.Context) ([]*Session, error) {
	var (
		mu  sync.Mutex
		out []*Session
	)

	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, b.dir, func(p string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil || d.IsDir() || !strings.HasSuffix(p, sessionFileExt) {
			return nil
		}

		data, err := os.ReadFile(p)
		if err != nil {
			b.logger.Warn("skipping unreadable session file", zap.String("path", p), zap.Error(err))
			return nil
		}
		var s Session
		if err := sonic.Unmarshal(data, &s); err != nil {
			b.logger.Warn("skipping corrupt session file", zap.String("path", p), zap.Error(err))
			return nil
		}
		if filepath.Base(b.path(s.Origin)) != filepath.Base(p) {
			b.logger.Warn("session file name does not match origin", zap.String("path", p))
			return nil
		}

		mu.Lock()
		out = append(out, &s)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan session dir: %w", err)
	}
	return out, nil
}

// Save writes atomically via a temp file and rename.
func (b *FileBackend) Save(ctx context.Context, s *Session) error {
	data, err := sonic.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	tmp, err := os.CreateTemp(b.dir, ".session-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write session: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write session: %w", err)
	}
	if err := os.Rename(tmpName, b.path(s.Origin)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write session: %w", err)
	}
	return nil
}

func (b *FileBackend) Delete(ctx context.Context, origin string) error {
	err := os.Remove(b.path(origin))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}

func (b *FileBackend) Close() error { return nil }
