// ABOUTME: Resolves alert sound assets from disk
// ABOUTME: Checks the file exists and sniffs it as audio before building a player

package sound

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gabriel-vasile/mimetype"
	"github.com/harper/offroute/internal/session"
)

// Resolver implements session.SoundResolver for files under Dir.
type Resolver struct {
	// Dir is joined with relative asset names.
	Dir string
	// Command plays a file; "{}" is replaced by the path, otherwise the path is appended.
	// Empty rings the terminal bell instead.
	Command string
	// Bell receives the bell character when Command is empty.
	Bell   io.Writer
	Logger *log.Logger
}

// Path returns the file an asset name refers to.
func (r *Resolver) Path(asset string) string {
	if filepath.IsAbs(asset) || r.Dir == "" {
		return asset
	}
	return filepath.Join(r.Dir, asset)
}

// Resolve validates asset and returns a playable resource.
func (r *Resolver) Resolve(ctx context.Context, asset string) (session.SoundResource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := r.Path(asset)
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", session.ErrAssetNotFound, asset)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", session.ErrDecode, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", session.ErrDecode, asset)
	}

	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", session.ErrDecode, err)
	}
	if !strings.HasPrefix(mtype.String(), "audio/") {
		return nil, fmt.Errorf("%w: %s is %s", session.ErrDecode, asset, mtype.String())
	}

	logger := r.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	logger.Debug("sound resolved", "path", path, "mime", mtype.String())

	if strings.TrimSpace(r.Command) == "" {
		w := r.Bell
		if w == nil {
			w = os.Stderr
		}
		return &Bell{W: w}, nil
	}
	return NewClip(path, r.Command, logger)
}
