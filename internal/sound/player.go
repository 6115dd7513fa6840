// ABOUTME: Sound players for resolved alert assets
// ABOUTME: Clip runs a local command per playback; Bell writes the terminal bell

package sound

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/harper/offroute/internal/session"
)

// ErrReleased is returned when playing a released resource.
var ErrReleased = errors.New("sound already released")

// Clip plays a file through an external command. Playback runs in the background;
// a Play during playback restarts it.
type Clip struct {
	path string
	argv []string
	log  *log.Logger

	mu       sync.Mutex
	cmd      *exec.Cmd
	released bool
}

// NewClip builds a clip for path from a command template.
func NewClip(path, command string, logger *log.Logger) (*Clip, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, fmt.Errorf("player command is empty")
	}

	argv := make([]string, 0, len(fields)+1)
	substituted := false
	for _, f := range fields {
		if strings.Contains(f, "{}") {
			f = strings.ReplaceAll(f, "{}", path)
			substituted = true
		}
		argv = append(argv, f)
	}
	if !substituted {
		argv = append(argv, path)
	}

	if _, err := exec.LookPath(argv[0]); err != nil {
		return nil, fmt.Errorf("%w: player %q: %v", session.ErrDecode, argv[0], err)
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Clip{path: path, argv: argv, log: logger}, nil
}

// Args returns the command line used for playback.
func (c *Clip) Args() []string {
	return append([]string(nil), c.argv...)
}

func (c *Clip) Play() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.released {
		return ErrReleased
	}
	c.stopLocked()

	cmd := exec.Command(c.argv[0], c.argv[1:]...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start player: %w", err)
	}
	c.cmd = cmd

	go func() {
		err := cmd.Wait()
		c.mu.Lock()
		if c.cmd == cmd {
			c.cmd = nil
		}
		c.mu.Unlock()
		if err != nil {
			c.log.Debug("playback ended", "err", err)
		}
	}()
	return nil
}

// Playing reports whether a playback process is running.
func (c *Clip) Playing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cmd != nil
}

func (c *Clip) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	c.released = true
	return nil
}

func (c *Clip) stopLocked() {
	if c.cmd != nil && c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
	}
	c.cmd = nil
}

// Bell rings the terminal bell.
type Bell struct {
	W io.Writer

	mu       sync.Mutex
	released bool
}

func (b *Bell) Play() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return ErrReleased
	}
	_, err := io.WriteString(b.W, "\a")
	return err
}

func (b *Bell) Release() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.released = true
	return nil
}
