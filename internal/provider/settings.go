// ABOUTME: Settings opener for desktop hosts
// ABOUTME: Opens the offroute config file in the user's editor

package provider

import (
	"fmt"
	"os"
	"os/exec"
)

// EditorSettings opens Path with $VISUAL, $EDITOR, or Fallback.
type EditorSettings struct {
	Path     string
	Fallback string
}

func (e EditorSettings) OpenSettings() error {
	editor := os.Getenv("VISUAL")
	if editor == "" {
		editor = os.Getenv("EDITOR")
	}
	if editor == "" {
		editor = e.Fallback
	}
	if editor == "" {
		return fmt.Errorf("no editor configured: set $EDITOR")
	}

	cmd := exec.Command(editor, e.Path)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("open settings: %w", err)
	}
	return nil
}
