package main

import (
	"fmt"
	"os"
	"os/exec"
)

// textFromEditor opens $EDITOR (falling back to vi) on an empty temp file
// and returns its contents once the editor exits, the way `git commit -e`
// or `crontab -e` gather freeform text from a user.
func textFromEditor() (string, error) {
	f, err := os.CreateTemp("", "distrox-post-*.txt")
	if err != nil {
		return "", fmt.Errorf("creating editor scratch file: %w", err)
	}
	path := f.Name()
	f.Close()
	defer os.Remove(path)

	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = "vi"
	}

	cmd := exec.Command(editor, path)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("running editor %q: %w", editor, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading edited text: %w", err)
	}
	return string(data), nil
}
