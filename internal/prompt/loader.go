package prompt

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/aalghamdi/voicedesk/internal/config"
)

// ErrNotFound is returned when a prompt reference resolves to no existing file.
var ErrNotFound = errors.New("prompt file not found")

// Loader resolves a prompt-file reference through an ordered fallback search:
// the reference as given, then relative to the working directory, then
// relative to ConfigDir. First existing path wins.
type Loader struct {
	ConfigDir string
	Logger    *slog.Logger
}

// Load reads instruction text for a prompt reference. The file may be a YAML
// document with a "prompt" key or a bare text document.
func (l *Loader) Load(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("%w: empty prompt reference", ErrNotFound)
	}
	configDir := l.ConfigDir
	if configDir == "" {
		configDir = "config"
	}

	attempted := []string{
		ref,
		filepath.Join(".", ref),
		filepath.Join(configDir, ref),
	}
	var path string
	for _, candidate := range attempted {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			path = candidate
			break
		}
	}
	if path == "" {
		return "", fmt.Errorf("%w: %s (tried: %s)", ErrNotFound, ref, strings.Join(attempted, ", "))
	}

	if l.Logger != nil {
		l.Logger.Info("loading prompt", "path", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read prompt %s: %w", path, err)
	}
	return parse(path, data)
}

func parse(path string, data []byte) (string, error) {
	var node any
	if err := yaml.Unmarshal(data, &node); err != nil {
		// Not valid YAML at all: treat the file as a bare text prompt.
		return string(data), nil
	}
	switch v := node.(type) {
	case string:
		return v, nil
	case map[string]any:
		text, ok := v["prompt"].(string)
		if !ok || strings.TrimSpace(text) == "" {
			return "", fmt.Errorf("prompt file %s does not contain a %q key", path, "prompt")
		}
		return text, nil
	case nil:
		return "", fmt.Errorf("prompt file %s is empty", path)
	default:
		return "", fmt.Errorf("invalid prompt file format in %s", path)
	}
}

// Fallback synthesizes minimal instruction text from the use-case profile.
// Used when prompt resolution fails so session startup never aborts on a
// missing prompt file.
func Fallback(uc config.UseCaseConfig) string {
	return fmt.Sprintf("You are a helpful assistant for %s. %s", uc.Name, uc.Greeting)
}
