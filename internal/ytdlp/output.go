package ytdlp

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// The output template is the only contract with the tool's naming:
//
//	<dir>/<token>.%(title)s.%(ext)s
//
// yt-dlp substitutes title and extension, so the produced file is found by
// its token prefix and the title is recovered by stripping token and
// extension. Swapping the tool means changing only this file.
const (
	titlePlaceholder = "%(title)s"
	extPlaceholder   = "%(ext)s"
)

var ErrOutputNotFound = errors.New("downloaded file not found")

// suffixes of intermediate files the tool leaves behind on interruption
var partialSuffixes = []string{".part", ".ytdl", ".temp"}

// Output is a file produced by one invocation.
type Output struct {
	Path     string
	Template string
}

// Title is the title the tool substituted into the file name.
func (o Output) Title() string { return TitleFromSaved(o.Path, o.Template) }

// Ext is the extension chosen by the tool, including the dot.
func (o Output) Ext() string { return filepath.Ext(o.Path) }

func TemplateFor(dir, token string) string {
	return filepath.Join(dir, token+"."+titlePlaceholder+"."+extPlaceholder)
}

// TokenOf extracts the token from a template built by TemplateFor.
func TokenOf(template string) string {
	base := filepath.Base(template)
	token, _, _ := strings.Cut(base, "."+titlePlaceholder)
	return token
}

// FindOutput returns the first finished file in dir carrying the template's
// token.
func FindOutput(dir, template string) (string, error) {
	token := TokenOf(template)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read output dir %s: %w", dir, err)
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, token+".") || isPartial(name) {
			continue
		}
		return filepath.Join(dir, name), nil
	}
	return "", fmt.Errorf("%w (token %s in %s)", ErrOutputNotFound, token, dir)
}

func isPartial(name string) bool {
	for _, s := range partialSuffixes {
		if strings.HasSuffix(name, s) {
			return true
		}
	}
	return false
}

// TitleFromSaved recovers the title the tool substituted into the file name.
func TitleFromSaved(path, template string) string {
	name := filepath.Base(path)
	if token := TokenOf(template); token != "" && strings.HasPrefix(name, token+".") {
		name = strings.TrimPrefix(name, token+".")
	}
	return strings.TrimSuffix(name, filepath.Ext(name))
}
