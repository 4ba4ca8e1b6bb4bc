// Package ytdlptest provides a stand-in yt-dlp executable for tests.
package ytdlptest

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// The fake honours the output template and reacts to markers in the source URL:
//
//	...fail...  prints an error on stderr and exits 1
//	...slow...  sleeps until killed
//	...none...  exits 0 without producing a file
//
// Otherwise it writes "<token>.<title>.<ext>" where title is the text after
// the last '=' of the URL and ext is m4a for audio extraction and mp4 for
// video.
const script = `#!/bin/sh
out=""
prev=""
url=""
ext=mp4
for a in "$@"; do
  case "$prev" in -o|--output) out="$a" ;; esac
  case "$a" in
    -x|--extract-audio) ext=m4a ;;
    --output=*) out="${a#--output=}" ;;
  esac
  prev="$a"
  url="$a"
done
case "$url" in
  *fail*) echo "ERROR: unable to download $url" >&2; exit 1 ;;
  *slow*) exec sleep 30 ;;
  *none*) echo "nothing to do"; exit 0 ;;
esac
title="${url##*=}"
file=$(printf '%s' "$out" | sed -e "s/%(title)s/$title/" -e "s/%(ext)s/$ext/")
printf 'payload for %s\n' "$url" > "$file"
echo "[download] Destination: $file"
`

// Binary writes the fake tool into a temp dir and returns its path. Tests
// are skipped on platforms without a POSIX shell.
func Binary(t testing.TB) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake yt-dlp needs /bin/sh")
	}
	path := filepath.Join(t.TempDir(), "yt-dlp")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake yt-dlp: %v", err)
	}
	return path
}

// Payload is the file content the fake writes for sourceURL.
func Payload(sourceURL string) string {
	return "payload for " + sourceURL + "\n"
}
