package orchestrator

import (
	"fmt"
	"path/filepath"
	"strings"
)

// nameTable hands out archive entry names that are unique within one
// archive. A repeated name gets " (n)" inserted before its extension, n
// counting prior collisions in first-seen order.
type nameTable map[string]int

func (t nameTable) claim(name string) string {
	if _, used := t[name]; !used {
		t[name] = 0
		return name
	}
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for {
		t[name]++
		candidate := fmt.Sprintf("%s (%d)%s", base, t[name], ext)
		if _, used := t[candidate]; !used {
			t[candidate] = 0
			return candidate
		}
	}
}
