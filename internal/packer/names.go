package packer

import (
	"path/filepath"
	"strconv"
	"strings"
)

const maxNameRunes = 100

var nameReplacer = strings.NewReplacer(
	"<", "_", ">", "_", ":", "_", `"`, "_", "/", "_",
	`\`, "_", "|", "_", "?", "_", "*", "_",
)

// SanitizeFilename makes a name safe for storage and URLs: reserved
// characters become underscores and names longer than 100 characters are
// shortened, keeping the extension.
func SanitizeFilename(name string) string {
	name = nameReplacer.Replace(name)
	runes := []rune(name)
	if len(runes) <= maxNameRunes {
		return name
	}
	ext := []rune(filepath.Ext(name))
	if len(ext) >= maxNameRunes {
		return string(runes[:maxNameRunes])
	}
	stem := runes[:len(runes)-len(ext)]
	return string(stem[:maxNameRunes-len(ext)]) + string(ext)
}

// entryName is the archive entry name for a source file.
func entryName(src SourceFileEntry) string {
	name := src.Name
	if name == "" {
		name = filepath.Base(src.Path)
	}
	name = SanitizeFilename(filepath.Base(name))
	if name == "" || name == "." {
		name = "file"
	}
	return name
}

// nameSet hands out entry names that are unique within one archive.
type nameSet map[string]struct{}

// claim returns name, or name with a _N suffix before the extension if it is
// already taken, and records it.
func (s nameSet) claim(name string) string {
	candidate := s.peek(name)
	s[candidate] = struct{}{}
	return candidate
}

// peek returns the name claim would return without recording it.
func (s nameSet) peek(name string) string {
	if _, taken := s[name]; !taken {
		return name
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		candidate := stem + "_" + strconv.Itoa(i) + ext
		if _, taken := s[candidate]; !taken {
			return candidate
		}
	}
}
