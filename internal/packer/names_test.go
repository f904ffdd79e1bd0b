package packer

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"report.pdf", "report.pdf"},
		{`a<b>c:d"e/f\g|h?i*j.txt`, "a_b_c_d_e_f_g_h_i_j.txt"},
		{"spaces are fine.txt", "spaces are fine.txt"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeFilename(tt.in), "input %q", tt.in)
	}
}

func TestSanitizeFilenameTruncatesKeepingExtension(t *testing.T) {
	long := strings.Repeat("é", 150) + ".tar"
	got := SanitizeFilename(long)

	assert.Equal(t, 100, utf8.RuneCountInString(got))
	assert.True(t, strings.HasSuffix(got, ".tar"))
}

func TestEntryName(t *testing.T) {
	assert.Equal(t, "a.txt", entryName(SourceFileEntry{Name: "a.txt", Path: "/x/a.txt"}))
	assert.Equal(t, "b.bin", entryName(SourceFileEntry{Path: "/x/b.bin"}))
	assert.Equal(t, "c.txt", entryName(SourceFileEntry{Name: "../../c.txt"}))
	assert.Equal(t, "file", entryName(SourceFileEntry{Name: ".", Path: "."}))
}

func TestNameSetDeduplicates(t *testing.T) {
	s := nameSet{}

	assert.Equal(t, "a.txt", s.claim("a.txt"))
	assert.Equal(t, "a_1.txt", s.peek("a.txt"))
	assert.Equal(t, "a_1.txt", s.claim("a.txt"))
	assert.Equal(t, "a_2.txt", s.claim("a.txt"))
	assert.Equal(t, "README", s.claim("README"))
	assert.Equal(t, "README_1", s.claim("README"))
}
