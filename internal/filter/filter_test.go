package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilter_ORSemantics(t *testing.T) {
	f := New([]string{"^a", "^b"})

	assert.True(t, f.Passes("abc"))
	assert.True(t, f.Passes("bcd"))
	assert.False(t, f.Passes("cde"))

	assert.True(t, Passes("abc", []string{"^a", "^b"}))
	assert.True(t, Passes("bcd", []string{"^a", "^b"}))
	assert.False(t, Passes("cde", []string{"^a", "^b"}))
}

func TestFilter_EmptyAllowsAll(t *testing.T) {
	f := New(nil)
	for _, name := range []string{"", "abc", "img.jpg", ".hidden"} {
		assert.True(t, f.Passes(name), name)
		assert.True(t, Passes(name, []string{}), name)
	}
}

func TestFilter_SearchNotFullMatch(t *testing.T) {
	f := New([]string{`\.jpe?g`})

	assert.True(t, f.Passes("img.jpg"))
	assert.True(t, f.Passes("img.jpeg.bak"), "a match anywhere in the name is enough")
	assert.False(t, f.Passes("img.png"))
}

func TestFilter_MalformedSkipped(t *testing.T) {
	f := New([]string{"([", `\.txt$`})
	assert.Equal(t, 1, f.Len())
	assert.True(t, f.Passes("notes.txt"))
	assert.False(t, f.Passes("(["))

	// all rules malformed: nothing passes, but nothing blows up either
	f = New([]string{"(["})
	assert.Equal(t, 0, f.Len())
	assert.False(t, f.Passes("anything"))
	assert.False(t, Passes("anything", []string{"(["}))
}

func TestFilter_Glob(t *testing.T) {
	f := New([]string{"glob:*.{jpg,png}", "glob:[broken"})

	assert.Equal(t, 1, f.Len())
	assert.True(t, f.Passes("img.jpg"))
	assert.True(t, f.Passes("img.png"))
	assert.False(t, f.Passes("img.gif"))
}
