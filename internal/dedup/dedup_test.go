package dedup

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeaderSeparator_IgnoresHeaderDifferences(t *testing.T) {
	stored := "\n     From: Bob\n     To: Jim\n     ________________________________\n     Already sent this one"
	candidate := "     From: Jim\n     To: Bob\n     ________________________________\n     Already sent this one"

	assert.True(t, Same(NewHeaderSeparator(), stored, candidate))
	assert.False(t, Same(Raw{}, stored, candidate))
}

func TestHeaderSeparator_Normalize(t *testing.T) {
	testCases := []struct {
		name     string
		text     string
		expected string
	}{
		{
			name:     "keeps text after first separator",
			text:     "To: a\n" + DefaultSeparator + "\nbody\n" + DefaultSeparator + "\nfooter",
			expected: "\nbody\n" + DefaultSeparator + "\nfooter",
		},
		{
			name:     "keeps whole text when separator is missing",
			text:     "New email data",
			expected: "New email data",
		},
		{
			name:     "empty text",
			text:     "",
			expected: "",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, NewHeaderSeparator().Normalize(tc.text))
		})
	}
}

func TestHeaderSeparator_DifferentBodiesDiffer(t *testing.T) {
	a := "To: x\n" + DefaultSeparator + "\nJune issue"
	b := "To: x\n" + DefaultSeparator + "\nJuly issue"

	assert.False(t, Same(NewHeaderSeparator(), a, b))
}

func TestWithoutMessageID(t *testing.T) {
	a := "From: club@example.com\r\nMessage-Id: <1@example.com>\r\nSubject: Hi\r\n\r\nBody\r\n"
	b := "From: club@example.com\r\nMessage-ID:\r\n <2@example.com>\r\nSubject: Hi\r\n\r\nBody\r\n"

	assert.Equal(t, "From: club@example.com\r\nSubject: Hi\r\n\r\nBody\r\n", WithoutMessageID{}.Normalize(a))
	assert.True(t, Same(WithoutMessageID{}, a, b))
}

func TestWithoutMessageID_LeavesBodyAlone(t *testing.T) {
	text := "Subject: Hi\n\nMessage-ID: quoted in the body\n"

	assert.Equal(t, text, WithoutMessageID{}.Normalize(text))
}

func TestByName(t *testing.T) {
	n, ok := ByName("raw")
	assert.True(t, ok)
	assert.Equal(t, Raw{}, n)

	n, ok = ByName("")
	assert.True(t, ok)
	assert.Equal(t, NewHeaderSeparator(), n)

	_, ok = ByName("fuzzy")
	assert.False(t, ok)
}
