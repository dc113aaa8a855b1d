package message

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "sharepairs/pkg/domainerrors"
)

func TestCursorRoundTrip(t *testing.T) {
	c := Cursor{CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), ID: "msg-42"}

	decoded, err := DecodeCursor(c.Encode())
	require.NoError(t, err)
	assert.True(t, decoded.CreatedAt.Equal(c.CreatedAt))
	assert.Equal(t, "msg-42", decoded.ID)
}

func TestDecodeCursor_Empty(t *testing.T) {
	c, err := DecodeCursor("")
	require.NoError(t, err)
	assert.Nil(t, c, "empty token means newest page")
}

func TestDecodeCursor_Malformed(t *testing.T) {
	for _, token := range []string{
		"not base64 !!",
		"bm90IGpzb24",       // valid base64, not JSON
		"e30",               // {} with no fields
		"eyJpZCI6Im0tMSJ9", // id but zero time
	} {
		_, err := DecodeCursor(token)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation), token)
	}
}
