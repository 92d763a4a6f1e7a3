package media

import (
	"context"
	"strings"
	"testing"

	"github.com/kkdai/youtube/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectFormat(t *testing.T) {
	t.Parallel()

	formats := youtube.FormatList{
		{ItagNo: 22, Width: 1280, ContentLength: 900},
		{ItagNo: 18, Width: 640, ContentLength: 300},
	}

	f, err := selectFormat(formats, 1000)
	require.NoError(t, err)
	assert.Equal(t, 22, f.ItagNo)

	f, err = selectFormat(formats, 500)
	require.NoError(t, err)
	assert.Equal(t, 18, f.ItagNo)

	_, err = selectFormat(formats, 100)
	require.ErrorIs(t, err, ErrTooLarge)
	var tooLarge *TooLargeError
	require.ErrorAs(t, err, &tooLarge)
	assert.Equal(t, int64(300), tooLarge.Size)
	assert.Equal(t, int64(100), tooLarge.Limit)

	_, err = selectFormat(nil, 100)
	assert.ErrorIs(t, err, ErrNoFormat)
}

func TestSelectFormatUnknownLength(t *testing.T) {
	t.Parallel()

	f, err := selectFormat(youtube.FormatList{{ItagNo: 140}}, 10)
	require.NoError(t, err)
	assert.Equal(t, 140, f.ItagNo)
}

func TestReadLimited(t *testing.T) {
	t.Parallel()

	data, err := readLimited(strings.NewReader("12345"), 5)
	require.NoError(t, err)
	assert.Equal(t, []byte("12345"), data)

	_, err = readLimited(strings.NewReader("123456"), 5)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestTooLargeSizeMB(t *testing.T) {
	t.Parallel()

	e := &TooLargeError{Size: 75 * 1024 * 1024, Limit: 50 * 1024 * 1024}
	assert.InDelta(t, 75.0, e.SizeMB(), 0.001)
	assert.Contains(t, e.Error(), "limit")
}

func TestInvalidURL(t *testing.T) {
	t.Parallel()

	d := NewDownloader(1024, nil)
	_, err := d.Video(context.Background(), "not a url at all")
	assert.ErrorIs(t, err, ErrInvalidURL)

	_, err = d.Audio(context.Background(), "https://youtu.be/abc")
	assert.ErrorIs(t, err, ErrInvalidURL)
}
