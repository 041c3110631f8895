package codec

import (
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strptr(s string) *string { return &s }

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := &TrackInfo{
		Title:      "Never Gonna Give You Up",
		Author:     "Rick Astley",
		Length:     212000,
		Identifier: "dQw4w9WgXcQ",
		IsStream:   false,
		URI:        strptr("https://www.youtube.com/watch?v=dQw4w9WgXcQ"),
		ArtworkURL: strptr("https://i.ytimg.com/vi/dQw4w9WgXcQ/default.jpg"),
		ISRC:       strptr("GBARL9300135"),
		SourceName: "youtube",
	}

	encoded, err := EncodeTrack(in)
	require.NoError(t, err)

	out, err := DecodeTrack(encoded)
	require.NoError(t, err)

	assert.Equal(t, uint8(3), out.Version)
	assert.Equal(t, in.Title, out.Title)
	assert.Equal(t, in.Author, out.Author)
	assert.Equal(t, in.Length, out.Length)
	assert.Equal(t, in.Identifier, out.Identifier)
	assert.Equal(t, in.IsStream, out.IsStream)
	require.NotNil(t, out.URI)
	assert.Equal(t, *in.URI, *out.URI)
	require.NotNil(t, out.ArtworkURL)
	assert.Equal(t, *in.ArtworkURL, *out.ArtworkURL)
	require.NotNil(t, out.ISRC)
	assert.Equal(t, *in.ISRC, *out.ISRC)
	assert.Equal(t, in.SourceName, out.SourceName)
}

func TestRoundTripNilOptionals(t *testing.T) {
	in := &TrackInfo{
		Title:      "radio stream",
		Author:     "unknown",
		Length:     0,
		Identifier: "https://stream.example.com/live",
		IsStream:   true,
		SourceName: "http",
		ProbeInfo:  strptr("mp3"),
	}

	encoded, err := EncodeTrack(in)
	require.NoError(t, err)

	out, err := DecodeTrack(encoded)
	require.NoError(t, err)

	assert.Nil(t, out.URI)
	assert.Nil(t, out.ArtworkURL)
	assert.Nil(t, out.ISRC)
	assert.True(t, out.IsStream)
	require.NotNil(t, out.ProbeInfo)
	assert.Equal(t, "mp3", *out.ProbeInfo)
}

func TestRoundTripNonLatinAndSupplementary(t *testing.T) {
	// Mixes CJK (3-byte units), a supplementary-plane emoji (surrogate pair)
	// and an embedded NUL, all of which modified UTF-8 encodes differently
	// from plain UTF-8.
	title := "残酷な天使のテーゼ \U0001F3B5 a\x00b"
	in := &TrackInfo{
		Title:      title,
		Author:     "高橋洋子",
		Length:     245000,
		Identifier: "xyz",
		SourceName: "youtube",
	}

	encoded, err := EncodeTrack(in)
	require.NoError(t, err)

	out, err := DecodeTrack(encoded)
	require.NoError(t, err)
	assert.Equal(t, title, out.Title)
	assert.Equal(t, "高橋洋子", out.Author)
}

func TestMUTF8EmbeddedNulIsTwoBytes(t *testing.T) {
	raw := encodeMUTF8("a\x00b")
	assert.Equal(t, []byte{'a', 0xC0, 0x80, 'b'}, raw)

	back, err := decodeMUTF8(raw)
	require.NoError(t, err)
	assert.Equal(t, "a\x00b", back)
}

func TestDecodeTruncatedBuffer(t *testing.T) {
	in := &TrackInfo{
		Title:      "some title",
		Author:     "someone",
		Length:     1000,
		Identifier: "id",
		SourceName: "youtube",
	}
	encoded, err := EncodeTrack(in)
	require.NoError(t, err)

	data, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)

	// Cut the payload at every possible point; each must fail with a
	// DecodeError, never a raw io or binary error.
	for cut := 0; cut < len(data)-8; cut++ {
		truncated := base64.StdEncoding.EncodeToString(data[:cut])
		_, err := DecodeTrack(truncated)
		if err == nil {
			continue // cuts inside the discarded trailer can still parse
		}
		var de *DecodeError
		assert.True(t, errors.As(err, &de), "cut at %d returned %T", cut, err)
	}
}

func TestDecodeBadBase64(t *testing.T) {
	_, err := DecodeTrack("not!!base64@@")
	var de *DecodeError
	require.True(t, errors.As(err, &de))
}

func TestDecodeBadContinuationByte(t *testing.T) {
	_, err := decodeMUTF8([]byte{0xC3, 0x00})
	assert.Error(t, err)

	_, err = decodeMUTF8([]byte{0xE3, 0x81})
	assert.Error(t, err)

	_, err = decodeMUTF8([]byte{0xF0, 0x9F, 0x8E, 0xB5}) // plain UTF-8 4-byte form is invalid here
	assert.Error(t, err)
}

func TestDecodeUnversionedHeader(t *testing.T) {
	// Build a version 1 payload by hand: flags are zero so no version byte
	// follows and no URI/artwork/ISRC fields exist.
	w := &writer{}
	require.NoError(t, w.writeMUTF("title"))
	require.NoError(t, w.writeMUTF("author"))
	w.writeInt64(1500)
	require.NoError(t, w.writeUTF("ident"))
	w.writeBool(false)
	require.NoError(t, w.writeUTF("youtube"))
	w.writeInt64(0)

	body := w.buf.Bytes()
	raw := make([]byte, 0, len(body)+4)
	raw = append(raw, byte(len(body)>>24), byte(len(body)>>16), byte(len(body)>>8), byte(len(body)))
	raw = append(raw, body...)

	out, err := DecodeTrack(base64.StdEncoding.EncodeToString(raw))
	require.NoError(t, err)
	assert.Equal(t, uint8(1), out.Version)
	assert.Equal(t, "title", out.Title)
	assert.Nil(t, out.URI)
}
