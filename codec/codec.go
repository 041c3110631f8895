// Package codec reads and writes the binary track handle format exchanged
// with audio nodes. Handles are base64 wrappers around a big-endian,
// version-tagged structure whose title and author use Java modified UTF-8.
package codec

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"
)

// trackInfoVersioned is bit 30 of the header word: a version byte follows.
const (
	trackInfoVersioned = 1
	flagShift          = 30
	sizeMask           = 0x3FFFFFFF
)

// DecodeError wraps every failure mode of the codec. Callers never see raw
// binary-layer errors.
type DecodeError struct {
	Msg   string
	Cause error
}

func (e *DecodeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("track decode failed: %s: %v", e.Msg, e.Cause)
	}
	return fmt.Sprintf("track decode failed: %s", e.Msg)
}

func (e *DecodeError) Unwrap() error {
	return e.Cause
}

func decodeErr(msg string, cause error) *DecodeError {
	return &DecodeError{Msg: msg, Cause: cause}
}

// TrackInfo is the structured metadata held inside an encoded handle.
type TrackInfo struct {
	Version    uint8
	Title      string
	Author     string
	Length     int64 // milliseconds
	Identifier string
	IsStream   bool
	URI        *string
	ArtworkURL *string
	ISRC       *string
	SourceName string
	ProbeInfo  *string
}

type reader struct {
	r *bytes.Reader
}

func (d *reader) readByte() (byte, error) {
	return d.r.ReadByte()
}

func (d *reader) readBool() (bool, error) {
	b, err := d.r.ReadByte()
	return b != 0, err
}

func (d *reader) readUint16() (uint16, error) {
	var v uint16
	err := binary.Read(d.r, binary.BigEndian, &v)
	return v, err
}

func (d *reader) readInt32() (int32, error) {
	var v int32
	err := binary.Read(d.r, binary.BigEndian, &v)
	return v, err
}

func (d *reader) readInt64() (int64, error) {
	var v int64
	err := binary.Read(d.r, binary.BigEndian, &v)
	return v, err
}

func (d *reader) readBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// readUTF reads a length-prefixed plain UTF-8 string.
func (d *reader) readUTF() (string, error) {
	n, err := d.readUint16()
	if err != nil {
		return "", err
	}
	buf, err := d.readBytes(int(n))
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

// readMUTF reads a length-prefixed modified-UTF-8 string.
func (d *reader) readMUTF() (string, error) {
	n, err := d.readUint16()
	if err != nil {
		return "", err
	}
	buf, err := d.readBytes(int(n))
	if err != nil {
		return "", err
	}
	return decodeMUTF8(buf)
}

// readNullableUTF reads a presence byte followed by a plain UTF-8 string.
func (d *reader) readNullableUTF() (*string, error) {
	present, err := d.readBool()
	if err != nil {
		return nil, err
	}
	if !present {
		return nil, nil
	}
	s, err := d.readUTF()
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// DecodeTrack decodes a base64 track handle. It never needs node access, so
// it also serves as the offline fallback when no node is reachable.
func DecodeTrack(encoded string) (*TrackInfo, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, decodeErr("invalid base64", err)
	}

	d := &reader{r: bytes.NewReader(data)}

	header, err := d.readInt32()
	if err != nil {
		return nil, decodeErr("missing header", err)
	}
	flags := uint32(header) >> flagShift

	version := uint8(1)
	if flags&trackInfoVersioned != 0 {
		v, err := d.readByte()
		if err != nil {
			return nil, decodeErr("missing version byte", err)
		}
		version = v
	}

	info := &TrackInfo{Version: version}

	if info.Title, err = d.readMUTF(); err != nil {
		return nil, decodeErr("title", err)
	}
	if info.Author, err = d.readMUTF(); err != nil {
		return nil, decodeErr("author", err)
	}
	if info.Length, err = d.readInt64(); err != nil {
		return nil, decodeErr("length", err)
	}
	if info.Identifier, err = d.readUTF(); err != nil {
		return nil, decodeErr("identifier", err)
	}
	if info.IsStream, err = d.readBool(); err != nil {
		return nil, decodeErr("stream flag", err)
	}

	if version >= 2 {
		if info.URI, err = d.readNullableUTF(); err != nil {
			return nil, decodeErr("uri", err)
		}
	}
	if version >= 3 {
		if info.ArtworkURL, err = d.readNullableUTF(); err != nil {
			return nil, decodeErr("artwork url", err)
		}
		if info.ISRC, err = d.readNullableUTF(); err != nil {
			return nil, decodeErr("isrc", err)
		}
	}
	if info.SourceName, err = d.readUTF(); err != nil {
		return nil, decodeErr("source name", err)
	}

	// Anything past the source name depends on source-specific layouts that
	// vary per node build; failures here must still surface as one
	// well-typed error.
	if err := decodeSourceFields(d, info); err != nil {
		return nil, decodeErr(fmt.Sprintf("source fields for %q", info.SourceName), err)
	}

	// Trailing position, read and discarded.
	if _, err := d.readInt64(); err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, decodeErr("trailing position", err)
	}

	return info, nil
}

// decodeSourceFields reads the source-specific trailer.
func decodeSourceFields(d *reader, info *TrackInfo) error {
	switch info.SourceName {
	case "local", "http":
		if info.Version >= 2 {
			probe, err := d.readUTF()
			if err != nil {
				return err
			}
			info.ProbeInfo = &probe
		}
	case "spotify", "applemusic", "deezer":
		// Version 2 handles from these sources carried artwork and ISRC in
		// the trailer before version 3 moved them into the common section.
		if info.Version == 2 {
			isrc, err := d.readNullableUTF()
			if err != nil {
				return err
			}
			art, err := d.readNullableUTF()
			if err != nil {
				return err
			}
			if info.ISRC == nil {
				info.ISRC = isrc
			}
			if info.ArtworkURL == nil {
				info.ArtworkURL = art
			}
		}
	case "yandexmusic":
		if info.Version == 2 {
			art, err := d.readNullableUTF()
			if err != nil {
				return err
			}
			if info.ArtworkURL == nil {
				info.ArtworkURL = art
			}
		}
	}
	return nil
}

type writer struct {
	buf bytes.Buffer
}

func (w *writer) writeByte(b byte) {
	w.buf.WriteByte(b)
}

func (w *writer) writeBool(b bool) {
	if b {
		w.buf.WriteByte(1)
	} else {
		w.buf.WriteByte(0)
	}
}

func (w *writer) writeInt64(v int64) {
	binary.Write(&w.buf, binary.BigEndian, v)
}

func (w *writer) writeUTF(s string) error {
	return w.writeRaw([]byte(s))
}

func (w *writer) writeMUTF(s string) error {
	return w.writeRaw(encodeMUTF8(s))
}

func (w *writer) writeRaw(b []byte) error {
	if len(b) > 0xFFFF {
		return fmt.Errorf("string too long for length prefix: %d bytes", len(b))
	}
	binary.Write(&w.buf, binary.BigEndian, uint16(len(b)))
	w.buf.Write(b)
	return nil
}

func (w *writer) writeNullableUTF(s *string) error {
	w.writeBool(s != nil)
	if s != nil {
		return w.writeUTF(*s)
	}
	return nil
}

// EncodeTrack writes a version 3 handle for the given metadata. Nodes are
// authoritative for handles; this side of the codec exists for tests and for
// synthesizing handles in tooling.
func EncodeTrack(info *TrackInfo) (string, error) {
	w := &writer{}
	w.writeByte(3) // version

	if err := w.writeMUTF(info.Title); err != nil {
		return "", err
	}
	if err := w.writeMUTF(info.Author); err != nil {
		return "", err
	}
	w.writeInt64(info.Length)
	if err := w.writeUTF(info.Identifier); err != nil {
		return "", err
	}
	w.writeBool(info.IsStream)
	if err := w.writeNullableUTF(info.URI); err != nil {
		return "", err
	}
	if err := w.writeNullableUTF(info.ArtworkURL); err != nil {
		return "", err
	}
	if err := w.writeNullableUTF(info.ISRC); err != nil {
		return "", err
	}
	if err := w.writeUTF(info.SourceName); err != nil {
		return "", err
	}
	switch info.SourceName {
	case "local", "http":
		probe := ""
		if info.ProbeInfo != nil {
			probe = *info.ProbeInfo
		}
		if err := w.writeUTF(probe); err != nil {
			return "", err
		}
	}
	w.writeInt64(0) // position

	body := w.buf.Bytes()
	if len(body) > sizeMask {
		return "", fmt.Errorf("track payload too large: %d bytes", len(body))
	}

	var out bytes.Buffer
	header := uint32(len(body)) | uint32(trackInfoVersioned)<<flagShift
	binary.Write(&out, binary.BigEndian, header)
	out.Write(body)

	return base64.StdEncoding.EncodeToString(out.Bytes()), nil
}
