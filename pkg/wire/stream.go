// Binary stream codec shared by every request and response exchanged between nodes.
//
// Integers are written as unsigned LEB128 ("vint"), strings as a vint byte length
// followed by UTF-8 bytes, booleans as a single byte.
// Both ends carry a negotiated Version, so that a type can gate its newer fields.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"
)

var ErrMalformed = errors.New("wire: malformed stream")

// Writeable is something can be serialized into StreamOutput.
type Writeable interface {
	WriteTo(out *StreamOutput) error
}

type StreamOutput struct {
	buf     bytes.Buffer
	version Version
}

func NewStreamOutput() *StreamOutput {
	return &StreamOutput{version: Current}
}

func (o *StreamOutput) SetVersion(v Version) {
	o.version = v
}

func (o *StreamOutput) Version() Version {
	return o.version
}

func (o *StreamOutput) Bytes() []byte {
	return o.buf.Bytes()
}

func (o *StreamOutput) WriteByte(b byte) error {
	return o.buf.WriteByte(b)
}

func (o *StreamOutput) WriteBool(b bool) {
	if b {
		o.buf.WriteByte(1)
	} else {
		o.buf.WriteByte(0)
	}
}

func (o *StreamOutput) WriteVInt(i int32) {
	o.buf.Write(binary.AppendUvarint(nil, uint64(uint32(i))))
}

// WriteVLong writes a non-negative integer.
func (o *StreamOutput) WriteVLong(i int64) {
	o.buf.Write(binary.AppendUvarint(nil, uint64(i)))
}

// WriteZLong writes any integer in zig-zag encoding.
func (o *StreamOutput) WriteZLong(i int64) {
	o.buf.Write(binary.AppendVarint(nil, i))
}

func (o *StreamOutput) WriteLong(i int64) {
	o.buf.Write(binary.BigEndian.AppendUint64(nil, uint64(i)))
}

func (o *StreamOutput) WriteString(s string) {
	o.WriteVInt(int32(len(s)))
	o.buf.WriteString(s)
}

// WriteOptionalString writes presence flag, then the string.
//
// Empty string is treated as absent.
func (o *StreamOutput) WriteOptionalString(s string) {
	if s == "" {
		o.WriteBool(false)
		return
	}
	o.WriteBool(true)
	o.WriteString(s)
}

func (o *StreamOutput) WriteBytes(b []byte) {
	o.WriteVInt(int32(len(b)))
	o.buf.Write(b)
}

func (o *StreamOutput) WriteStringArray(ss []string) {
	o.WriteVInt(int32(len(ss)))
	for _, s := range ss {
		o.WriteString(s)
	}
}

// WriteOptionalStringArray writes presence flag (false for nil), then the array.
func (o *StreamOutput) WriteOptionalStringArray(ss []string) {
	if ss == nil {
		o.WriteBool(false)
		return
	}
	o.WriteBool(true)
	o.WriteStringArray(ss)
}

// WriteStringMap writes entries in key order.
func (o *StreamOutput) WriteStringMap(m map[string]string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	o.WriteVInt(int32(len(keys)))
	for _, k := range keys {
		o.WriteString(k)
		o.WriteString(m[k])
	}
}

// WriteOptionalStringMap writes presence flag (false for nil), then the map.
func (o *StreamOutput) WriteOptionalStringMap(m map[string]string) {
	if m == nil {
		o.WriteBool(false)
		return
	}
	o.WriteBool(true)
	o.WriteStringMap(m)
}

// WriteOptional writes presence flag, then w when present.
func (o *StreamOutput) WriteOptional(present bool, w Writeable) error {
	o.WriteBool(present)
	if !present {
		return nil
	}
	return w.WriteTo(o)
}

// WriteList writes the length of items, then each of them.
func WriteList[T Writeable](o *StreamOutput, items []T) error {
	o.WriteVInt(int32(len(items)))
	for _, item := range items {
		if err := item.WriteTo(o); err != nil {
			return err
		}
	}
	return nil
}

// Marshal serializes w under the version v.
func Marshal(w Writeable, v Version) ([]byte, error) {
	out := NewStreamOutput()
	out.SetVersion(v)
	if err := w.WriteTo(out); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

type StreamInput struct {
	r       *bytes.Reader
	version Version
}

func NewStreamInput(data []byte) *StreamInput {
	return &StreamInput{r: bytes.NewReader(data), version: Current}
}

func (i *StreamInput) SetVersion(v Version) {
	i.version = v
}

func (i *StreamInput) Version() Version {
	return i.version
}

// Remaining returns the count of bytes not read yet.
func (i *StreamInput) Remaining() int {
	return i.r.Len()
}

func (i *StreamInput) ReadByte() (byte, error) {
	b, err := i.r.ReadByte()
	if err != nil {
		return 0, eof(err)
	}
	return b, nil
}

func (i *StreamInput) ReadBool() (bool, error) {
	b, err := i.ReadByte()
	if err != nil {
		return false, err
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("%w: unexpected byte for boolean: %d", ErrMalformed, b)
	}
}

func (i *StreamInput) ReadVInt() (int32, error) {
	v, err := binary.ReadUvarint(i.r)
	if err != nil {
		return 0, eof(err)
	}
	if v > 0xffffffff {
		return 0, fmt.Errorf("%w: vint overflow", ErrMalformed)
	}
	return int32(uint32(v)), nil
}

func (i *StreamInput) ReadVLong() (int64, error) {
	v, err := binary.ReadUvarint(i.r)
	if err != nil {
		return 0, eof(err)
	}
	return int64(v), nil
}

func (i *StreamInput) ReadZLong() (int64, error) {
	v, err := binary.ReadVarint(i.r)
	if err != nil {
		return 0, eof(err)
	}
	return v, nil
}

func (i *StreamInput) ReadLong() (int64, error) {
	b := make([]byte, 8)
	if _, err := io.ReadFull(i.r, b); err != nil {
		return 0, eof(err)
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

func (i *StreamInput) readLength() (int, error) {
	n, err := i.ReadVInt()
	if err != nil {
		return 0, err
	}
	if n < 0 || int(n) > i.r.Len() {
		return 0, fmt.Errorf("%w: length %d exceeds remaining %d bytes", ErrMalformed, n, i.r.Len())
	}
	return int(n), nil
}

func (i *StreamInput) ReadBytes() ([]byte, error) {
	n, err := i.readLength()
	if err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(i.r, b); err != nil {
		return nil, eof(err)
	}
	return b, nil
}

func (i *StreamInput) ReadString() (string, error) {
	b, err := i.ReadBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (i *StreamInput) ReadOptionalString() (string, error) {
	present, err := i.ReadBool()
	if err != nil || !present {
		return "", err
	}
	return i.ReadString()
}

func (i *StreamInput) ReadStringArray() ([]string, error) {
	n, err := i.readLength()
	if err != nil {
		return nil, err
	}
	ss := make([]string, 0, n)
	for range n {
		s, err := i.ReadString()
		if err != nil {
			return nil, err
		}
		ss = append(ss, s)
	}
	return ss, nil
}

func (i *StreamInput) ReadOptionalStringArray() ([]string, error) {
	present, err := i.ReadBool()
	if err != nil || !present {
		return nil, err
	}
	return i.ReadStringArray()
}

func (i *StreamInput) ReadStringMap() (map[string]string, error) {
	n, err := i.readLength()
	if err != nil {
		return nil, err
	}
	m := make(map[string]string, n)
	for range n {
		k, err := i.ReadString()
		if err != nil {
			return nil, err
		}
		v, err := i.ReadString()
		if err != nil {
			return nil, err
		}
		m[k] = v
	}
	return m, nil
}

func (i *StreamInput) ReadOptionalStringMap() (map[string]string, error) {
	present, err := i.ReadBool()
	if err != nil || !present {
		return nil, err
	}
	return i.ReadStringMap()
}

// ReadList reads a list written by WriteList.
func ReadList[T any](i *StreamInput, read func(*StreamInput) (T, error)) ([]T, error) {
	n, err := i.readLength()
	if err != nil {
		return nil, err
	}
	items := make([]T, 0, n)
	for range n {
		item, err := read(i)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// Unmarshal reads data under the version v.
func Unmarshal[T any](data []byte, v Version, read func(*StreamInput) (T, error)) (T, error) {
	in := NewStreamInput(data)
	in.SetVersion(v)
	return read(in)
}

func eof(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %w", ErrMalformed, io.ErrUnexpectedEOF)
	}
	return err
}
