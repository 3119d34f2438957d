// Package codec implements the substrate's deterministic binary schema:
// encode/decode for plain Go structs driven entirely by struct tags, with
// no code generation step. Adapted from gnunet-go's message package
// (src/gnunet/message/marshal.go), itself derived from the GoSpeL
// data-marshal code referenced there. Every envelope, metadata block and
// operation payload in this module is a "declared binary schema" type in
// the sense of spec.md §9: a plain struct whose fields this package can
// walk with reflection.
//
// Supported field types:
//
//	uint{8,16,32,64}, int{16,32,64}   fixed-width integers
//	string                            NUL-terminated
//	[]byte                            length given by a "size" tag
//	struct{}, *struct{}               nested, recursively encoded
//	[]struct{}, []*struct{}           homogeneous lists
//
// Multi-byte integers default to little-endian; tag `order:"big"` selects
// big-endian (used for the length-prefixes and timestamps that must sort
// and compare byte-for-byte across peers). A "size" tag on a []byte or
// slice field can be "*" (consume the rest of the buffer), a decimal
// literal, or the name of a sibling integer field holding the count.
package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"reflect"
	"strconv"
)

// Marshal serializes a (pointer to a) struct into its deterministic binary
// form.
func Marshal(obj interface{}) ([]byte, error) {
	a := reflect.ValueOf(obj)
	switch a.Kind() {
	case reflect.Ptr:
		e := a.Elem()
		if !e.IsValid() {
			return nil, errors.New("codec: Marshal: nil object")
		}
		return marshalStruct(e)
	case reflect.Struct:
		return marshalStruct(a)
	}
	return nil, fmt.Errorf("codec: Marshal: not a struct: %v", a.Type())
}

func marshalStruct(x reflect.Value) ([]byte, error) {
	data := new(bytes.Buffer)
	for i := 0; i < x.NumField(); i++ {
		f := x.Field(i)
		if !f.CanSet() {
			continue
		}
		ft := x.Type().Field(i)
		switch v := f.Interface().(type) {
		case string:
			data.WriteString(v)
			data.WriteByte(0)

		case uint8, uint16, int16, uint32, int32, uint64, int64:
			order := byteOrder(ft)
			if err := binary.Write(data, order, v); err != nil {
				return nil, err
			}

		case []uint8:
			data.Write(v)

		default:
			switch f.Kind() {
			case reflect.Ptr:
				if e := f.Elem(); e.IsValid() {
					sub, err := marshalStruct(e)
					if err != nil {
						return nil, err
					}
					data.Write(sub)
				}
			case reflect.Struct:
				sub, err := marshalStruct(f)
				if err != nil {
					return nil, err
				}
				data.Write(sub)
			case reflect.Slice:
				for j := 0; j < f.Len(); j++ {
					e := f.Index(j)
					if e.Kind() == reflect.Ptr {
						e = e.Elem()
					}
					if e.Kind() != reflect.Struct {
						return nil, fmt.Errorf("codec: Marshal: unsupported slice element type: %v", e.Type())
					}
					sub, err := marshalStruct(e)
					if err != nil {
						return nil, err
					}
					data.Write(sub)
				}
			default:
				return nil, fmt.Errorf("codec: Marshal: unknown field type: %v", f.Type())
			}
		}
	}
	return data.Bytes(), nil
}

// Unmarshal decodes data into the struct pointed to by obj.
func Unmarshal(obj interface{}, data []byte) error {
	a := reflect.ValueOf(obj)
	if a.Kind() != reflect.Ptr || a.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("codec: Unmarshal: need a pointer to struct, got %v", a.Type())
	}
	buf := bytes.NewBuffer(data)
	return unmarshalStruct(a.Elem(), buf)
}

func unmarshalStruct(x reflect.Value, buf *bytes.Buffer) error {
	for i := 0; i < x.NumField(); i++ {
		f := x.Field(i)
		if !f.CanSet() {
			continue
		}
		ft := x.Type().Field(i)
		switch f.Interface().(type) {
		case string:
			s, err := buf.ReadString(0)
			if err != nil {
				return fmt.Errorf("codec: Unmarshal: string field: %w", err)
			}
			f.SetString(s[:len(s)-1])

		case uint8:
			var v uint8
			if err := binary.Read(buf, byteOrder(ft), &v); err != nil {
				return err
			}
			f.SetUint(uint64(v))
		case uint16:
			var v uint16
			if err := binary.Read(buf, byteOrder(ft), &v); err != nil {
				return err
			}
			f.SetUint(uint64(v))
		case int16:
			var v int16
			if err := binary.Read(buf, byteOrder(ft), &v); err != nil {
				return err
			}
			f.SetInt(int64(v))
		case uint32:
			var v uint32
			if err := binary.Read(buf, byteOrder(ft), &v); err != nil {
				return err
			}
			f.SetUint(uint64(v))
		case int32:
			var v int32
			if err := binary.Read(buf, byteOrder(ft), &v); err != nil {
				return err
			}
			f.SetInt(int64(v))
		case uint64:
			var v uint64
			if err := binary.Read(buf, byteOrder(ft), &v); err != nil {
				return err
			}
			f.SetUint(v)
		case int64:
			var v int64
			if err := binary.Read(buf, byteOrder(ft), &v); err != nil {
				return err
			}
			f.SetInt(v)

		case []uint8:
			size, err := sliceSize(x, f, ft, buf.Len())
			if err != nil {
				return err
			}
			b := make([]byte, size)
			n, _ := buf.Read(b)
			if n != size {
				return fmt.Errorf("codec: Unmarshal: short read on []byte field %q: want %d, got %d", ft.Name, size, n)
			}
			f.SetBytes(b)

		default:
			switch f.Kind() {
			case reflect.Ptr:
				if f.IsNil() {
					f.Set(reflect.New(f.Type().Elem()))
				}
				if err := unmarshalStruct(f.Elem(), buf); err != nil {
					return err
				}
			case reflect.Struct:
				if err := unmarshalStruct(f, buf); err != nil {
					return err
				}
			case reflect.Slice:
				count, err := sliceCount(x, ft)
				if err != nil {
					return err
				}
				et := f.Type().Elem()
				isPtr := et.Kind() == reflect.Ptr
				if isPtr {
					et = et.Elem()
				}
				for n := 0; count < 0 || n < count; n++ {
					if buf.Len() == 0 {
						break
					}
					ep := reflect.New(et)
					if err := unmarshalStruct(ep.Elem(), buf); err != nil {
						return err
					}
					if isPtr {
						f.Set(reflect.Append(f, ep))
					} else {
						f.Set(reflect.Append(f, ep.Elem()))
					}
				}
			default:
				return fmt.Errorf("codec: Unmarshal: unknown field type: %v", f.Kind())
			}
		}
	}
	return nil
}

func byteOrder(ft reflect.StructField) binary.ByteOrder {
	if ft.Tag.Get("order") == "big" {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// sliceSize resolves the byte count for a []byte field: an allocated
// fixed-length slice is honored as-is; otherwise the "size" tag decides:
// "*[+-]offset" greedily consumes the remaining buffer (+/- an offset),
// a decimal literal is a fixed count, and any other value names a sibling
// integer field holding the count.
func sliceSize(parent reflect.Value, f reflect.Value, ft reflect.StructField, remaining int) (int, error) {
	if size := f.Len(); size > 0 {
		return size, nil
	}
	tag := ft.Tag.Get("size")
	if tag == "" {
		return 0, fmt.Errorf("codec: Unmarshal: missing size tag on field %q", ft.Name)
	}
	if tag[0] == '*' {
		size := remaining
		if len(tag) > 1 {
			off, err := strconv.Atoi(tag[1:])
			if err != nil {
				return 0, err
			}
			size += off
		}
		return size, nil
	}
	if n, err := strconv.Atoi(tag); err == nil {
		return n, nil
	}
	sibling := parent.FieldByName(tag)
	if !sibling.IsValid() {
		return 0, fmt.Errorf("codec: Unmarshal: unknown size field %q", tag)
	}
	return int(sibling.Uint()), nil
}

// sliceCount resolves the element count for a []struct{}/[]*struct{} field
// from its "size" tag: "*" or no tag means greedy (read until buffer
// exhaustion), a decimal literal is a fixed count, and any other value
// names a sibling integer field (signed or unsigned) holding the count.
func sliceCount(parent reflect.Value, ft reflect.StructField) (int, error) {
	tag := ft.Tag.Get("size")
	if tag == "*" || tag == "" {
		return -1, nil
	}
	if n, err := strconv.Atoi(tag); err == nil {
		return n, nil
	}
	sibling := parent.FieldByName(tag)
	if !sibling.IsValid() {
		return 0, fmt.Errorf("codec: Unmarshal: unknown size field %q", tag)
	}
	switch sibling.Kind() {
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int(sibling.Uint()), nil
	}
	return int(sibling.Int()), nil
}
