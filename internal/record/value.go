package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"unicode/utf16"
)

// Value is a sealed interface over the argument value types that may appear
// in a step record. A value is either plain data (String, Int, Bool, List,
// Object) or a FileRef describing input/output files. The variant is decided
// when the argument is defined, not sniffed at serialization time.
//
// Floats are forbidden: they break the deterministic serialization used for
// record checksums.
type Value interface {
	recordValue() // sealed
}

// String is a plain string argument value.
type String string

func (String) recordValue() {}

// Int is a plain integer argument value. Always int64, never float64.
type Int int64

func (Int) recordValue() {}

// Bool is a plain boolean argument value.
type Bool bool

func (Bool) recordValue() {}

// List is an ordered sequence of values. A list may contain FileRefs, e.g.
// for repeated file-valued arguments.
type List []Value

func (List) recordValue() {}

// Object is a string-keyed map of values. Use SortedKeys for deterministic
// iteration.
type Object map[string]Value

func (Object) recordValue() {}

// Mode distinguishes file arguments that are read from those that are written.
type Mode string

const (
	// Read marks an input file argument.
	Read Mode = "r"
	// Write marks an output file argument.
	Write Mode = "w"
)

// FileRef is the file-valued argument variant. Val is the raw command-line
// value (a filename, or e.g. a common prefix of several files); Files holds
// per-file metadata gathered at recording time.
type FileRef struct {
	Val   string
	Mode  Mode
	Files []FileInfo

	// Expand computes the concrete paths denoted by Val. Nil means Val is
	// itself the single path. Supplied by the argument-definition layer;
	// never serialized.
	Expand func(string) []string
}

func (FileRef) recordValue() {}

// fileRefMarker tags serialized FileRefs so the loader can tell them apart
// from ordinary objects.
const fileRefMarker = "__file_arg__"

// FileInfo is the captured metadata for one concrete file denoted by a
// FileRef. Hash and the stat fields are best-effort: HasHash and HasStat
// report whether capture was attempted/succeeded, so that an empty hash from
// a failed hashing attempt is distinguishable from "never captured" (the
// output files of a failed step).
type FileInfo struct {
	Fname    string
	AbsPath  string
	RealPath string

	Hash    string
	HasHash bool

	Size    int64
	Mtime   int64 // unix seconds
	Ctime   int64 // unix seconds
	Owner   string
	Inode   uint64
	Device  uint64
	HasStat bool
}

// SortedKeys returns the object's keys in canonical (UTF-16 code unit) order.
// Go's sort.Strings orders by UTF-8 bytes, which differs for characters
// outside the BMP; record checksums depend on the UTF-16 order.
func (o Object) SortedKeys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysUTF16)
	return keys
}

// compareKeysUTF16 compares strings by UTF-16 code units per RFC 8785.
func compareKeysUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}

// toObject converts a FileRef to its serialized object form.
func (f FileRef) toObject() Object {
	files := make(List, len(f.Files))
	for i, fi := range f.Files {
		files[i] = fi.toObject()
	}
	return Object{
		fileRefMarker: Bool(true),
		"val":         String(f.Val),
		"mode":        String(f.Mode),
		"files":       files,
	}
}

func (fi FileInfo) toObject() Object {
	obj := Object{
		"fname":    String(fi.Fname),
		"abspath":  String(fi.AbsPath),
		"realpath": String(fi.RealPath),
	}
	if fi.HasHash {
		obj["hash"] = String(fi.Hash)
	}
	if fi.HasStat {
		obj["size"] = Int(fi.Size)
		obj["mtime"] = Int(fi.Mtime)
		obj["ctime"] = Int(fi.Ctime)
		obj["owner"] = String(fi.Owner)
		obj["inode"] = Int(int64(fi.Inode))
		obj["device"] = Int(int64(fi.Device))
	}
	return obj
}

// IsFileRefObject reports whether a decoded object is the serialized form of
// a FileRef.
func IsFileRefObject(o Object) bool {
	if _, ok := o[fileRefMarker]; !ok {
		return false
	}
	_, ok := o["files"].(List)
	return ok
}

// AsFileRef reconstructs a FileRef from its serialized object form. The
// second return value is false if the object is not a FileRef.
func AsFileRef(v Value) (FileRef, bool) {
	obj, ok := v.(Object)
	if !ok || !IsFileRefObject(obj) {
		return FileRef{}, false
	}
	ref := FileRef{}
	if s, ok := obj["val"].(String); ok {
		ref.Val = string(s)
	}
	if s, ok := obj["mode"].(String); ok {
		ref.Mode = Mode(s)
	}
	files, _ := obj["files"].(List)
	for _, fv := range files {
		fo, ok := fv.(Object)
		if !ok {
			continue
		}
		ref.Files = append(ref.Files, fileInfoFromObject(fo))
	}
	return ref, true
}

func fileInfoFromObject(o Object) FileInfo {
	fi := FileInfo{}
	if s, ok := o["fname"].(String); ok {
		fi.Fname = string(s)
	}
	if s, ok := o["abspath"].(String); ok {
		fi.AbsPath = string(s)
	}
	if s, ok := o["realpath"].(String); ok {
		fi.RealPath = string(s)
	}
	if h, ok := o["hash"].(String); ok {
		fi.Hash = string(h)
		fi.HasHash = true
	}
	if n, ok := o["size"].(Int); ok {
		fi.Size = int64(n)
		fi.HasStat = true
	}
	if n, ok := o["mtime"].(Int); ok {
		fi.Mtime = int64(n)
	}
	if n, ok := o["ctime"].(Int); ok {
		fi.Ctime = int64(n)
	}
	if s, ok := o["owner"].(String); ok {
		fi.Owner = string(s)
	}
	if n, ok := o["inode"].(Int); ok {
		fi.Inode = uint64(n)
	}
	if n, ok := o["device"].(Int); ok {
		fi.Device = uint64(n)
	}
	return fi
}

// GatherFileRefs returns the FileRefs denoted by an argument value, in
// order. Lists are flattened; plain values yield nothing.
func GatherFileRefs(v Value) []FileRef {
	switch val := v.(type) {
	case FileRef:
		return []FileRef{val}
	case List:
		var refs []FileRef
		for _, elem := range val {
			refs = append(refs, GatherFileRefs(elem)...)
		}
		return refs
	case Object:
		if ref, ok := AsFileRef(val); ok {
			return []FileRef{ref}
		}
		return nil
	default:
		return nil
	}
}

// Plain returns the plain representation of a value with FileRefs collapsed
// to their raw command-line value. This is what the wrapped command sees.
func Plain(v Value) Value {
	switch val := v.(type) {
	case FileRef:
		return String(val.Val)
	case List:
		out := make(List, len(val))
		for i, elem := range val {
			out[i] = Plain(elem)
		}
		return out
	default:
		return v
	}
}

// Stringify renders a value the way comp attribute flattening and reuse
// diffs expect: plain scalars as their literal text, composites as compact
// JSON.
func Stringify(v Value) string {
	switch val := v.(type) {
	case String:
		return string(val)
	case Int:
		return fmt.Sprintf("%d", int64(val))
	case Bool:
		if val {
			return "true"
		}
		return "false"
	case FileRef:
		return val.Val
	default:
		b, err := MarshalCanonical(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

// UnmarshalValue decodes JSON into a Value. Objects carrying the FileRef
// marker stay as Objects; use AsFileRef to view them. Floats and nulls are
// rejected, matching the canonical serialization profile.
func UnmarshalValue(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return convertValue(raw)
}

func convertValue(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("null is forbidden in step records")
	case bool:
		return Bool(val), nil
	case string:
		return String(val), nil
	case json.Number:
		s := string(val)
		if strings.ContainsAny(s, ".eE") {
			return nil, fmt.Errorf("floats are forbidden in step records: %s", s)
		}
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("number out of int64 range: %s", s)
		}
		return Int(n), nil
	case []any:
		list := make(List, len(val))
		for i, elem := range val {
			ev, err := convertValue(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			list[i] = ev
		}
		return list, nil
	case map[string]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			ev, err := convertValue(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			obj[k] = ev
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}
