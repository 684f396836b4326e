package record

import (
	"fmt"
	"hash/crc32"
)

// FormatVersion is the semantic version of the step record wire format.
const FormatVersion = "1.0.0"

// Record is the immutable description of one step: one execution of one
// command. Records are created once, at step completion, and are never
// mutated or deleted.
type Record struct {
	StepID    string
	RunID     string
	CmdModule string
	CmdName   string

	// Args maps argument names to values. File-valued arguments are
	// FileRefs (or serialized FileRef objects after a round trip).
	Args map[string]Value

	RunEnv  RunEnv
	RunInfo RunInfo

	// MetadataCmdLine holds operator-supplied metadata attached at
	// invocation time. Keys of the form "file.<arg>.<name>" are per-file
	// metadata applied to the files of that argument.
	MetadataCmdLine map[string]string

	// MetadataCmdReturn holds metrics the command itself reported back.
	MetadataCmdReturn map[string]string

	// EnclosingSteps is the stack of step ids already running when this
	// step started, outermost first. Non-empty means this is a nested
	// sub-invocation.
	EnclosingSteps []string

	VersionInfo VersionInfo
}

// RunInfo captures timing and outcome of the step.
type RunInfo struct {
	BegTimeMillis  int64
	EndTimeMillis  int64
	DurationMillis int64

	// Exception is the error text of a failed step, empty for success.
	Exception string

	Argv []string
}

// Failed reports whether the step ended with an error.
func (ri RunInfo) Failed() bool { return ri.Exception != "" }

// RunEnv is a snapshot of the execution environment.
type RunEnv struct {
	Platform      string
	CPUs          int
	Host          string
	User          string
	Cwd           string
	StoreLocation string
}

// VersionInfo is the best-effort code identity at the time the step ran.
type VersionInfo struct {
	Version  string
	Path     string
	RealPath string
	CodeHash string
}

// StepName returns the display name of the step: the operator-supplied
// "step_name" metadata when present, else the command name.
func (r *Record) StepName() string {
	if name, ok := r.MetadataCmdLine["step_name"]; ok && name != "" {
		return name
	}
	return r.CmdName
}

// toValue builds the canonical object tree for serialization.
func (r *Record) toValue() Value {
	args := make(Object, len(r.Args))
	for k, v := range r.Args {
		args[k] = v
	}

	runInfo := Object{
		"beg_time_ms": Int(r.RunInfo.BegTimeMillis),
		"end_time_ms": Int(r.RunInfo.EndTimeMillis),
		"duration_ms": Int(r.RunInfo.DurationMillis),
		"argv":        stringList(r.RunInfo.Argv),
	}
	if r.RunInfo.Exception != "" {
		runInfo["exception"] = String(r.RunInfo.Exception)
	}

	step := Object{
		"step_id":    String(r.StepID),
		"run_id":     String(r.RunID),
		"cmd_module": String(r.CmdModule),
		"cmd_name":   String(r.CmdName),
		"args":       args,
		"run_env": Object{
			"platform":       String(r.RunEnv.Platform),
			"cpus":           Int(int64(r.RunEnv.CPUs)),
			"host":           String(r.RunEnv.Host),
			"user":           String(r.RunEnv.User),
			"cwd":            String(r.RunEnv.Cwd),
			"store_location": String(r.RunEnv.StoreLocation),
		},
		"run_info":               runInfo,
		"metadata_from_cmd_line": stringMap(r.MetadataCmdLine),
		"metadata_from_cmd_return": stringMap(
			r.MetadataCmdReturn),
		"enclosing_steps": stringList(r.EnclosingSteps),
		"version_info": Object{
			"version":   String(r.VersionInfo.Version),
			"path":      String(r.VersionInfo.Path),
			"path_real": String(r.VersionInfo.RealPath),
			"code_hash": String(r.VersionInfo.CodeHash),
		},
	}

	return Object{
		"format": String(FormatVersion),
		"step":   step,
	}
}

func stringList(ss []string) List {
	out := make(List, len(ss))
	for i, s := range ss {
		out[i] = String(s)
	}
	return out
}

func stringMap(m map[string]string) Object {
	out := make(Object, len(m))
	for k, v := range m {
		out[k] = String(v)
	}
	return out
}

// Marshal serializes the record to canonical JSON.
func (r *Record) Marshal() ([]byte, error) {
	data, err := MarshalCanonical(r.toValue())
	if err != nil {
		return nil, fmt.Errorf("marshal step record: %w", err)
	}
	return data, nil
}

// Filename returns the store filename for serialized record bytes:
// <step_id>.crc32_<8-hex>.json. Two distinct records cannot collide on both
// the step id and the checksum, so writes never overwrite.
func Filename(stepID string, data []byte) string {
	sum := crc32.ChecksumIEEE(data)
	return fmt.Sprintf("%s.crc32_%08x.json", stepID, sum)
}

// Parse decodes serialized record bytes, enforcing the structural schema:
// records missing format, step.step_id, step.cmd_module or step.args are
// rejected. Optional fields default to their zero values.
func Parse(data []byte) (*Record, error) {
	if err := ValidateSchema(data); err != nil {
		return nil, err
	}

	root, err := UnmarshalValue(data)
	if err != nil {
		return nil, fmt.Errorf("parse step record: %w", err)
	}
	rootObj, ok := root.(Object)
	if !ok {
		return nil, fmt.Errorf("parse step record: not a JSON object")
	}
	stepObj, _ := rootObj["step"].(Object)

	r := &Record{
		StepID:            str(stepObj["step_id"]),
		RunID:             str(stepObj["run_id"]),
		CmdModule:         str(stepObj["cmd_module"]),
		CmdName:           str(stepObj["cmd_name"]),
		Args:              map[string]Value{},
		MetadataCmdLine:   objToStringMap(stepObj["metadata_from_cmd_line"]),
		MetadataCmdReturn: objToStringMap(stepObj["metadata_from_cmd_return"]),
		EnclosingSteps:    listToStrings(stepObj["enclosing_steps"]),
	}

	if args, ok := stepObj["args"].(Object); ok {
		for k, v := range args {
			r.Args[k] = v
		}
	}

	if env, ok := stepObj["run_env"].(Object); ok {
		r.RunEnv = RunEnv{
			Platform:      str(env["platform"]),
			CPUs:          int(intVal(env["cpus"])),
			Host:          str(env["host"]),
			User:          str(env["user"]),
			Cwd:           str(env["cwd"]),
			StoreLocation: str(env["store_location"]),
		}
	}

	if ri, ok := stepObj["run_info"].(Object); ok {
		r.RunInfo = RunInfo{
			BegTimeMillis:  intVal(ri["beg_time_ms"]),
			EndTimeMillis:  intVal(ri["end_time_ms"]),
			DurationMillis: intVal(ri["duration_ms"]),
			Exception:      str(ri["exception"]),
			Argv:           listToStrings(ri["argv"]),
		}
	}

	if vi, ok := stepObj["version_info"].(Object); ok {
		r.VersionInfo = VersionInfo{
			Version:  str(vi["version"]),
			Path:     str(vi["path"]),
			RealPath: str(vi["path_real"]),
			CodeHash: str(vi["code_hash"]),
		}
	}

	return r, nil
}

func str(v Value) string {
	if s, ok := v.(String); ok {
		return string(s)
	}
	return ""
}

func intVal(v Value) int64 {
	if n, ok := v.(Int); ok {
		return int64(n)
	}
	return 0
}

func objToStringMap(v Value) map[string]string {
	out := map[string]string{}
	if obj, ok := v.(Object); ok {
		for k, val := range obj {
			out[k] = Stringify(val)
		}
	}
	return out
}

func listToStrings(v Value) []string {
	list, ok := v.(List)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, elem := range list {
		out = append(out, Stringify(elem))
	}
	return out
}
