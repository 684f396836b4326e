package recorder

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// maxIDLen bounds minted ids so they stay usable as filename stems on
// common filesystems.
const maxIDLen = 210

// TokenGenerator supplies the random component of run and step ids.
// Implemented by UUIDv7Generator (production) and FixedGenerator (tests).
type TokenGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 tokens. Stateless and safe
// for concurrent use.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7 string.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined tokens, for deterministic tests.
type FixedGenerator struct {
	mu     sync.Mutex
	tokens []string
	idx    int
}

// NewFixedGenerator creates a generator that returns tokens in order and
// panics when exhausted, to catch test misconfiguration early.
func NewFixedGenerator(tokens ...string) *FixedGenerator {
	return &FixedGenerator{tokens: tokens}
}

// Generate returns the next predetermined token.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.idx >= len(g.tokens) {
		panic("FixedGenerator: all tokens exhausted")
	}
	token := g.tokens[g.idx]
	g.idx++
	return token
}

// MintRunID builds a run id from the start time, OS user, working directory
// basename and a fresh token: human-scannable, sortable by time, and unique.
func MintRunID(t time.Time, gen TokenGenerator) string {
	stamp := t.Format("060102150405")

	userName := "nouser"
	if u, err := user.Current(); err == nil && u.Username != "" {
		userName = u.Username
	}
	dir := "nodir"
	if cwd, err := os.Getwd(); err == nil {
		dir = filepath.Base(cwd)
	}

	id := strings.Join([]string{stamp, userName, dir, gen.Generate()}, "__")
	return truncateID(SanitizeID(id))
}

// MintStepID derives a step id from a freshly minted run-style id plus the
// command identity. Distinct from the workflow run id: every step gets its
// own timestamp and token even within one run.
func MintStepID(t time.Time, gen TokenGenerator, cmdModule, cmdName string) string {
	id := strings.Join([]string{MintRunID(t, gen), cmdModule, cmdName}, "__")
	return truncateID(id)
}

// SanitizeID replaces characters that are unsafe in filenames.
func SanitizeID(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '.' || r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}

func truncateID(s string) string {
	if len(s) <= maxIDLen {
		return s
	}
	return s[:maxIDLen]
}

// describe renders a command identity for log lines.
func describe(cmdModule, cmdName string) string {
	return fmt.Sprintf("%s.%s", cmdModule, cmdName)
}
