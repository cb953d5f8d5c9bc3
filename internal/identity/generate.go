package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Kind selects the identifier prefix and slug bounds.
type Kind string

const (
	KindEvent Kind = "evt"
	KindClass Kind = "cls"
)

// HashLen is the number of hex characters in the collision guard.
const HashLen = 6

// KeyParts are the raw constituents of a natural key.
// Label is the event category for KindEvent and the class name for KindClass.
type KeyParts struct {
	School string
	Label  string
	Date   string
}

// GenerateID maps key parts to a deterministic identifier. Total: any input,
// including blank parts, produces a well-formed identifier.
func GenerateID(kind Kind, p KeyParts) string {
	labelMax := CategoryMax
	if kind == KindClass {
		labelMax = ClassMax
	}

	segs := []string{string(kind), Slug(p.School, SchoolMax), Slug(p.Label, labelMax)}
	if tok := DateToken(p.Date); tok != "" {
		segs = append(segs, tok)
	}
	segs = append(segs, shortHash(p.School, p.Label, p.Date))
	return strings.Join(segs, "_")
}

// EventID is the canonical identifier of an Event. The category is
// normalized first so synonyms converge on one identifier.
func EventID(school, category, date string) string {
	return GenerateID(KindEvent, KeyParts{
		School: strings.TrimSpace(school),
		Label:  NormalizeCategory(category),
		Date:   strings.TrimSpace(date),
	})
}

// ClassID is the canonical identifier of a Class. It derives from the Event
// natural key plus class name, so it does not move when an Event's category does.
func ClassID(school, className, date string) string {
	return GenerateID(KindClass, KeyParts{
		School: strings.TrimSpace(school),
		Label:  strings.TrimSpace(className),
		Date:   strings.TrimSpace(date),
	})
}

// shortHash is the first HashLen hex chars of SHA-256 over the pipe-joined parts.
func shortHash(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])[:HashLen]
}

// ParsedID is the structural view of a generated identifier.
type ParsedID struct {
	Kind Kind
	Hash string
}

// ParseID checks the outer shape of an identifier: known prefix and a
// trailing HashLen-hex segment. It cannot recover the key parts.
func ParseID(id string) (ParsedID, bool) {
	segs := strings.Split(id, "_")
	if len(segs) < 3 {
		return ParsedID{}, false
	}
	kind := Kind(segs[0])
	if kind != KindEvent && kind != KindClass {
		return ParsedID{}, false
	}
	hash := segs[len(segs)-1]
	if len(hash) != HashLen {
		return ParsedID{}, false
	}
	if _, err := hex.DecodeString(hash); err != nil {
		return ParsedID{}, false
	}
	return ParsedID{Kind: kind, Hash: hash}, true
}

// DomainSnapshot separates snapshot fingerprints from any other digest.
const DomainSnapshot = "rekey/snapshot/v1"

// Fingerprint digests an identifier set independent of order.
// Format: SHA256(domain + 0x00 + sorted ids joined by "\n").
func Fingerprint(ids []string) string {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	h := sha256.New()
	h.Write([]byte(DomainSnapshot))
	h.Write([]byte{0x00})
	h.Write([]byte(strings.Join(sorted, "\n")))
	return hex.EncodeToString(h.Sum(nil))
}
