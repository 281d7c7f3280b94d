// Package ident derives stable note, attribute and branch identifiers from
// seed strings, so declarative trees map to the same remote records on every
// run without a remote lookup.
package ident

import (
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"strings"
)

// Kind namespaces the occurrence counters of a Deriver.
type Kind string

// Kinds used when deriving ids.
const (
	KindNote     Kind = "note"
	KindLabel    Kind = "label"
	KindRelation Kind = "relation"
)

// Hash maps an arbitrary seed to a 22-character identifier drawn from
// [A-Za-z0-9].
//
// The first 128 bits of the SHA-256 digest are base64 encoded without
// padding. Base64 emits '+' and '/', which are not legal in remote ids, so
// they are remapped to 'a' and 'b'. The remap folds 64 symbols onto 62 and
// costs a little under 1 bit of entropy per affected position; distinct
// seeds still only collide when the truncated digests collide.
func Hash(seed string) string {
	sum := sha256.Sum256([]byte(seed))
	enc := base64.RawStdEncoding.EncodeToString(sum[:16])
	return strings.NewReplacer("+", "a", "/", "b").Replace(enc)
}

// Deriver produces child seeds and ids under one fixed parent seed. It keeps
// an occurrence counter per kind and base name, so a Deriver must be created
// for each instantiation pass of a parent.
type Deriver struct {
	prefix string
	seen   map[Kind]map[string]int
}

// NewDeriver returns a Deriver rooted at prefix. An empty prefix yields a
// Deriver that cannot derive: the parent itself is not addressable.
func NewDeriver(prefix string) *Deriver {
	return &Deriver{
		prefix: prefix,
		seen:   make(map[Kind]map[string]int),
	}
}

// Prefix returns the seed the Deriver was created with.
func (d *Deriver) Prefix() string {
	return d.prefix
}

// Seed returns the child seed for base and advances the occurrence counter.
// The first occurrence is prefix/base, later ones prefix/base_1, prefix/base_2
// and so on. The boolean is false when the Deriver has no prefix.
func (d *Deriver) Seed(kind Kind, base string) (string, bool) {
	if d == nil || d.prefix == "" {
		return "", false
	}
	counts := d.seen[kind]
	if counts == nil {
		counts = make(map[string]int)
		d.seen[kind] = counts
	}
	n := counts[base]
	counts[base] = n + 1

	seed := d.prefix + "/" + base
	if n > 0 {
		seed += "_" + strconv.Itoa(n)
	}
	return seed, true
}

// Derive returns Hash of the next child seed for base.
func (d *Deriver) Derive(kind Kind, base string) (string, bool) {
	seed, ok := d.Seed(kind, base)
	if !ok {
		return "", false
	}
	return Hash(seed), true
}
