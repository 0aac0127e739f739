// Package ident issues identifiers for graph elements.
//
// Node ids are sequential and human readable ("node-1", "node-2", ...).
// Port and connection ids carry a base58-encoded random UUID so that
// independently created elements never need coordination.
package ident

import (
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"
)

// Identifier prefixes
const (
	NodePrefix       = "node-"
	PortPrefix       = "port-"
	ConnectionPrefix = "conn-"
)

// Generator issues node, port and connection identifiers. The zero value is
// ready to use. Safe for concurrent use.
type Generator struct {
	seq atomic.Uint64
}

// New returns a generator whose first node id is "node-1"
func New() *Generator {
	return &Generator{}
}

// NextNodeID increments the counter and returns "node-<n>"
func (g *Generator) NextNodeID() string {
	return NodePrefix + strconv.FormatUint(g.seq.Add(1), 10)
}

// NextPortID returns "port-<base58 uuid>"
func (g *Generator) NextPortID() string {
	return PortPrefix + randomSuffix()
}

// NextConnectionID returns "conn-<base58 uuid>"
func (g *Generator) NextConnectionID() string {
	return ConnectionPrefix + randomSuffix()
}

// Advance moves the node counter to at least n. It never moves it backwards,
// so ids issued before an import are never reissued.
func (g *Generator) Advance(n uint64) {
	for {
		cur := g.seq.Load()
		if cur >= n {
			return
		}
		if g.seq.CompareAndSwap(cur, n) {
			return
		}
	}
}

// Current returns the last issued node sequence number
func (g *Generator) Current() uint64 {
	return g.seq.Load()
}

// NodeSeq extracts n from a "node-<n>" id. Ids minted elsewhere report false.
func NodeSeq(id string) (uint64, bool) {
	rest, ok := strings.CutPrefix(id, NodePrefix)
	if !ok || rest == "" {
		return 0, false
	}
	n, err := strconv.ParseUint(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func randomSuffix() string {
	id := uuid.New()
	return base58.Encode(id[:])
}
