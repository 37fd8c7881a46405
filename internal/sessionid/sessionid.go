// Package sessionid builds and parses duel session ids.
//
// An id is "game:" followed by both player identities, query-escaped and sorted, joined by ":".
// Escaping keeps identities containing ':' or '_' reversible.
package sessionid

import (
	"errors"
	"net/url"
	"strings"
)

const prefix = "game:"

var ErrMalformed = errors.New("malformed session id")

// New returns the id for a pairing of a and b. New(a, b) == New(b, a).
func New(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return prefix + url.QueryEscape(a) + ":" + url.QueryEscape(b)
}

// Resolve is the inverse of New. Players are returned in sorted order.
func Resolve(id string) (string, string, error) {
	rest, ok := strings.CutPrefix(id, prefix)
	if !ok {
		return "", "", ErrMalformed
	}
	left, right, ok := strings.Cut(rest, ":")
	if !ok || left == "" || right == "" || strings.Contains(right, ":") {
		return "", "", ErrMalformed
	}
	p1, err := url.QueryUnescape(left)
	if err != nil {
		return "", "", ErrMalformed
	}
	p2, err := url.QueryUnescape(right)
	if err != nil {
		return "", "", ErrMalformed
	}
	return p1, p2, nil
}

// Has reports whether player is one of the two identities encoded in id.
func Has(id, player string) bool {
	p1, p2, err := Resolve(id)
	if err != nil {
		return false
	}
	return player == p1 || player == p2
}

// Opponent returns the other identity in id, or "" when player is not part of it.
func Opponent(id, player string) string {
	p1, p2, err := Resolve(id)
	if err != nil {
		return ""
	}
	switch player {
	case p1:
		return p2
	case p2:
		return p1
	}
	return ""
}
