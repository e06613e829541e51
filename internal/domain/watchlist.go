package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Kind distinguishes catalog item types. The wire value for shows is "tv".
type Kind string

const (
	KindMovie Kind = "movie"
	KindShow  Kind = "tv"
)

// ErrInvalidKind reports an item type other than movie or tv.
var ErrInvalidKind = errors.New("type must be movie or tv")

// ParseKind normalises user input into a Kind. Empty input is rejected.
func ParseKind(raw string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "movie", "movies":
		return KindMovie, nil
	case "tv", "show", "shows", "series":
		return KindShow, nil
	default:
		return "", ErrInvalidKind
	}
}

// KindOrDefault parses raw and falls back to movie when it is empty or unknown.
func KindOrDefault(raw string) Kind {
	kind, err := ParseKind(raw)
	if err != nil {
		return KindMovie
	}
	return kind
}

// OrDefault returns k when valid and movie otherwise.
func (k Kind) OrDefault() Kind {
	if k.Valid() {
		return k
	}
	return KindMovie
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindMovie || k == KindShow
}

// WatchlistEntry identifies a tracked catalog item. Entries are immutable and
// unique per user on (ItemID, Kind).
type WatchlistEntry struct {
	ItemID int64 `json:"id"`
	Kind   Kind  `json:"type"`
}

// Key returns a stable identifier combining kind and item id.
func (e WatchlistEntry) Key() string {
	return string(e.Kind) + ":" + strconv.FormatInt(e.ItemID, 10)
}

// Validate checks the entry can be stored.
func (e WatchlistEntry) Validate() error {
	if e.ItemID <= 0 {
		return fmt.Errorf("invalid item id %d", e.ItemID)
	}
	if !e.Kind.Valid() {
		return ErrInvalidKind
	}
	return nil
}

// ContainsEntry reports whether list already holds an entry with the same key.
func ContainsEntry(list []WatchlistEntry, entry WatchlistEntry) bool {
	for _, existing := range list {
		if existing.ItemID == entry.ItemID && existing.Kind == entry.Kind {
			return true
		}
	}
	return false
}

// AppendUnique appends entry unless an entry with the same key is present.
// The second result reports whether the list changed.
func AppendUnique(list []WatchlistEntry, entry WatchlistEntry) ([]WatchlistEntry, bool) {
	if ContainsEntry(list, entry) {
		return list, false
	}
	return append(list, entry), true
}
