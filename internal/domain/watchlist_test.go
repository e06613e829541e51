package domain

import (
	"errors"
	"testing"
)

func TestParseKind(t *testing.T) {
	cases := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{"movie", KindMovie, false},
		{" TV ", KindShow, false},
		{"show", KindShow, false},
		{"", "", true},
		{"podcast", "", true},
	}
	for _, tc := range cases {
		got, err := ParseKind(tc.in)
		if tc.wantErr {
			if !errors.Is(err, ErrInvalidKind) {
				t.Fatalf("ParseKind(%q): expected ErrInvalidKind, got %v", tc.in, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("ParseKind(%q) = %q, %v; want %q", tc.in, got, err, tc.want)
		}
	}
	if KindOrDefault("nonsense") != KindMovie {
		t.Fatalf("expected movie fallback")
	}
	if Kind("").OrDefault() != KindMovie || KindShow.OrDefault() != KindShow {
		t.Fatalf("unexpected OrDefault result")
	}
}

func TestAppendUniqueIgnoresDuplicates(t *testing.T) {
	var list []WatchlistEntry
	list, added := AppendUnique(list, WatchlistEntry{ItemID: 550, Kind: KindMovie})
	if !added || len(list) != 1 {
		t.Fatalf("expected first append to add, got %v %v", added, list)
	}
	list, added = AppendUnique(list, WatchlistEntry{ItemID: 550, Kind: KindMovie})
	if added || len(list) != 1 {
		t.Fatalf("expected duplicate to be ignored, got %v %v", added, list)
	}
	list, added = AppendUnique(list, WatchlistEntry{ItemID: 550, Kind: KindShow})
	if !added || len(list) != 2 {
		t.Fatalf("expected same id with other kind to be added, got %v %v", added, list)
	}
	if list[0].Key() != "movie:550" || list[1].Key() != "tv:550" {
		t.Fatalf("unexpected order or keys: %v", list)
	}
}

func TestWatchlistEntryValidate(t *testing.T) {
	if err := (WatchlistEntry{ItemID: 0, Kind: KindMovie}).Validate(); err == nil {
		t.Fatalf("expected error for zero id")
	}
	if err := (WatchlistEntry{ItemID: 1, Kind: "book"}).Validate(); !errors.Is(err, ErrInvalidKind) {
		t.Fatalf("expected ErrInvalidKind, got %v", err)
	}
	if err := (WatchlistEntry{ItemID: 1, Kind: KindShow}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUserCloneIsDeep(t *testing.T) {
	u := &User{ID: "u", Watchlist: []WatchlistEntry{{ItemID: 1, Kind: KindMovie}}}
	dup := u.Clone()
	dup.Watchlist[0].ItemID = 2
	if u.Watchlist[0].ItemID != 1 {
		t.Fatalf("clone shares watchlist backing array")
	}
}
