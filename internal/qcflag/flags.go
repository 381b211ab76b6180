// Package qcflag holds the quality control flag vocabulary shared by every
// QC test. The flag sets are parsed once from an embedded table and handed to
// callers as typed values; nothing re-reads the table at call time.
package qcflag

import (
	_ "embed"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// DefaultSetID is the IMOS standard flag set.
const DefaultSetID = 1

// Names every set must define. The classifiers depend on them.
const (
	NameRaw          = "raw"
	NameGood         = "good"
	NameProbablyGood = "probablyGood"
	NameProbablyBad  = "probablyBad"
	NameBad          = "bad"
	NameMissing      = "missing"
)

var requiredNames = []string{NameRaw, NameGood, NameBad, NameMissing}

//go:embed flags.csv
var flagTable string

// Code is a QC flag value as stored alongside the data.
type Code uint8

// String returns the flag name in the default set, or the numeric value when
// the code is not part of it.
func (c Code) String() string {
	if s, err := Lookup(DefaultSetID); err == nil {
		if f, ok := s.Flag(c); ok {
			return f.Name
		}
	}
	return "flag(" + strconv.Itoa(int(c)) + ")"
}

// Flag describes one entry of a flag set.
type Flag struct {
	Code        Code
	Name        string
	Description string
	Color       string
	// Rank orders flags by severity; Worse keeps the higher rank.
	Rank int
}

// Set is an immutable flag vocabulary.
type Set struct {
	ID     int
	Title  string
	flags  map[Code]Flag
	byName map[string]Code
}

var (
	loadOnce sync.Once
	sets     map[int]*Set
	loadErr  error
)

// Lookup returns the flag set with the given id.
func Lookup(id int) (*Set, error) {
	loadOnce.Do(func() {
		sets, loadErr = parseTable(strings.NewReader(flagTable))
	})
	if loadErr != nil {
		return nil, fmt.Errorf("load flag table: %w", loadErr)
	}
	s, ok := sets[id]
	if !ok {
		return nil, fmt.Errorf("unknown QC flag set %d", id)
	}
	return s, nil
}

// MustLookup is Lookup for sets known to exist, such as DefaultSetID.
func MustLookup(id int) *Set {
	s, err := Lookup(id)
	if err != nil {
		panic(err)
	}
	return s
}

// SetIDs lists the available flag sets in ascending order.
func SetIDs() []int {
	if _, err := Lookup(DefaultSetID); err != nil {
		return nil
	}
	ids := make([]int, 0, len(sets))
	for id := range sets {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func parseTable(r io.Reader) (map[int]*Set, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = 7
	cr.TrimLeadingSpace = true

	out := make(map[int]*Set)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		id, err := strconv.Atoi(rec[0])
		if err != nil {
			return nil, fmt.Errorf("invalid set id %q: %w", rec[0], err)
		}
		code, err := strconv.ParseUint(rec[2], 10, 8)
		if err != nil {
			return nil, fmt.Errorf("set %d: invalid code %q: %w", id, rec[2], err)
		}
		rank, err := strconv.Atoi(rec[4])
		if err != nil {
			return nil, fmt.Errorf("set %d: invalid rank %q: %w", id, rec[4], err)
		}

		s, ok := out[id]
		if !ok {
			s = &Set{ID: id, Title: rec[1], flags: make(map[Code]Flag), byName: make(map[string]Code)}
			out[id] = s
		}
		f := Flag{Code: Code(code), Name: rec[3], Rank: rank, Color: rec[5], Description: rec[6]}
		if _, dup := s.flags[f.Code]; dup {
			return nil, fmt.Errorf("set %d: duplicate code %d", id, code)
		}
		s.flags[f.Code] = f
		s.byName[f.Name] = f.Code
	}

	for id, s := range out {
		for _, name := range requiredNames {
			if _, ok := s.byName[name]; !ok {
				return nil, fmt.Errorf("set %d: missing required flag %q", id, name)
			}
		}
	}
	return out, nil
}

// Flag returns the definition of code c.
func (s *Set) Flag(c Code) (Flag, bool) {
	f, ok := s.flags[c]
	return f, ok
}

// Valid reports whether c belongs to the set.
func (s *Set) Valid(c Code) bool {
	_, ok := s.flags[c]
	return ok
}

// Name returns the flag name for c, or "" when c is not in the set.
func (s *Set) Name(c Code) string {
	return s.flags[c].Name
}

// Code returns the code registered under name.
func (s *Set) Code(name string) (Code, bool) {
	c, ok := s.byName[name]
	return c, ok
}

// Codes lists the set's codes in ascending order.
func (s *Set) Codes() []Code {
	codes := make([]Code, 0, len(s.flags))
	for c := range s.flags {
		codes = append(codes, c)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}

func (s *Set) Raw() Code     { return s.byName[NameRaw] }
func (s *Set) Good() Code    { return s.byName[NameGood] }
func (s *Set) Bad() Code     { return s.byName[NameBad] }
func (s *Set) Missing() Code { return s.byName[NameMissing] }

// Worse returns whichever of a and b has the higher severity rank. On a tie
// a is returned.
func (s *Set) Worse(a, b Code) Code {
	if s.flags[b].Rank > s.flags[a].Rank {
		return b
	}
	return a
}

// IsBad reports whether c ranks at least as severe as probably bad.
func (s *Set) IsBad(c Code) bool {
	pb, ok := s.byName[NameProbablyBad]
	if !ok {
		pb = s.Bad()
	}
	f, known := s.flags[c]
	return known && c != s.Missing() && f.Rank >= s.flags[pb].Rank
}
