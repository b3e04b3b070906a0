// Package segaddr parses segment address tables: the list of preferred load addresses
// for a set of dynamic libraries used when prebinding a whole system.
//
// Each non-comment line is either
//
//	<seg1addr> <install name>
//	<segs_read_only_addr> <segs_read_write_addr> <install name>
//
// with hexadecimal addresses. Lines starting with '#' and blank lines are ignored.
package segaddr

import (
	"bufio"
	"bytes"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// An Entry is one library's preferred addresses.
type Entry struct {
	InstallName string
	Seg1Addr    uint32
	// Split entries carry separate read-only and read-write addresses instead of Seg1Addr.
	Split             bool
	SegsReadOnlyAddr  uint32
	SegsReadWriteAddr uint32
	Line              int
}

// Table is a parsed segment address table.
type Table struct {
	Name    string
	Entries []Entry
	byName  map[string]int
}

// Open reads and parses the table at path.
func Open(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read segment address table")
	}
	return Parse(path, data)
}

// ParseAddr parses a hexadecimal address with or without a 0x prefix.
func ParseAddr(s string) (uint32, bool) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, false
	}
	return uint32(v), true
}

// Parse parses table data. name is used in error messages.
func Parse(name string, data []byte) (*Table, error) {
	if len(data) == 0 {
		return nil, errors.Errorf("%s: empty segment address table", name)
	}
	if data[len(data)-1] != '\n' {
		return nil, errors.Errorf("%s: does not end in new line", name)
	}
	t := &Table{Name: name, byName: make(map[string]int)}
	s := bufio.NewScanner(bytes.NewReader(data))
	for line := 1; s.Scan(); line++ {
		text := s.Text()
		if strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) == 0 {
			continue
		}
		addr, ok := ParseAddr(fields[0])
		if !ok {
			return nil, errors.Errorf("%s: improper hexadecimal number on line %d", name, line)
		}
		if len(fields) < 2 {
			return nil, errors.Errorf("%s: missing library install name on line %d", name, line)
		}
		e := Entry{Seg1Addr: addr, Line: line}
		rest := fields[1:]
		if rw, ok := ParseAddr(fields[1]); ok && len(fields) > 2 {
			e.Split = true
			e.SegsReadOnlyAddr, e.SegsReadWriteAddr = addr, rw
			e.Seg1Addr = 0
			rest = fields[2:]
		}
		e.InstallName = strings.Join(rest, " ")
		if prev, dup := t.byName[e.InstallName]; dup {
			return nil, errors.Errorf("%s: install name %s on line %d already listed on line %d",
				name, e.InstallName, line, t.Entries[prev].Line)
		}
		t.byName[e.InstallName] = len(t.Entries)
		t.Entries = append(t.Entries, e)
	}
	if err := s.Err(); err != nil {
		return nil, errors.Wrapf(err, "%s: failed to scan", name)
	}
	return t, nil
}

// Lookup returns the entry for installName.
func (t *Table) Lookup(installName string) (Entry, bool) {
	i, ok := t.byName[installName]
	if !ok {
		return Entry{}, false
	}
	return t.Entries[i], true
}
