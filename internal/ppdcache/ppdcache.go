/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package ppdcache persists the printer-name/sink-type/make-and-model
// mapping the scheduler would otherwise have to rediscover on every
// restart. The file format is a single header line followed by one
// tab-separated record per printer; writes are atomic via safefile so
// a crash mid-write never truncates the previous generation.
package ppdcache

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dchest/safefile"

	"github.com/gravwell/printsched/internal/log"
)

const (
	// Version identifies the on-disk record layout. Bump it if the
	// tab-separated field list ever changes.
	Version = "1"

	headerPrefix = "#CUPS-PPD-CACHE-"
	fieldCount   = 4
)

var ErrInvalidPath = errors.New("ppdcache: invalid cache file path")

// Record is one printer's cached PPD/sink mapping.
type Record struct {
	PrinterName  string
	SinkType     string
	MakeAndModel string
	FilePath     string
}

// Cache reads and atomically rewrites the PPD-cache file at fpath.
type Cache struct {
	mu     sync.Mutex
	fpath  string
	perm   os.FileMode
	logger *log.Logger
}

// New builds a Cache for the file at fpath. lg may be nil, in which
// case a discard logger absorbs warnings.
func New(fpath string, perm os.FileMode, lg *log.Logger) (*Cache, error) {
	if fpath = filepath.Clean(fpath); fpath == `.` {
		return nil, ErrInvalidPath
	}
	if lg == nil {
		lg = log.NewDiscardLogger()
	}
	return &Cache{fpath: fpath, perm: perm, logger: lg}, nil
}

// Load reads every well-formed record from the cache file. A missing
// file is not an error; it yields an empty slice. Malformed or
// unrecognized lines are skipped with a logged warning rather than
// aborting the load.
func (c *Cache) Load() ([]Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := os.Open(c.fpath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var records []Record
	sc := bufio.NewScanner(f)
	lineNo := 0
	if sc.Scan() {
		lineNo++
		if !strings.HasPrefix(sc.Text(), headerPrefix) {
			c.logger.Warnf("ppdcache: %s: missing or unrecognized header %q", c.fpath, sc.Text())
		}
	}
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if strings.TrimSpace(line) == `` {
			continue
		}
		rec, ok := parseRecord(line)
		if !ok {
			c.logger.Warnf("ppdcache: %s: line %d: malformed record, skipping", c.fpath, lineNo)
			continue
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return records, err
	}
	return records, nil
}

func parseRecord(line string) (Record, bool) {
	fields := strings.Split(line, "\t")
	if len(fields) != fieldCount {
		return Record{}, false
	}
	for _, f := range fields {
		if f == `` {
			return Record{}, false
		}
	}
	return Record{
		PrinterName:  fields[0],
		SinkType:     fields[1],
		MakeAndModel: fields[2],
		FilePath:     fields[3],
	}, true
}

// Save atomically rewrites the cache file with records, replacing its
// entire previous contents.
func (c *Cache) Save(records []Record) (err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var fout *safefile.File
	if fout, err = safefile.Create(c.fpath, c.perm); err != nil {
		return err
	}
	name := fout.Name()

	w := bufio.NewWriter(fout)
	if _, err = fmt.Fprintf(w, "%s%s\n", headerPrefix, Version); err != nil {
		fout.File.Close()
		os.Remove(name)
		return err
	}
	for _, r := range records {
		if _, err = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.PrinterName, r.SinkType, r.MakeAndModel, r.FilePath); err != nil {
			fout.File.Close()
			os.Remove(name)
			return err
		}
	}
	if err = w.Flush(); err != nil {
		fout.File.Close()
		os.Remove(name)
		return err
	}
	if err = fout.Commit(); err != nil {
		fout.File.Close()
		os.Remove(name)
		return err
	}
	return nil
}
