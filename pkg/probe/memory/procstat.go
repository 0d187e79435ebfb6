package memory

import (
	"bytes"
	"fmt"
	"strconv"
)

// rssField is the 1-based position of rss (in pages) in /proc/<pid>/stat.
const rssField = 24

// parseStatRSS extracts the resident page count from the contents of a
// /proc/<pid>/stat file. The command name (field 2) is wrapped in
// parentheses and may itself contain spaces or ')', so parsing resumes
// after the last ')'.
func parseStatRSS(data []byte) (uint64, error) {
	end := bytes.LastIndexByte(data, ')')
	if end < 0 {
		return 0, fmt.Errorf("%w: malformed stat: no command terminator", ErrUnavailable)
	}

	// Fields after the command start at position 3 (state).
	fields := bytes.Fields(data[end+1:])
	idx := rssField - 3
	if len(fields) <= idx {
		return 0, fmt.Errorf("%w: malformed stat: %d fields after command", ErrUnavailable, len(fields))
	}

	pages, err := strconv.ParseInt(string(fields[idx]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: parsing rss: %w", ErrUnavailable, err)
	}
	if pages < 0 {
		return 0, fmt.Errorf("%w: negative rss %d", ErrUnavailable, pages)
	}

	return uint64(pages), nil
}

// pagesToKiB converts a page count to kibibytes for the given page size in bytes.
func pagesToKiB(pages uint64, pageSize int) uint64 {
	return pages * uint64(pageSize/1024)
}
