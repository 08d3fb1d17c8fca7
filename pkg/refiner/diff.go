package refiner

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/edison-llm/edison/pkg/edisonerr"
)

// hunk is one contiguous block of a unified diff: a source range, a
// target range, and the context/add/remove lines between them.
type hunk struct {
	oldStart, oldLines int
	newStart, newLines int
	ops                []diffOp
}

type opKind byte

const (
	opContext opKind = ' '
	opAdd     opKind = '+'
	opRemove  opKind = '-'
)

type diffOp struct {
	kind opKind
	text string
}

// parseUnifiedDiff parses a minimal single-file unified diff: an
// optional pair of `---`/`+++` header lines followed by one or more
// `@@ -l,s +l,s @@` hunks. It rejects multi-file diffs and anything
// that doesn't parse as a well-formed hunk sequence.
func parseUnifiedDiff(text string) ([]hunk, error) {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	var hunks []hunk
	i := 0

	// Skip an optional `--- a/file` / `+++ b/file` header pair.
	if i < len(lines) && strings.HasPrefix(lines[i], "--- ") {
		i++
	}
	if i < len(lines) && strings.HasPrefix(lines[i], "+++ ") {
		i++
	}

	for i < len(lines) {
		line := lines[i]
		if !strings.HasPrefix(line, "@@ ") {
			return nil, edisonerr.New(edisonerr.DiffInvalid, "refiner", fmt.Sprintf("expected hunk header, got %q", line))
		}
		h, consumed, err := parseHunk(lines, i)
		if err != nil {
			return nil, err
		}
		hunks = append(hunks, h)
		i += consumed
	}

	if len(hunks) == 0 {
		return nil, edisonerr.New(edisonerr.DiffInvalid, "refiner", "diff contains no hunks")
	}
	return hunks, nil
}

func parseHunk(lines []string, start int) (hunk, int, error) {
	header := lines[start]
	oldStart, oldLines, newStart, newLines, err := parseHunkHeader(header)
	if err != nil {
		return hunk{}, 0, err
	}
	h := hunk{oldStart: oldStart, oldLines: oldLines, newStart: newStart, newLines: newLines}

	i := start + 1
	for i < len(lines) {
		line := lines[i]
		if strings.HasPrefix(line, "@@ ") {
			break
		}
		if line == "" {
			h.ops = append(h.ops, diffOp{kind: opContext, text: ""})
			i++
			continue
		}
		kind := opKind(line[0])
		switch kind {
		case opContext, opAdd, opRemove:
			h.ops = append(h.ops, diffOp{kind: kind, text: line[1:]})
		default:
			return hunk{}, 0, edisonerr.New(edisonerr.DiffInvalid, "refiner", fmt.Sprintf("invalid diff line %q", line))
		}
		i++
	}
	return h, i - start, nil
}

// parseHunkHeader parses `@@ -oldStart,oldLines +newStart,newLines @@`,
// tolerating an omitted `,lines` (implying a span of 1).
func parseHunkHeader(header string) (oldStart, oldLines, newStart, newLines int, err error) {
	body := strings.TrimPrefix(header, "@@ ")
	if idx := strings.Index(body, " @@"); idx >= 0 {
		body = body[:idx]
	}
	parts := strings.Fields(body)
	if len(parts) != 2 {
		return 0, 0, 0, 0, edisonerr.New(edisonerr.DiffInvalid, "refiner", fmt.Sprintf("malformed hunk header %q", header))
	}
	oldStart, oldLines, err = parseRange(parts[0], "-")
	if err != nil {
		return
	}
	newStart, newLines, err = parseRange(parts[1], "+")
	return
}

func parseRange(field, prefix string) (start, count int, err error) {
	field = strings.TrimPrefix(field, prefix)
	pieces := strings.SplitN(field, ",", 2)
	start, err = strconv.Atoi(pieces[0])
	if err != nil {
		return 0, 0, edisonerr.Wrap(edisonerr.DiffInvalid, "refiner", "invalid range start", err)
	}
	count = 1
	if len(pieces) == 2 {
		count, err = strconv.Atoi(pieces[1])
		if err != nil {
			return 0, 0, edisonerr.Wrap(edisonerr.DiffInvalid, "refiner", "invalid range count", err)
		}
	}
	return start, count, nil
}

// applyUnifiedDiff applies hunks to source's lines and returns the
// result, failing if any hunk's context/removal lines don't match the
// source at the hunk's declared position.
func applyUnifiedDiff(source string, hunks []hunk) (string, error) {
	srcLines := strings.Split(source, "\n")
	var out []string
	cursor := 0 // 0-based index into srcLines already emitted

	for _, h := range hunks {
		start := h.oldStart - 1
		if h.oldStart == 0 {
			start = 0
		}
		if start < cursor || start > len(srcLines) {
			return "", edisonerr.New(edisonerr.DiffInvalid, "refiner", "hunk position out of order or out of range")
		}
		out = append(out, srcLines[cursor:start]...)
		cursor = start

		for _, op := range h.ops {
			switch op.kind {
			case opContext:
				if cursor >= len(srcLines) || srcLines[cursor] != op.text {
					return "", edisonerr.New(edisonerr.DiffInvalid, "refiner", "context line does not match source")
				}
				out = append(out, srcLines[cursor])
				cursor++
			case opRemove:
				if cursor >= len(srcLines) || srcLines[cursor] != op.text {
					return "", edisonerr.New(edisonerr.DiffInvalid, "refiner", "removal line does not match source")
				}
				cursor++
			case opAdd:
				out = append(out, op.text)
			}
		}
	}
	out = append(out, srcLines[cursor:]...)
	return strings.Join(out, "\n"), nil
}

// maxDeletionRun returns the length of the longest consecutive run of
// opRemove lines across all hunks.
func maxDeletionRun(hunks []hunk) int {
	max, run := 0, 0
	for _, h := range hunks {
		for _, op := range h.ops {
			if op.kind == opRemove {
				run++
				if run > max {
					max = run
				}
			} else {
				run = 0
			}
		}
		run = 0
	}
	return max
}
