package extract

import (
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
)

// ErrUnreadableText is returned for text that cannot be processed at all:
// invalid UTF-8 or embedded NUL bytes, the usual sign of a binary file
// passed off as converted text.
var ErrUnreadableText = eris.New("extract: document text is unreadable")

// Layout carries the per-laboratory formatting rules.
type Layout struct {
	DateFormat       string
	DecimalSeparator string
	Evolutive        bool
}

// Document is a report split into lines with its header, dated sections and
// evolutive tables located. It is built once and shared by every strategy.
type Document struct {
	Text       string
	Lines      []string
	Patient    Patient
	Date       string // ISO when DateParsed, otherwise as printed
	DateParsed bool
	Segments   []Segment
	Tables     []Table
	Layout     Layout

	inTable []bool
}

// Segment is a run of lines sharing one collection date. End is exclusive.
type Segment struct {
	Date   string
	Parsed bool
	Start  int
	End    int
}

// Prepare validates and indexes text for extraction.
func Prepare(text string, layout Layout) (*Document, error) {
	if !utf8.ValidString(text) || strings.ContainsRune(text, 0) {
		return nil, ErrUnreadableText
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")

	doc := &Document{
		Text:    text,
		Lines:   lines,
		Patient: parsePatient(text),
		Layout:  layout,
		inTable: make([]bool, len(lines)),
	}

	if raw := documentDate(lines); raw != "" {
		doc.Date, doc.DateParsed = NormalizeDate(raw, layout.DateFormat)
	}
	if doc.Patient.Age == nil && doc.Patient.BirthDate != "" && doc.DateParsed {
		if birth, ok := NormalizeDate(doc.Patient.BirthDate, layout.DateFormat); ok {
			if age, ok := ageAt(birth, doc.Date); ok {
				doc.Patient.Age = &age
			}
		}
	}

	doc.Tables = findTables(lines, layout.DateFormat, doc.inTable)
	doc.Segments = segment(lines, doc.Date, doc.DateParsed, layout.DateFormat, doc.inTable)
	return doc, nil
}

// InTable reports whether line i belongs to an evolutive table.
func (d *Document) InTable(i int) bool {
	return i >= 0 && i < len(d.inTable) && d.inTable[i]
}

// segmentText joins the segment's lines, blanking table lines so offsets
// still map back to line numbers. The returned slice holds the start offset
// of each line.
func (d *Document) segmentText(seg Segment) (string, []int) {
	var b strings.Builder
	offsets := make([]int, 0, seg.End-seg.Start)
	for i := seg.Start; i < seg.End; i++ {
		offsets = append(offsets, b.Len())
		if !d.inTable[i] {
			b.WriteString(d.Lines[i])
		}
		b.WriteByte('\n')
	}
	return b.String(), offsets
}

// lineAt maps an offset inside segmentText output to a document line index.
func lineAt(seg Segment, offsets []int, pos int) int {
	idx := 0
	for i, off := range offsets {
		if off > pos {
			break
		}
		idx = i
	}
	return seg.Start + idx
}

// segment splits lines at collection-date markers whose date differs from
// the current section's.
func segment(lines []string, docDate string, parsed bool, format string, inTable []bool) []Segment {
	var segs []Segment
	cur := Segment{Date: docDate, Parsed: parsed, Start: 0}

	for i, line := range lines {
		if inTable[i] {
			continue
		}
		m := collectionRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		date, ok := NormalizeDate(m[1], format)
		if date == cur.Date {
			continue
		}
		if i > cur.Start {
			cur.End = i
			segs = append(segs, cur)
		}
		cur = Segment{Date: date, Parsed: ok, Start: i}
	}
	cur.End = len(lines)
	return append(segs, cur)
}
