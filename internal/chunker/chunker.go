// Package chunker splits cleaned document text into overlapping chunks
// sized for embedding.
//
// With PreserveStructure set, splitting is structure-aware: within a
// bounded window before each size target it prefers paragraph boundaries,
// then sentence boundaries, then list item starts, then plain whitespace,
// avoids cutting inside code blocks, and only hard-cuts when the window
// offers nothing better. Without it, only whitespace and raw cuts apply.
// Each chunk after the first carries a configurable overlap with its
// predecessor so retrieval context survives the cut; stripping the overlaps
// and concatenating chunks in order reconstructs the cleaned source.
package chunker

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultMaxChunkSize is the target size of a single chunk in bytes.
	DefaultMaxChunkSize = 5000

	// DefaultOverlap is the overlap the configuration layer applies when
	// none is configured. The chunker itself treats Overlap zero as zero.
	DefaultOverlap = 200

	// maxSearchWindow bounds how far behind the size target the splitter
	// looks for a natural boundary.
	maxSearchWindow = 200

	// titleScanLines is how many leading non-empty lines are examined
	// when deriving a chunk title from a header.
	titleScanLines = 5
)

// ErrInvalidOptions reports unusable split parameters.
var ErrInvalidOptions = errors.New("chunker: invalid options")

// Options controls how Split sizes and overlaps chunks. The zero value
// selects the default chunk size with no overlap and plain whitespace
// splitting.
type Options struct {
	// MaxChunkSize is the target chunk size in bytes. A chunk may exceed
	// it by a small boundary adjustment but never by more than Overlap
	// plus a few bytes of rune alignment. Zero selects
	// DefaultMaxChunkSize.
	MaxChunkSize int

	// Overlap is the number of bytes each chunk repeats from the end of
	// its predecessor. Must be smaller than MaxChunkSize. Zero means no
	// overlap.
	Overlap int

	// PreserveStructure enables structure-aware boundary selection:
	// paragraph, sentence, and list item boundaries are preferred and
	// code blocks are kept intact where the chunk size allows.
	PreserveStructure bool
}

func (o Options) withDefaults() Options {
	if o.MaxChunkSize == 0 {
		o.MaxChunkSize = DefaultMaxChunkSize
	}
	return o
}

func (o Options) validate() error {
	if o.MaxChunkSize <= 0 {
		return fmt.Errorf("%w: max chunk size %d", ErrInvalidOptions, o.MaxChunkSize)
	}
	if o.Overlap < 0 || o.Overlap >= o.MaxChunkSize {
		return fmt.Errorf("%w: overlap %d with max chunk size %d", ErrInvalidOptions, o.Overlap, o.MaxChunkSize)
	}
	return nil
}

// Chunk is one piece of a split document.
type Chunk struct {
	// Title is the document title, suffixed with the chunk's header or
	// part number when the document was split.
	Title string

	// Content is the chunk text including the leading overlap region.
	Content string

	// Index is the chunk's position, Total the number of chunks emitted.
	Index int
	Total int

	// Start and End are the byte offsets of the chunk's exclusive region
	// in the cleaned source. Content[Overlap:] == cleaned[Start:End].
	Start int
	End   int

	// Overlap is how many leading bytes of Content repeat the previous
	// chunk.
	Overlap int

	// OriginalLength is the length of the cleaned source.
	OriginalLength int

	// Complete marks a document that fit in a single chunk.
	Complete bool
}

var (
	blankRuns = regexp.MustCompile(`\n(\s*\n){2,}`)
	spaceRuns = regexp.MustCompile(` {2,}`)

	headerPatterns = []*regexp.Regexp{
		regexp.MustCompile(`^#{1,6}\s+\S`),
		regexp.MustCompile(`^\d+(\.\d+)*\.?\s+\S`),
		regexp.MustCompile(`^[A-Z][A-Z0-9 ]{2,}$`),
		regexp.MustCompile(`(?i)^(chapter|section|part)\s+\d+`),
	}
	underline = regexp.MustCompile(`^[=\-]{3,}$`)
)

// Clean normalizes whitespace: runs of blank lines collapse to one,
// repeated spaces to one, and surrounding whitespace is trimmed.
// Clean is idempotent.
func Clean(text string) string {
	text = blankRuns.ReplaceAllString(text, "\n\n")
	text = spaceRuns.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// Split cleans text and cuts it into chunks per opts. The title names the
// source document and seeds each chunk's title. Empty cleaned text yields
// no chunks and no error.
func Split(text, title string, opts Options) ([]Chunk, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}

	content := Clean(text)
	if content == "" {
		return nil, nil
	}

	if len(content) <= opts.MaxChunkSize {
		return []Chunk{{
			Title:          title,
			Content:        content,
			Index:          0,
			Total:          1,
			Start:          0,
			End:            len(content),
			OriginalLength: len(content),
			Complete:       true,
		}}, nil
	}

	points := splitPoints(content, opts)

	chunks := make([]Chunk, 0, len(points)-1)
	for i := 0; i+1 < len(points); i++ {
		start, end := points[i], points[i+1]
		ov := 0
		if i > 0 {
			ov = min(opts.Overlap, start)
			// The overlap head must not start mid-rune.
			for ov > 0 && !utf8.RuneStart(content[start-ov]) {
				ov--
			}
		}
		chunks = append(chunks, Chunk{
			Content:        content[start-ov : end],
			Start:          start,
			End:            end,
			Overlap:        ov,
			OriginalLength: len(content),
		})
	}

	for i := range chunks {
		chunks[i].Index = i
		chunks[i].Total = len(chunks)
		chunks[i].Title = chunkTitle(title, chunks[i].Content, i)
	}
	return chunks, nil
}

// Estimate summarizes how Split would divide a document.
type Estimate struct {
	// Chunks is the number of chunks Split would emit.
	Chunks int

	// ContentLength is the length of the cleaned text in bytes.
	ContentLength int

	// AverageChunkSize is ContentLength divided by Chunks.
	AverageChunkSize int

	// RequiresSplitting reports whether the cleaned text exceeds the
	// chunk size.
	RequiresSplitting bool
}

// EstimateChunks reports how Split would divide text without
// materializing the chunks.
func EstimateChunks(text string, opts Options) (Estimate, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return Estimate{}, err
	}
	content := Clean(text)
	if content == "" {
		return Estimate{}, nil
	}
	est := Estimate{ContentLength: len(content)}
	if len(content) <= opts.MaxChunkSize {
		est.Chunks = 1
		est.AverageChunkSize = len(content)
		return est, nil
	}
	est.Chunks = len(splitPoints(content, opts)) - 1
	est.AverageChunkSize = len(content) / est.Chunks
	est.RequiresSplitting = true
	return est, nil
}

// Merge reconstructs the cleaned source from chunks in order, dropping each
// chunk's overlap region.
func Merge(chunks []Chunk) string {
	var b strings.Builder
	for _, c := range chunks {
		b.WriteString(c.Content[c.Overlap:])
	}
	return b.String()
}

// splitPoints computes strictly increasing cut offsets into content,
// starting at 0 and ending at len(content). The search window for the next
// cut begins Overlap bytes before the previous cut, advancing at least one
// byte per iteration so degenerate parameters cannot stall.
func splitPoints(content string, opts Options) []int {
	var st *structure
	if opts.PreserveStructure {
		st = detectStructure(content)
	}

	n := len(content)
	points := []int{0}
	pos := 0
	for {
		target := pos + opts.MaxChunkSize
		if target >= n {
			points = append(points, n)
			return points
		}
		cut := findSplit(content, pos, target, st)
		if last := points[len(points)-1]; cut <= last {
			cut = last + 1
		}
		for cut < n && !utf8.RuneStart(content[cut]) {
			cut++
		}
		if cut >= n {
			points = append(points, n)
			return points
		}
		points = append(points, cut)
		pos = max(cut-opts.Overlap, pos+1)
	}
}

// findSplit picks a cut offset in (target-window, target]. With structure
// it prefers a paragraph break, then a sentence end, then a list item
// start, then any whitespace, rejecting candidates inside a code block;
// without structure only the whitespace scan applies. The window is the
// smaller of maxSearchWindow and a quarter of the span, so short spans
// never walk arbitrarily far back.
func findSplit(content string, start, target int, st *structure) int {
	window := min(maxSearchWindow, (target-start)/4)
	low := max(start, target-window)

	if st != nil {
		if i := strings.LastIndex(content[low:target], "\n\n"); i >= 0 && !st.inCode(low+i+2) {
			return low + i + 2
		}
		for i := target - 1; i > low; i-- {
			if isSentenceEnd(content[i-1]) && isSpace(content[i]) && !st.inCode(i+1) {
				return i + 1
			}
		}
		for i := len(st.items) - 1; i >= 0; i-- {
			if p := st.items[i]; low < p && p <= target {
				return p
			}
		}
	}

	for i := target - 1; i > low; i-- {
		if isSpace(content[i]) && (st == nil || !st.inCode(i)) {
			return i
		}
	}

	// Targets inside a code block cut at the block start when that still
	// advances; a block larger than the chunk size is hard-cut.
	if st != nil {
		if s, ok := st.codeStart(target); ok && s > low {
			return s
		}
	}
	return target
}

// structure records byte offsets of structural elements in cleaned
// content. Only fenced and tab-indented code blocks are tracked: Clean
// collapses space runs, so space-indented code never reaches the splitter
// intact.
type structure struct {
	code  [][2]int
	items []int
}

var listItem = regexp.MustCompile(`^([-*+]|\d+\.)\s+`)

func detectStructure(content string) *structure {
	st := &structure{}
	fenceStart, tabStart := -1, -1

	pos := 0
	for pos < len(content) {
		next := len(content)
		end := next
		if i := strings.IndexByte(content[pos:], '\n'); i >= 0 {
			end = pos + i
			next = end + 1
		}
		line := content[pos:end]
		trimmed := strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(trimmed, "```"):
			if fenceStart < 0 {
				fenceStart = pos
			} else {
				st.code = append(st.code, [2]int{fenceStart, next})
				fenceStart = -1
			}
		case fenceStart >= 0:
			// Inside a fence nothing else is classified.
		case strings.HasPrefix(line, "\t"):
			if tabStart < 0 {
				tabStart = pos
			}
		default:
			if tabStart >= 0 {
				st.code = append(st.code, [2]int{tabStart, pos})
				tabStart = -1
			}
			if listItem.MatchString(trimmed) {
				st.items = append(st.items, pos)
			}
		}
		pos = next
	}
	if fenceStart >= 0 {
		st.code = append(st.code, [2]int{fenceStart, len(content)})
	}
	if tabStart >= 0 {
		st.code = append(st.code, [2]int{tabStart, len(content)})
	}
	return st
}

func (st *structure) inCode(pos int) bool {
	_, ok := st.codeStart(pos)
	return ok
}

// codeStart returns the start of the code block whose interior contains
// pos. A cut exactly at a block start keeps the block intact, so the
// start itself does not count as inside.
func (st *structure) codeStart(pos int) (int, bool) {
	for _, r := range st.code {
		if pos > r[0] && pos < r[1] {
			return r[0], true
		}
	}
	return 0, false
}

func isSentenceEnd(c byte) bool {
	return c == '.' || c == '!' || c == '?'
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\t'
}

// chunkTitle derives a chunk title from the document title plus the first
// header found in the chunk's leading lines, falling back to a part number.
func chunkTitle(title, content string, index int) string {
	if h := leadingHeader(content); h != "" {
		return title + " - " + h
	}
	return fmt.Sprintf("%s - Part %d", title, index+1)
}

// leadingHeader scans the first few non-empty lines for a header and
// returns it with markdown markers stripped, or "" when none is found.
func leadingHeader(content string) string {
	lines := strings.Split(content, "\n")
	seen := 0
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		seen++
		if seen > titleScanLines {
			return ""
		}
		if i+1 < len(lines) && underline.MatchString(strings.TrimSpace(lines[i+1])) {
			return line
		}
		for _, p := range headerPatterns {
			if p.MatchString(line) {
				return strings.TrimSpace(strings.TrimLeft(line, "# "))
			}
		}
	}
	return ""
}
