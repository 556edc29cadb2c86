package iterator

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/wbrown/janus-graphd/graphd"
	"github.com/wbrown/janus-graphd/graphd/annotations"
	"github.com/wbrown/janus-graphd/graphd/codec"
	"github.com/wbrown/janus-graphd/graphd/storage"
)

// FreezeFlags select the cursor sections to write
type FreezeFlags uint8

const (
	FlagSet FreezeFlags = 1 << iota
	FlagPosition
	FlagState

	FlagAll = FlagSet | FlagPosition | FlagState
)

// Freeze serializes the iterator as SET[/POSITION[/STATE]]
func (it *Iterator) Freeze(flags FreezeFlags) (string, error) {
	if it.finished {
		return "", ErrFinished
	}
	w := NewWriter(it.env)
	it.freeze(w, flags)
	if w.err != nil {
		return "", w.err
	}
	text := w.String()
	if flags&FlagSet != 0 && it.env.Originals != nil && it.IsOriginal() {
		it.env.Originals.Remember(it.setText(text), it)
	}
	if it.env.Tracing() && flags != FlagSet {
		it.env.Emit(annotations.CursorFrozen, map[string]interface{}{
			"kind": it.impl.Kind(), "length": len(text),
		})
	}
	return text, nil
}

// setText is the SET section of a freshly frozen cursor
func (it *Iterator) setText(text string) string {
	set, _, _, err := SplitCursor(text)
	if err != nil {
		return text
	}
	return set
}

func (it *Iterator) freeze(w *Writer, flags FreezeFlags) {
	if it.masquerade != "" {
		w.WriteString(it.masquerade)
	} else {
		it.impl.FreezeSet(it, w)
	}
	if flags&(FlagPosition|FlagState) == 0 {
		return
	}
	w.WriteByte('/')
	switch {
	case flags&FlagPosition == 0:
		w.WriteByte('-')
	case it.masquerade != "":
		w.WriteByte('=')
		w.Position(it)
	default:
		it.impl.FreezePosition(it, w)
	}
	if flags&FlagState != 0 {
		w.WriteByte('/')
		if it.masquerade != "" {
			w.WriteByte('-')
		} else {
			it.impl.FreezeState(it, w)
		}
	}
}

// Writer accumulates cursor text. The first failure sticks and is
// reported by Freeze.
type Writer struct {
	env *Env
	sb  strings.Builder
	err error
}

// NewWriter returns an empty writer resolving GUIDs through env's store
func NewWriter(env *Env) *Writer {
	return &Writer{env: env}
}

func (w *Writer) WriteString(s string)   { w.sb.WriteString(s) }
func (w *Writer) WriteByte(c byte) error { return w.sb.WriteByte(c) }
func (w *Writer) String() string         { return w.sb.String() }
func (w *Writer) Err() error             { return w.err }

// Fail records err unless an earlier failure is already recorded
func (w *Writer) Fail(err error) {
	if w.err == nil {
		w.err = err
	}
}

// ID writes a decimal id, or "-" for IDNone
func (w *Writer) ID(id graphd.ID) {
	if id == graphd.IDNone {
		w.sb.WriteByte('-')
		return
	}
	w.sb.WriteString(strconv.FormatUint(uint64(id), 10))
}

// Int writes a signed decimal
func (w *Writer) Int(n int64) {
	w.sb.WriteString(strconv.FormatInt(n, 10))
}

// Range writes [~]LOW[-HIGH]; HIGH is omitted when unbounded
func (w *Writer) Range(low, high graphd.ID, forward bool) {
	if !forward {
		w.sb.WriteByte('~')
	}
	w.ID(low)
	if high < graphd.IDMax {
		w.sb.WriteByte('-')
		w.ID(high)
	}
}

// Linkage writes l's one-letter code
func (w *Writer) Linkage(l graphd.Linkage) {
	w.sb.WriteByte(l.Code())
}

// GUID writes the GUID of id, or #ID when the store has none for it
func (w *Writer) GUID(id graphd.ID) {
	guid, err := w.env.Store.GUID(id)
	if err != nil {
		w.sb.WriteByte('#')
		w.ID(id)
		return
	}
	w.sb.WriteString(guid.String())
}

// Blob writes opaque bytes in L85 framing
func (w *Writer) Blob(data []byte) {
	codec.AppendBlob(&w.sb, data)
}

// Sub writes a nested iterator cursor in parentheses
func (w *Writer) Sub(sub *Iterator, flags FreezeFlags) {
	w.sb.WriteByte('(')
	if sub == nil {
		w.sb.WriteString("null:")
	} else {
		sub.freeze(w, flags)
	}
	w.sb.WriteByte(')')
}

// Position writes the handle's generic position: "$" at EOF, "-" before
// the first result, LAST@ORDINAL otherwise.
func (w *Writer) Position(it *Iterator) {
	last, ordinal := it.last, it.returned
	if r := it.resume; r != nil {
		last, ordinal = r.last, r.ordinal
	}
	switch {
	case it.eof:
		w.sb.WriteByte('$')
	case last == graphd.IDNone && ordinal == 0:
		w.sb.WriteByte('-')
	default:
		w.ID(last)
		w.sb.WriteByte('@')
		w.Int(ordinal)
	}
}

// Scanner reads cursor text. Errors carry the offset into the full
// cursor so nested parses report useful columns.
type Scanner struct {
	ctx  context.Context
	env  *Env
	full string
	base int
	text string
	pos  int
}

// NewScanner returns a scanner over text
func NewScanner(ctx context.Context, env *Env, text string) *Scanner {
	return &Scanner{ctx: ctx, env: env, full: text, text: text}
}

// Section returns a scanner over part, which starts at offset within the
// scanner's full text.
func (s *Scanner) Section(part string, offset int) *Scanner {
	return &Scanner{ctx: s.ctx, env: s.env, full: s.full, base: offset, text: part}
}

func (s *Scanner) Env() *Env                { return s.env }
func (s *Scanner) Context() context.Context { return s.ctx }
func (s *Scanner) Done() bool               { return s.pos >= len(s.text) }
func (s *Scanner) Rest() string             { return s.text[s.pos:] }
func (s *Scanner) Offset() int              { return s.base + s.pos }

// Peek returns the next byte, or 0 at the end
func (s *Scanner) Peek() byte {
	if s.Done() {
		return 0
	}
	return s.text[s.pos]
}

// Lexical returns an ErrLexical *CursorError at the current offset
func (s *Scanner) Lexical(format string, args ...interface{}) error {
	return s.fail(ErrLexical, format, args...)
}

// Semantic returns an ErrSemantics *CursorError at the current offset
func (s *Scanner) Semantic(format string, args ...interface{}) error {
	return s.fail(ErrSemantics, format, args...)
}

func (s *Scanner) fail(kind error, format string, args ...interface{}) error {
	err := &CursorError{Kind: kind, Offset: s.Offset(), Text: s.full, Msg: fmt.Sprintf(format, args...)}
	s.env.Emit(annotations.ErrorCursorText, map[string]interface{}{"error": err.Error()})
	return err
}

// Accept consumes lit if the text continues with it
func (s *Scanner) Accept(lit string) bool {
	if strings.HasPrefix(s.text[s.pos:], lit) {
		s.pos += len(lit)
		return true
	}
	return false
}

// Expect consumes lit or fails lexically
func (s *Scanner) Expect(lit string) error {
	if !s.Accept(lit) {
		return s.Lexical("expected %q", lit)
	}
	return nil
}

// End fails unless everything was consumed
func (s *Scanner) End() error {
	if !s.Done() {
		return s.Lexical("unexpected trailing %q", s.Rest())
	}
	return nil
}

func (s *Scanner) digits() string {
	start := s.pos
	for s.pos < len(s.text) && s.text[s.pos] >= '0' && s.text[s.pos] <= '9' {
		s.pos++
	}
	return s.text[start:s.pos]
}

// ID reads a decimal id or "-" for none
func (s *Scanner) ID() (graphd.ID, error) {
	if s.Accept("-") {
		return graphd.IDNone, nil
	}
	d := s.digits()
	if d == "" {
		return graphd.IDNone, s.Lexical("expected an id")
	}
	v, err := strconv.ParseUint(d, 10, 64)
	if err != nil || graphd.ID(v) > graphd.IDMax {
		return graphd.IDNone, s.Semantic("id %s out of range", d)
	}
	return graphd.ID(v), nil
}

// Int reads a signed decimal
func (s *Scanner) Int() (int64, error) {
	neg := s.Accept("-")
	d := s.digits()
	if d == "" {
		return 0, s.Lexical("expected a number")
	}
	v, err := strconv.ParseInt(d, 10, 64)
	if err != nil {
		return 0, s.Semantic("number %s: %v", d, err)
	}
	if neg {
		v = -v
	}
	return v, nil
}

// Range reads [~]LOW[-HIGH]
func (s *Scanner) Range() (low, high graphd.ID, forward bool, err error) {
	forward = !s.Accept("~")
	d := s.digits()
	if d == "" {
		return 0, 0, false, s.Lexical("expected a range")
	}
	v, perr := strconv.ParseUint(d, 10, 64)
	if perr != nil || graphd.ID(v) > graphd.IDMax {
		return 0, 0, false, s.Semantic("range low %s out of range", d)
	}
	low, high = graphd.ID(v), graphd.IDMax
	if s.Accept("-") {
		if high, err = s.ID(); err != nil {
			return 0, 0, false, err
		}
		if high == graphd.IDNone || high < low {
			return 0, 0, false, s.Semantic("empty range %v-%v", low, high)
		}
	}
	return low, high, forward, nil
}

// Linkage reads a one-letter linkage code
func (s *Scanner) Linkage() (graphd.Linkage, error) {
	if s.Done() {
		return 0, s.Lexical("expected a linkage")
	}
	l, ok := graphd.LinkageFromCode(s.text[s.pos])
	if !ok {
		return 0, s.Lexical("unknown linkage %q", s.text[s.pos])
	}
	s.pos++
	return l, nil
}

// GUID reads a 32-hex GUID or #ID and resolves it to a local id
func (s *Scanner) GUID() (graphd.ID, error) {
	if s.Accept("#") {
		return s.ID()
	}
	if len(s.text)-s.pos < 32 {
		return graphd.IDNone, s.Lexical("expected a guid")
	}
	guid, err := graphd.ParseGUID(s.text[s.pos : s.pos+32])
	if err != nil {
		return graphd.IDNone, s.Lexical("%v", err)
	}
	id, err := s.env.Store.Resolve(guid)
	if err != nil {
		if storage.IsNotFound(err) {
			return graphd.IDNone, s.Semantic("%v", err)
		}
		return graphd.IDNone, err
	}
	s.pos += 32
	return id, nil
}

// Paren reads a balanced "(...)" group and returns its contents and
// their offset. Blobs inside are skipped whole.
func (s *Scanner) Paren() (string, int, error) {
	if !s.Accept("(") {
		return "", 0, s.Lexical("expected '('")
	}
	start := s.pos
	end, err := balance(s.text, start)
	if err != nil {
		s.pos = end
		return "", 0, s.Lexical("%v", err)
	}
	s.pos = end + 1
	return s.text[start:end], s.base + start, nil
}

// balance returns the index of the ')' closing a group opened just
// before start.
func balance(text string, start int) (int, error) {
	depth := 0
	for i := start; i < len(text); i++ {
		switch text[i] {
		case codec.BlobQuote:
			n, err := codec.BlobSpan(text[i:])
			if err != nil {
				return i, err
			}
			i += n - 1
		case '(':
			depth++
		case ')':
			if depth == 0 {
				return i, nil
			}
			depth--
		}
	}
	return len(text), fmt.Errorf("unbalanced parentheses")
}

// Sub reads a parenthesized nested cursor and thaws it
func (s *Scanner) Sub() (*Iterator, error) {
	text, offset, err := s.Paren()
	if err != nil {
		return nil, err
	}
	it, err := thaw(s.Section(text, offset))
	if err != nil {
		return nil, err
	}
	return it, nil
}

// Blob reads an L85-framed opaque blob
func (s *Scanner) Blob() ([]byte, error) {
	data, n, err := codec.ReadBlob(s.Rest())
	if err != nil {
		return nil, s.Lexical("%v", err)
	}
	s.pos += n
	return data, nil
}

// Bracket reads an optional "[tag:VALUE]" and returns VALUE
func (s *Scanner) Bracket(tag string) (string, bool, error) {
	if !s.Accept("[" + tag + ":") {
		return "", false, nil
	}
	end := strings.IndexByte(s.text[s.pos:], ']')
	if end < 0 {
		return "", false, s.Lexical("unterminated [%s:", tag)
	}
	v := s.text[s.pos : s.pos+end]
	s.pos += end + 1
	return v, true, nil
}

// Position reads a generic position written by Writer.Position
func (s *Scanner) Position() (last graphd.ID, ordinal int64, eof bool, err error) {
	switch {
	case s.Accept("$"):
		return graphd.IDNone, 0, true, nil
	case s.Accept("-"):
		return graphd.IDNone, 0, false, nil
	}
	if last, err = s.ID(); err != nil {
		return
	}
	if err = s.Expect("@"); err != nil {
		return
	}
	if ordinal, err = s.Int(); err != nil {
		return
	}
	if ordinal < 1 {
		err = s.Semantic("position ordinal %d", ordinal)
	}
	return
}

// SplitCursor splits text at the top-level '/' separators into its SET,
// POSITION and STATE sections. Missing sections are empty.
func SplitCursor(text string) (set, position, state string, err error) {
	var cuts []int
	depth := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case codec.BlobQuote:
			n, berr := codec.BlobSpan(text[i:])
			if berr != nil {
				return "", "", "", &CursorError{Kind: ErrLexical, Offset: i, Text: text, Msg: berr.Error()}
			}
			i += n - 1
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return "", "", "", &CursorError{Kind: ErrLexical, Offset: i, Text: text, Msg: "unbalanced ')'"}
			}
		case '/':
			if depth == 0 {
				cuts = append(cuts, i)
			}
		}
	}
	if depth != 0 {
		return "", "", "", &CursorError{Kind: ErrLexical, Offset: len(text), Text: text, Msg: "unbalanced '('"}
	}
	switch len(cuts) {
	case 0:
		return text, "", "", nil
	case 1:
		return text[:cuts[0]], text[cuts[0]+1:], "", nil
	case 2:
		return text[:cuts[0]], text[cuts[0]+1 : cuts[1]], text[cuts[1]+1:], nil
	}
	return "", "", "", &CursorError{Kind: ErrLexical, Offset: cuts[2], Text: text, Msg: "too many sections"}
}
