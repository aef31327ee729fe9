// Copyright 2024, Jason S. McMullan <jason.mcmullan@gmail.com>

package asm

import (
	"bufio"
	"fmt"
	"io"
	"maps"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/tliron/commonlog"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// logger is looked up on use; the backend is selected at startup.
func logger() commonlog.Logger {
	return commonlog.GetLogger("atic.asm")
}

// EntryKind distinguishes the two kinds of function body entries.
type EntryKind int

//go:generate go tool stringer -linecomment -type=EntryKind
const (
	ENTRY_INSTRUCTION = EntryKind(0) // instruction
	ENTRY_LABEL       = EntryKind(1) // label
)

// Entry is a single line of a function body: either a label definition
// or an instruction with its unparsed operands.
type Entry struct {
	Kind   EntryKind
	LineNo int
	Label  string   // Label name, for ENTRY_LABEL.
	Name   string   // Mnemonic, for ENTRY_INSTRUCTION.
	Params []string // Textual operands, for ENTRY_INSTRUCTION.
}

// Label returns a label definition entry.
func Label(name string) Entry {
	return Entry{Kind: ENTRY_LABEL, Label: name}
}

// Instruction returns an instruction entry.
func Instruction(name string, params ...string) Entry {
	return Entry{Kind: ENTRY_INSTRUCTION, Name: name, Params: params}
}

func (entry Entry) String() string {
	if entry.Kind == ENTRY_LABEL {
		return "#" + entry.Label
	}
	return fmt.Sprintf("%v: %v", entry.Name, strings.Join(entry.Params, ", "))
}

// Function is a parsed function header and body.
type Function struct {
	Name      string  // Qualified function name, ie Main.main
	Registers int32   // Declared register count.
	Args      int32   // Declared argument count.
	LineNo    int     // Line of the `fn` header.
	Entries   []Entry // Ordered body entries.
	Address   int32   // First instruction address, assigned by the linker.
}

var (
	functionRegex    = regexp.MustCompile(`^fn\s+([\w.#]+)`)
	headerRegex      = regexp.MustCompile(`^fn(\s|$)`)
	instructionRegex = regexp.MustCompile(`^(\w+)\s*:\s*(.*)$`)
	labelRegex       = regexp.MustCompile(`^#([\w.]+)`)
	registersRegex   = regexp.MustCompile(`^registers\s+(.+)`)
	paramsRegex      = regexp.MustCompile(`^params\s+(.+)`)
	defineRegex      = regexp.MustCompile(`^define\s+(\w+)\s+(.*)$`)
	expressionRegex  = regexp.MustCompile(`^\$\((.*)\)$`)
)

// Predefined equates.
var sysDefine = map[string]string{
	"LINENO": "0",
}

// Parser reads function listings.
type Parser struct {
	Verbose bool              // If set, logs every line parsed.
	Define  map[string]string // Equates visible to operands, reset by Parse.

	predefine map[string]string
}

// Predefine defines an equate before parsing starts.
func (p *Parser) Predefine(name string, value string) {
	if p.predefine == nil {
		p.predefine = map[string]string{name: value}
	} else {
		p.predefine[name] = value
	}
}

type parseState int

const (
	stateTop parseState = iota
	stateBody
	stateParams
	stateEnd
)

// Parse parses an input stream into its functions.
func (p *Parser) Parse(input io.Reader) (list []*Function, err error) {
	scanner := bufio.NewScanner(input)

	var line string
	var lineno int

	defer func() {
		if err != nil {
			err = &ErrSyntax{LineNo: lineno, Line: line, Err: err}
		}
	}()

	p.Define = maps.Clone(sysDefine)
	for name, value := range p.predefine {
		p.Define[name] = value
	}

	state := stateTop
	var fn *Function

	for scanner.Scan() {
		line = strings.TrimSpace(scanner.Text())
		lineno += 1

		if p.Verbose {
			logger().Debugf("%v: %v", lineno, line)
		}

		if len(line) == 0 || strings.HasPrefix(line, ";") {
			continue
		}

		p.Define["LINENO"] = strconv.Itoa(lineno)

		if m := defineRegex.FindStringSubmatch(line); m != nil && (state == stateTop || state == stateBody) {
			err = p.define(m[1], m[2])
			if err != nil {
				return
			}
			continue
		}

		switch state {
		case stateTop:
			m := functionRegex.FindStringSubmatch(line)
			if m == nil {
				if headerRegex.MatchString(line) {
					err = ErrHeaderInvalid
					return
				}
				// Anything outside of a function is ignored.
				continue
			}
			fn = &Function{Name: m[1], LineNo: lineno}
			state = stateBody
		case stateBody:
			if m := instructionRegex.FindStringSubmatch(line); m != nil {
				var params []string
				params, err = p.operands(m[2])
				if err != nil {
					return
				}
				fn.Entries = append(fn.Entries, Entry{
					Kind:   ENTRY_INSTRUCTION,
					LineNo: lineno,
					Name:   m[1],
					Params: params,
				})
				continue
			}
			if m := labelRegex.FindStringSubmatch(line); m != nil {
				fn.Entries = append(fn.Entries, Entry{
					Kind:   ENTRY_LABEL,
					LineNo: lineno,
					Label:  strings.TrimSpace(m[1]),
				})
				continue
			}
			m := registersRegex.FindStringSubmatch(line)
			if m == nil {
				err = ErrRegistersExpected(line)
				return
			}
			fn.Registers, err = declaration(m[1], ErrRegistersNumber)
			if err != nil {
				return
			}
			state = stateParams
		case stateParams:
			m := paramsRegex.FindStringSubmatch(line)
			if m == nil {
				err = ErrParamsExpected
				return
			}
			fn.Args, err = declaration(m[1], ErrParamsNumber)
			if err != nil {
				return
			}
			state = stateEnd
		case stateEnd:
			if line != "end" {
				err = ErrEndExpected
				return
			}
			if p.Verbose {
				logger().Debugf("fn %v: %d entries, registers %d, params %d",
					fn.Name, len(fn.Entries), fn.Registers, fn.Args)
			}
			list = append(list, fn)
			fn = nil
			state = stateTop
		}
	}

	err = scanner.Err()
	if err != nil {
		return
	}

	line = ""
	switch state {
	case stateBody:
		err = ErrRegistersMissing
	case stateParams:
		err = ErrParamsMissing
	case stateEnd:
		err = ErrEndMissing
	}

	return
}

// declaration parses the numeric argument of a registers or params line.
func declaration(text string, bad error) (value int32, err error) {
	num, perr := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if perr != nil {
		err = bad
		return
	}

	switch {
	case math.IsNaN(num):
		value = 0
	case num >= math.MaxInt32:
		value = math.MaxInt32
	case num <= math.MinInt32:
		value = math.MinInt32
	default:
		value = int32(num)
	}

	return
}

// define records an equate.
func (p *Parser) define(name string, value string) (err error) {
	if name == "LINENO" {
		err = ErrDefineSyntax
		return
	}
	if _, ok := p.Define[name]; ok {
		err = ErrDefineDuplicate
		return
	}

	value = strings.TrimSpace(value)
	if len(value) == 0 {
		err = ErrDefineSyntax
		return
	}

	if m := expressionRegex.FindStringSubmatch(value); m != nil {
		value, err = p.evaluate(m[1])
		if err != nil {
			return
		}
	}

	p.Define[name] = value
	return
}

// operands splits the operand text of an instruction.
//
// Commas separate operands and whitespace outside of string literals is
// dropped. A double quote toggles a literal and is itself dropped. Inside a
// literal a backslash is kept along with the character it escapes.
// Commas nested in $(...) do not split. Operands with a literal part are
// never substituted.
func (p *Parser) operands(text string) (params []string, err error) {
	var sb strings.Builder
	var quoted []bool
	inside := false
	literal := false
	depth := 0

	runes := []rune(text)
	for n := 0; n < len(runes); n++ {
		c := runes[n]
		if !inside {
			switch {
			case c == ',' && depth == 0:
				params = append(params, sb.String())
				quoted = append(quoted, literal)
				sb.Reset()
				literal = false
				continue
			case c == ' ' || c == '\t' || c == '\r' || c == '\v' || c == '\f':
				continue
			case c == '(':
				depth++
			case c == ')' && depth > 0:
				depth--
			}
		}

		if c == '"' {
			inside = !inside
			literal = literal || depth == 0
			continue
		}

		sb.WriteRune(c)
		if inside && c == '\\' {
			n++
			if n >= len(runes) {
				err = ErrStringOpen
				return
			}
			sb.WriteRune(runes[n])
		}
	}

	if inside {
		err = ErrStringOpen
		return
	}

	if sb.Len() != 0 || literal {
		params = append(params, sb.String())
		quoted = append(quoted, literal)
	}

	for n, param := range params {
		if quoted[n] {
			continue
		}
		if value, ok := p.Define[param]; ok {
			params[n] = value
			continue
		}
		if m := expressionRegex.FindStringSubmatch(param); m != nil {
			params[n], err = p.evaluate(m[1])
			if err != nil {
				return
			}
		}
	}

	return
}

// evaluate does compile-time $(...) evaluations.
func (p *Parser) evaluate(expr string) (value string, err error) {
	thread := starlark.Thread{Name: "define"}
	opts := syntax.FileOptions{}
	pred := starlark.StringDict{}
	for key, str := range p.Define {
		num, perr := strconv.ParseFloat(str, 64)
		if perr != nil {
			// Non-numeric defines may be names or strings.
			continue
		}
		if num == math.Trunc(num) && math.Abs(num) < (1<<53) {
			pred[key] = starlark.MakeInt64(int64(num))
		} else {
			pred[key] = starlark.Float(num)
		}
	}

	prog := "rc=" + expr + "\n"
	dict, err := starlark.ExecFileOptions(&opts, &thread, "expr", prog, pred)
	if err != nil {
		err = ErrParseExpression(expr)
		return
	}

	switch rc := dict["rc"].(type) {
	case starlark.Int:
		i64, ok := rc.Int64()
		if !ok {
			err = ErrParseExpression(expr)
			return
		}
		value = strconv.FormatInt(i64, 10)
	case starlark.Float:
		value = strconv.FormatFloat(float64(rc), 'g', -1, 64)
	default:
		err = ErrParseExpression(expr)
	}

	return
}
