// Package macro implements the narrow text-in/text-out interface the core
// pipeline expects of its macro expander (spec.md §1's explicit
// collaborator boundary: "takes an input text file and emits an expanded
// text file"). Only what that interface needs is implemented: object-like
// and function-like `#define`, `##` token-paste, and `__COUNTER__` — not a
// full preprocessor language (conditional compilation, nested includes,
// recursive macro expansion).
//
// The three-pass shape (collect definitions, find call sites, substitute)
// is adapted from v0/kasm/preProcessing/macros.go's %macro/%endmacro
// scanner; the grammar itself is rewritten for spec.md's C-preprocessor-ish
// `#define` syntax rather than the teacher's NASM-style %macro blocks,
// since the two languages share no tokens to reuse literally.
package macro

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Definition is one parsed #define: either an object-like macro (Params is
// nil) or a function-like one invoked as Name(arg1, arg2, ...).
type Definition struct {
	Name   string
	Params []string
	Body   string
}

var defineLine = regexp.MustCompile(`(?m)^[ \t]*#define[ \t]+(\w+)(\(([^)]*)\))?[ \t]*(.*)$`)

// Expand runs the full pipeline over source: strip and collect #define
// lines, substitute every call site (applying ## paste after argument
// substitution), then resolve __COUNTER__ occurrences in the remaining
// text. Every definition applies to the whole remaining source, including
// lines above its own #define; substituted text is not re-expanded to a
// fixed point.
func Expand(source string) (string, error) {
	defs, body := collectDefinitions(source)

	expanded, err := substituteCalls(body, defs)
	if err != nil {
		return "", err
	}

	return expandCounter(expanded), nil
}

// collectDefinitions removes every #define line from source and returns
// the accumulated definition table alongside what remains.
func collectDefinitions(source string) (map[string]Definition, string) {
	defs := make(map[string]Definition)

	body := defineLine.ReplaceAllStringFunc(source, func(line string) string {
		m := defineLine.FindStringSubmatch(line)
		name := m[1]
		hasParams := m[2] != ""
		rawBody := strings.TrimSpace(m[4])

		def := Definition{Name: name, Body: rawBody}
		if hasParams {
			if strings.TrimSpace(m[3]) != "" {
				for _, p := range strings.Split(m[3], ",") {
					def.Params = append(def.Params, strings.TrimSpace(p))
				}
			} else {
				def.Params = []string{}
			}
		}
		defs[name] = def
		return ""
	})

	return defs, body
}

// substituteCalls replaces every call site of every known definition in
// source. Object-like macros match as whole identifiers; function-like
// macros additionally require a parenthesized argument list.
func substituteCalls(source string, defs map[string]Definition) (string, error) {
	for name, def := range defs {
		var err error
		if def.Params != nil {
			source, err = substituteFunctionLike(source, def)
		} else {
			source = substituteObjectLike(source, name, def.Body)
		}
		if err != nil {
			return "", err
		}
	}
	return source, nil
}

func substituteObjectLike(source, name, body string) string {
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(name) + `\b`)
	pasted := applyPaste(body)
	return re.ReplaceAllStringFunc(source, func(string) string { return pasted })
}

func substituteFunctionLike(source string, def Definition) (string, error) {
	callPattern := regexp.MustCompile(regexp.QuoteMeta(def.Name) + `\(([^)]*)\)`)

	var outerErr error
	result := callPattern.ReplaceAllStringFunc(source, func(call string) string {
		m := callPattern.FindStringSubmatch(call)
		var args []string
		if strings.TrimSpace(m[1]) != "" {
			for _, a := range strings.Split(m[1], ",") {
				args = append(args, strings.TrimSpace(a))
			}
		}
		if len(args) != len(def.Params) {
			outerErr = fmt.Errorf("macro: %s expects %d argument(s), got %d", def.Name, len(def.Params), len(args))
			return call
		}

		body := def.Body
		for i, param := range def.Params {
			arg := args[i]
			body = regexp.MustCompile(`\b`+regexp.QuoteMeta(param)+`\b`).ReplaceAllStringFunc(body, func(string) string { return arg })
		}
		return applyPaste(body)
	})
	if outerErr != nil {
		return "", outerErr
	}
	return result, nil
}

var pasteOperator = regexp.MustCompile(`\s*##\s*`)

// applyPaste collapses every "lhs ## rhs" occurrence in an already
// argument-substituted macro body into a single concatenated token.
func applyPaste(body string) string {
	return pasteOperator.ReplaceAllString(body, "")
}

var counterToken = regexp.MustCompile(`__COUNTER__`)

// expandCounter replaces every __COUNTER__ occurrence with a distinct,
// increasing integer in order of appearance, starting at 0.
func expandCounter(source string) string {
	n := 0
	return counterToken.ReplaceAllStringFunc(source, func(string) string {
		v := strconv.Itoa(n)
		n++
		return v
	})
}
