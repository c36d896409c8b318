package deps

import (
	"go/parser"
	"go/token"
	"regexp"
	"strings"

	"github.com/dshills/docgen/pkg/types"
)

var (
	// import ... from "x" / export ... from "x"
	jsFromPattern = regexp.MustCompile(`(?m)^\s*(?:import|export)\s[^'"]*?\sfrom\s+['"]([^'"]+)['"]`)
	// import "x"
	jsBarePattern = regexp.MustCompile(`(?m)^\s*import\s+['"]([^'"]+)['"]`)
	// require("x") and import("x")
	jsCallPattern = regexp.MustCompile(`(?:\brequire|\bimport)\s*\(\s*['"]([^'"]+)['"]\s*\)`)

	pyImportPattern = regexp.MustCompile(`(?m)^\s*import\s+([\w.]+(?:\s+as\s+\w+)?(?:\s*,\s*[\w.]+(?:\s+as\s+\w+)?)*)`)
	pyFromPattern   = regexp.MustCompile(`(?m)^\s*from\s+(\.*[\w.]*)\s+import\s`)

	javaImportPattern = regexp.MustCompile(`(?m)^\s*import\s+(?:static\s+)?([\w.]+(?:\.\*)?)\s*;`)
)

// Extract returns the imports of content, which was read from path and is
// written in lang. Unsupported languages yield nil.
func Extract(path string, content []byte, lang types.Language) []string {
	switch lang {
	case types.LanguageGo:
		return extractGo(path, content)
	case types.LanguageTypeScript, types.LanguageJavaScript:
		return extractJS(string(content))
	case types.LanguagePython:
		return extractPython(string(content))
	case types.LanguageJava:
		return extractJava(string(content))
	default:
		return nil
	}
}

// extractGo reads import paths from the Go AST
func extractGo(path string, content []byte) []string {
	fset := token.NewFileSet()
	// Syntax errors are non-fatal: parser.ParseFile may return a partial AST
	file, _ := parser.ParseFile(fset, path, content, parser.ImportsOnly)
	if file == nil {
		return nil
	}

	var set orderedSet
	for _, imp := range file.Imports {
		set.add(strings.Trim(imp.Path.Value, "\"`"))
	}
	return set.items
}

func extractJS(src string) []string {
	src = stripJSComments(src)

	type match struct {
		pos  int
		name string
	}
	var matches []match
	for _, re := range []*regexp.Regexp{jsFromPattern, jsBarePattern, jsCallPattern} {
		for _, m := range re.FindAllStringSubmatchIndex(src, -1) {
			matches = append(matches, match{pos: m[2], name: src[m[2]:m[3]]})
		}
	}

	// Restore source order across the three patterns
	sortByPos(matches, func(m match) int { return m.pos })

	var set orderedSet
	for _, m := range matches {
		set.add(m.name)
	}
	return set.items
}

func extractPython(src string) []string {
	type match struct {
		pos   int
		names []string
	}
	var matches []match

	for _, m := range pyImportPattern.FindAllStringSubmatchIndex(src, -1) {
		var names []string
		for _, part := range strings.Split(src[m[2]:m[3]], ",") {
			fields := strings.Fields(part)
			if len(fields) > 0 {
				names = append(names, fields[0])
			}
		}
		matches = append(matches, match{pos: m[2], names: names})
	}
	for _, m := range pyFromPattern.FindAllStringSubmatchIndex(src, -1) {
		matches = append(matches, match{pos: m[2], names: []string{src[m[2]:m[3]]}})
	}

	sortByPos(matches, func(m match) int { return m.pos })

	var set orderedSet
	for _, m := range matches {
		for _, n := range m.names {
			set.add(n)
		}
	}
	return set.items
}

func extractJava(src string) []string {
	var set orderedSet
	for _, m := range javaImportPattern.FindAllStringSubmatch(src, -1) {
		set.add(m[1])
	}
	return set.items
}

var (
	blockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)
	lineComment  = regexp.MustCompile(`(?m)^\s*//.*$`)
)

// stripJSComments removes block comments and whole-line comments.
// Trailing comments are left alone so URLs in strings survive.
func stripJSComments(src string) string {
	src = blockComment.ReplaceAllStringFunc(src, func(s string) string {
		// Keep line structure for ^ anchors
		return strings.Repeat("\n", strings.Count(s, "\n"))
	})
	return lineComment.ReplaceAllString(src, "")
}
