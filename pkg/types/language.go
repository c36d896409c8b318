package types

import (
	"path/filepath"
	"strings"
)

// Language identifies a source language supported by prompt construction
type Language string

const (
	LanguageTypeScript Language = "typescript"
	LanguageJavaScript Language = "javascript"
	LanguagePython     Language = "python"
	LanguageJava       Language = "java"
	LanguageGo         Language = "go"
)

var extensionLanguages = map[string]Language{
	".ts":   LanguageTypeScript,
	".tsx":  LanguageTypeScript,
	".js":   LanguageJavaScript,
	".jsx":  LanguageJavaScript,
	".py":   LanguagePython,
	".java": LanguageJava,
	".go":   LanguageGo,
}

// DetectLanguage maps a file path to its language by extension.
// ok is false for unsupported extensions.
func DetectLanguage(path string) (Language, bool) {
	lang, ok := extensionLanguages[strings.ToLower(filepath.Ext(path))]
	return lang, ok
}

// ParseLanguage validates a language name
func ParseLanguage(s string) (Language, bool) {
	switch l := Language(strings.ToLower(strings.TrimSpace(s))); l {
	case LanguageTypeScript, LanguageJavaScript, LanguagePython, LanguageJava, LanguageGo:
		return l, true
	default:
		return "", false
	}
}
