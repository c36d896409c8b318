// Package deps extracts the imported modules of a source file.
//
// Go files are parsed with go/parser in ImportsOnly mode. TypeScript,
// JavaScript, Python and Java use line-oriented patterns that recognize the
// common import forms:
//
//	import x from "mod"            (ts/js)
//	import "./side-effect"         (ts/js)
//	export * from "./barrel"       (ts/js)
//	const x = require("mod")       (js)
//	import("lazy")                 (ts/js)
//	import os.path, sys            (python)
//	from .models import User       (python)
//	import static java.util.Map.*; (java)
//
// Results keep first-seen order and contain no duplicates. Extraction never
// fails on malformed source; it returns whatever imports it recognized.
package deps
