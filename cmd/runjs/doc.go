// Package main is runjs, a command line runner for scratchpad scripts.
//
// Each argument is a doublestar glob; matching files run one at a time and
// their transcripts are printed in file order. Without -server the scripts
// run in-process with the same limits the server would apply.
//
// Usage:
//
//	runjs 'examples/**/*.js'
//	runjs -timeout 2s -server http://localhost:8000 demo.js
//
// The exit status is 0 when every script completed, 1 when any script
// failed or timed out, and 2 on usage errors.
package main
