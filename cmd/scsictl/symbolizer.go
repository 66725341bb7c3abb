//go:build cgo

package main

// symbolized tracebacks for crashes inside libiscsi
import _ "github.com/ianlancetaylor/cgosymbolizer"
