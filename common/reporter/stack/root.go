// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

// Package stack walks the goroutine stack. The reporter uses it to
// name the package emitting a log line or registering a metric.
package stack

import (
	"fmt"
	"runtime"
	"strings"
)

// maxDepth is the maximum number of frames returned by Callers.
const maxDepth = 64

// Call is a program counter from a goroutine stack.
type Call uintptr

// Trace is a list of calls, innermost first.
type Trace []Call

// Callers returns the stack of the caller, starting with the caller
// itself.
func Callers() Trace {
	var pcs [maxDepth]uintptr
	n := runtime.Callers(2, pcs[:])
	trace := make(Trace, n)
	for i := range n {
		trace[i] = Call(pcs[i])
	}
	return trace
}

// fn returns the function containing the call. The program counter
// points after the call instruction, hence the -1.
func (pc Call) fn() (*runtime.Func, uintptr) {
	return runtime.FuncForPC(uintptr(pc) - 1), uintptr(pc) - 1
}

// FunctionName returns the fully qualified name of the function
// containing the call, like bgpsdn/peer.(*Peer).export.
func (pc Call) FunctionName() string {
	fn, _ := pc.fn()
	if fn == nil {
		return "(nofunc)"
	}
	return fn.Name()
}

// SourceFile returns the path of the source file of the call,
// starting with the module name, like bgpsdn/peer/export.go. The line
// number is appended when requested.
func (pc Call) SourceFile(withLine bool) string {
	fn, pcFix := pc.fn()
	if fn == nil {
		return "(nosource)"
	}
	name := fn.Name()
	dot := strings.Index(name, ".")
	if dot == -1 {
		return "(nosource)"
	}
	module, _, _ := strings.Cut(name[:dot], "/")

	// Keep the package path without the module, plus the file name.
	file, line := fn.FileLine(pcFix)
	elements := strings.Split(file, "/")
	keep := strings.Count(name, "/") + 1
	if keep < len(elements) {
		elements = elements[len(elements)-keep:]
	}
	file = strings.Join(elements, "/")

	if withLine {
		return fmt.Sprintf("%s/%s:%d", module, file, line)
	}
	return fmt.Sprintf("%s/%s", module, file)
}

// ModuleName is the path of the main module (bgpsdn), derived from
// the import path of this package.
var ModuleName = func() string {
	pkg, _, _ := strings.Cut(Callers()[0].FunctionName(), ".")
	return strings.TrimSuffix(pkg, "/common/reporter/stack")
}()
