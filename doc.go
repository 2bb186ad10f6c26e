// Package natives exposes native Go functions, classes, and
// iterators to an embedded ECMAScript runtime.
//
// The asynchronous counter is in package 'core', the binding layer is
// in 'ext', and the command-line tool is in `cmd/natives`.
package natives
