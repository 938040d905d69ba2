// Package output renders runner results.
//
// console prints as each suite finishes. json, junit, tap and xlsx collect
// suites and write one document when Flush is called, so a run over
// several suites still yields a single report.
package output
