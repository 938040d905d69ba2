// Package fakeapi serves the reqres.in API from memory. It backs the
// tests of the client, runner and CLI and can be used to try suites
// offline.
package fakeapi
