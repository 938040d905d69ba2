package suite

import (
	_ "embed"
	"fmt"
)

//go:embed reqres.yaml
var reqresYAML []byte

// ReqresYAML returns the source of the built-in reqres.in suite, as
// written by `apicheck init`.
func ReqresYAML() []byte {
	out := make([]byte, len(reqresYAML))
	copy(out, reqresYAML)
	return out
}

// Reqres returns a fresh copy of the built-in reqres.in suite.
func Reqres() *Suite {
	s, err := Parse(reqresYAML, "")
	if err != nil {
		panic(fmt.Sprintf("built-in reqres suite is invalid: %v", err))
	}
	s.Name = "reqres"
	return s
}
