package builder

import "os"

// EnvBuilding is set for the driver subprocess. Its presence tells a nested
// invocation of the tool that an outer build is already running.
const EnvBuilding = "PTX_CRATE_BUILDING"

// Nesting tells Build whether it runs inside another build.
type Nesting int

const (
	TopLevel Nesting = iota
	Nested
)

func (n Nesting) String() string {
	if n == Nested {
		return "nested"
	}
	return "top-level"
}

// NestingFromEnv reads the nested marker from the process environment. Only
// the value "1" marks a nested invocation.
func NestingFromEnv() Nesting {
	if os.Getenv(EnvBuilding) == "1" {
		return Nested
	}
	return TopLevel
}

// IsBuildNeeded reports whether a build must run at the given nesting level.
func IsBuildNeeded(n Nesting) bool {
	return n != Nested
}
