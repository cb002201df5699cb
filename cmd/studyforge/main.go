// Package main is the single-binary entrypoint for studyforge.
package main

import (
	_ "time/tzdata" // challenge calendars may name any IANA zone

	"github.com/studyforge/studyforge/internal/cli"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
