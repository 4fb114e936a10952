// Package magetasks holds the build, lint and test tasks behind magefile.go.
package magetasks
