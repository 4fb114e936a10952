package magetasks

import (
	"errors"
	"strings"

	"github.com/magefile/mage/sh"
)

const golangciDisabled = "--disable=exhaustruct,varnamelen,ireturn,wrapcheck,nlreturn,gochecknoglobals,mnd,depguard,tagalign"

// LintAll runs every linter and reports all failures together.
func LintAll() error {
	PrintH2Header("Lint")
	err := errors.Join(LintFormat(), LintVet(), LintGolangci())
	if err == nil {
		PrintSuccess("All linters passed")
	}
	return err
}

// LintFormat fails if any file needs gofmt.
func LintFormat() error {
	files, err := sh.Output("gofmt", "-l", ".")
	if err != nil {
		return err
	}
	if files = strings.TrimSpace(files); files != "" {
		PrintError("gofmt needed:\n" + files)
		return errors.New("unformatted files")
	}
	return nil
}

// LintVet runs go vet.
func LintVet() error {
	return runStep("go vet", "go", "vet", "./...")
}

// LintGolangci runs golangci-lint when it is installed.
func LintGolangci() error {
	err := runStep("golangci-lint", "golangci-lint", "run", golangciDisabled, "--timeout=5m", "./...")
	return optional("golangci-lint", "go install github.com/golangci/golangci-lint/cmd/golangci-lint@latest", err)
}

// LintGolangciFix runs golangci-lint with auto-fixes.
func LintGolangciFix() error {
	err := runStep("golangci-lint --fix", "golangci-lint", "run", "--fix", golangciDisabled, "--timeout=5m", "./...")
	return optional("golangci-lint", "go install github.com/golangci/golangci-lint/cmd/golangci-lint@latest", err)
}
