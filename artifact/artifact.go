// package artifact turns contract build outputs into deployable code blobs
// and decides when a build tool needs to run again.
package artifact

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"os/exec"

	"github.com/ondeck-protocol/ondeck/ledger"
)

// Artifact is a built contract binary ready to deploy. Hash identifies the
// code to hosts and never changes after construction.
type Artifact struct {
	Code []byte
	Hash [ledger.HashSize]byte
}

// New wraps code bytes into an artifact, rejecting empty code.
func New(code []byte) (*Artifact, error) {
	if len(code) == 0 {
		return nil, fmt.Errorf("artifact has no code")
	}
	return &Artifact{Code: code, Hash: sha256.Sum256(code)}, nil
}

// FromFile loads a prebuilt artifact from path.
func FromFile(path string) (*Artifact, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading artifact file: %v", err)
	}
	return New(code)
}

// Builder produces the contract artifact for the deployment pipeline.
type Builder interface {
	Build(ctx context.Context) (*Artifact, error)
}

// BuilderFunc adapts a function to the Builder interface.
type BuilderFunc func(ctx context.Context) (*Artifact, error)

func (f BuilderFunc) Build(ctx context.Context) (*Artifact, error) { return f(ctx) }

// Static returns a builder that always serves the given code.
func Static(code []byte) Builder {
	return BuilderFunc(func(context.Context) (*Artifact, error) {
		return New(code)
	})
}

// File returns a builder that loads the artifact from path at build time.
func File(path string) Builder {
	return BuilderFunc(func(context.Context) (*Artifact, error) {
		return FromFile(path)
	})
}

// Command builds the contract by running an external tool and loading the
// file it produces.
type Command struct {
	// Tool is the executable to run with Args.
	Tool string
	Args []string
	// Output is the artifact file the tool produces.
	Output string
	// Source, when set, skips the tool run while Output is newer than it.
	Source string
}

func (c *Command) Build(ctx context.Context) (*Artifact, error) {
	if c.Source != "" && !ShouldRebuild(c.Source, c.Output) {
		return FromFile(c.Output)
	}
	cmd := exec.CommandContext(ctx, c.Tool, c.Args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("%s\nbuild failed : %s", out, err)
	}
	return FromFile(c.Output)
}

// ShouldRebuild returns true if sourcePath is more recent than any of the
// files in targetPaths or if it encounters any error
func ShouldRebuild(sourcePath string, targetPaths ...string) bool {
	sourceFile, err := os.Stat(sourcePath)
	if err != nil {
		return true
	}
	sourceModTime := sourceFile.ModTime()

	for _, targetPath := range targetPaths {
		targetFile, err := os.Stat(targetPath)
		if err != nil {
			return true
		}
		if sourceModTime.After(targetFile.ModTime()) {
			return true
		}
	}
	return false
}
