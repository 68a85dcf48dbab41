// Package pandoc is the converter gateway: it shells out to an external
// pandoc process to turn raw markdown into a document tree and a tree back
// into final markup. The markup grammar itself is the converter's business.
package pandoc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"github.com/starford/wolog/internal/ast"
)

// Converter parses source files into trees and renders trees to markup.
type Converter interface {
	// Parse converts the markdown file at path into a document tree.
	Parse(ctx context.Context, path string) (*ast.Doc, error)
	// Render converts a document tree into final HTML markup.
	Render(ctx context.Context, doc *ast.Doc) (string, error)
}

// CLI implements Converter by invoking the pandoc binary.
type CLI struct {
	binary string
}

// NewCLI creates a converter around the given pandoc binary ("pandoc" when
// empty).
func NewCLI(binary string) *CLI {
	if binary == "" {
		binary = "pandoc"
	}
	return &CLI{binary: binary}
}

// Parse runs `pandoc -fmarkdown -tjson <path>` and decodes the JSON tree.
// Any non-zero exit or undecodable output is a conversion failure.
func (c *CLI) Parse(ctx context.Context, path string) (*ast.Doc, error) {
	cmd := exec.CommandContext(ctx, c.binary, "-fmarkdown", "-tjson", path)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("pandoc: parse %s: %w (%s)", path, err, stderr.String())
	}
	var doc ast.Doc
	if err := json.Unmarshal(stdout.Bytes(), &doc); err != nil {
		return nil, fmt.Errorf("pandoc: decode tree for %s: %w", path, err)
	}
	return &doc, nil
}

// Render feeds the serialized tree to `pandoc -fjson -thtml` on stdin and
// returns the produced markup.
func (c *CLI) Render(ctx context.Context, doc *ast.Doc) (string, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("pandoc: encode tree: %w", err)
	}
	cmd := exec.CommandContext(ctx, c.binary, "-fjson", "-thtml")
	cmd.Stdin = bytes.NewReader(raw)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("pandoc: render: %w (%s)", err, stderr.String())
	}
	return stdout.String(), nil
}
