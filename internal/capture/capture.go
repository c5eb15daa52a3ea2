// Package capture manages the files a tool invocation reads from and writes
// to: the destination of the tool's final message and the optional output
// schema. Caller-supplied paths are used as-is; everything else lives in a
// scratch directory owned by the Capture until Release.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bpicori/codex-launch/internal/privfs"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const (
	outputDirPrefix = "codex-exec-"
	outputFileName  = "output.md"
	schemaDirPrefix = "codex-output-schema-"
	schemaFileName  = "schema.json"

	inlineSchemaURL = "mem://" + schemaFileName
)

// ErrInvalidSchema is returned when inline schema content does not compile
// as a JSON Schema.
var ErrInvalidSchema = errors.New("invalid output schema")

// SchemaSource is either a path to an existing schema file or inline
// schema content. Path wins when both are set.
type SchemaSource struct {
	Path   string
	Inline string
}

// Scratch is one file location handed to the tool. When Owned is set the
// file lives in Dir, which this package created and will remove; otherwise
// Path came from the caller and is never touched.
type Scratch struct {
	Path  string
	Dir   string
	Owned bool
}

// Capture tracks the scratch resources of a single invocation. It is not
// safe for concurrent use.
type Capture struct {
	fs        privfs.FS
	resources []Scratch
}

// New returns a Capture that performs all file work through fs.
func New(fs privfs.FS) *Capture {
	return &Capture{fs: fs}
}

// Output resolves where the tool writes its final message. With an explicit
// path nothing is created; otherwise a fresh scratch directory is made.
func (c *Capture) Output(ctx context.Context, explicit string) (Scratch, error) {
	if explicit != "" {
		s := Scratch{Path: explicit}
		c.resources = append(c.resources, s)
		return s, nil
	}

	dir, err := c.fs.MkdirTemp(ctx, outputDirPrefix)
	if err != nil {
		return Scratch{}, fmt.Errorf("create output dir: %w", err)
	}
	s := Scratch{Path: filepath.Join(dir, outputFileName), Dir: dir, Owned: true}
	c.resources = append(c.resources, s)
	return s, nil
}

// Schema resolves the schema file passed to the tool. It returns false when
// src is nil. Inline content is compiled first and then written into a new
// scratch directory; the directory is tracked before the write so a failed
// write is still cleaned up by Release.
func (c *Capture) Schema(ctx context.Context, src *SchemaSource) (Scratch, bool, error) {
	if src == nil {
		return Scratch{}, false, nil
	}
	if src.Path != "" {
		s := Scratch{Path: src.Path}
		c.resources = append(c.resources, s)
		return s, true, nil
	}

	if err := CompileSchema(src.Inline); err != nil {
		return Scratch{}, false, err
	}

	dir, err := c.fs.MkdirTemp(ctx, schemaDirPrefix)
	if err != nil {
		return Scratch{}, false, fmt.Errorf("create schema dir: %w", err)
	}
	s := Scratch{Path: filepath.Join(dir, schemaFileName), Dir: dir, Owned: true}
	c.resources = append(c.resources, s)

	if err := c.fs.WriteFile(ctx, s.Path, []byte(src.Inline)); err != nil {
		return Scratch{}, false, fmt.Errorf("write schema file: %w", err)
	}
	return s, true, nil
}

// ReadResult returns the full text the tool left at s.
func (c *Capture) ReadResult(ctx context.Context, s Scratch) (string, error) {
	msg, err := c.fs.ReadFile(ctx, s.Path)
	if err != nil {
		return "", fmt.Errorf("read final message: %w", err)
	}
	return msg, nil
}

// Resources returns the tracked resources in creation order.
func (c *Capture) Resources() []Scratch {
	return slices.Clone(c.resources)
}

// Release removes every owned scratch directory, newest first. It keeps
// going after a failure and returns every error it met. Released resources
// are forgotten, so a second call only retries the failures.
func (c *Capture) Release(ctx context.Context) []error {
	var errs []error
	var kept []Scratch
	for i := len(c.resources) - 1; i >= 0; i-- {
		s := c.resources[i]
		if !s.Owned {
			continue
		}
		if err := c.fs.RemoveAll(ctx, s.Dir); err != nil {
			errs = append(errs, fmt.Errorf("remove scratch dir %q: %w", s.Dir, err))
			kept = append(kept, s)
		}
	}
	slices.Reverse(kept)
	c.resources = kept
	return errs
}

// refuseExternal keeps the compile check from reading files or the network;
// an inline schema may only reference itself.
func refuseExternal(url string) (io.ReadCloser, error) {
	return nil, fmt.Errorf("external reference %q is not allowed in an inline schema", url)
}

// CompileSchema checks that content is a JSON Schema the validator accepts.
func CompileSchema(content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("%w: empty schema", ErrInvalidSchema)
	}

	compiler := jsonschema.NewCompiler()
	compiler.LoadURL = refuseExternal
	if err := compiler.AddResource(inlineSchemaURL, strings.NewReader(content)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSchema, err)
	}
	if _, err := compiler.Compile(inlineSchemaURL); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSchema, err)
	}
	return nil
}
