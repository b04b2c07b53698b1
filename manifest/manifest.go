// Package manifest handles moxie.toml project declarations: the types,
// roles and classes a project defines, and where its instances are stored.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/tliron/commonlog"
)

// FileName is the manifest file looked for in a project directory.
const FileName = "moxie.toml"

var log = commonlog.GetLogger("moxie.manifest")

// Manifest represents a parsed moxie.toml file.
type Manifest struct {
	Project Project     `toml:"project"`
	Store   Store       `toml:"store"`
	Types   []TypeDecl  `toml:"type"`
	Roles   []RoleDecl  `toml:"role"`
	Classes []ClassDecl `toml:"class"`

	// Dir is the directory containing the moxie.toml file (set by Load).
	Dir string `toml:"-"`
}

// Project holds project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Store configures instance persistence.
type Store struct {
	// Path is the SQLite database file, relative to the manifest directory.
	// Empty disables persistence.
	Path string `toml:"path"`
}

// TypeDecl declares a named type constraint.
type TypeDecl struct {
	Name   string `toml:"name"`
	Parent string `toml:"parent"`
	// CUE is an expression values must unify with, e.g. "int & >=0".
	CUE string `toml:"cue"`
	// Message is a failure message; {value} and {type} are substituted.
	Message string `toml:"message"`
}

// RoleDecl declares a role.
type RoleDecl struct {
	Name       string          `toml:"name"`
	Requires   []string        `toml:"requires"`
	Attributes []AttributeDecl `toml:"attribute"`
}

// ClassDecl declares a class.
type ClassDecl struct {
	Name       string          `toml:"name"`
	Extends    string          `toml:"extends"`
	Roles      []string        `toml:"roles"`
	Attributes []AttributeDecl `toml:"attribute"`
}

// AttributeDecl declares an attribute of a class or role.
type AttributeDecl struct {
	Name    string `toml:"name"`
	Is      string `toml:"is"`
	Isa     string `toml:"isa"`
	Default any    `toml:"default"`
	Builder string `toml:"builder"`

	Lazy      bool `toml:"lazy"`
	Required  bool `toml:"required"`
	WeakRef   bool `toml:"weak_ref"`
	Coerce    bool `toml:"coerce"`
	AutoDeref bool `toml:"auto_deref"`

	InitArg   string `toml:"init_arg"`
	Reader    string `toml:"reader"`
	Writer    string `toml:"writer"`
	Accessor  string `toml:"accessor"`
	Predicate string `toml:"predicate"`
	Clearer   string `toml:"clearer"`
}

// Load reads and parses moxie.toml from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	for _, key := range md.Undecoded() {
		log.Warningf("%s: unknown key %s", path, key)
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		absDir = dir
	}
	m.Dir = absDir

	if m.Project.Name == "" {
		m.Project.Name = filepath.Base(absDir)
	}

	log.Debugf("loaded %s: %d types, %d roles, %d classes",
		path, len(m.Types), len(m.Roles), len(m.Classes))
	return &m, nil
}

// FindAndLoad walks up from startDir looking for moxie.toml.
// Returns nil, nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// StorePath returns the absolute path of the instance database, or "" when
// no store is configured.
func (m *Manifest) StorePath() string {
	if m.Store.Path == "" {
		return ""
	}
	if filepath.IsAbs(m.Store.Path) {
		return m.Store.Path
	}
	return filepath.Join(m.Dir, m.Store.Path)
}
