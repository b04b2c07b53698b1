package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const petsManifest = `
[project]
name = "pets"

[store]
path = "pets.db"

[[type]]
name = "Age"
parent = "Int"
cue = "int & >=0"
message = "{value} is not an age"

[[class]]
name = "Pet"

  [[class.attribute]]
  name = "name"
  is = "rw"
  isa = "Str"
  required = true

  [[class.attribute]]
  name = "age"
  is = "rw"
  isa = "Age"
  default = 0

  [[class.attribute]]
  name = "owner"
  is = "rw"
  isa = "Maybe[Pet]"
`

func project(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "moxie.toml"), []byte(petsManifest), 0644); err != nil {
		t.Fatal(err)
	}
	return dir
}

// moxie runs the CLI in dir and returns its exit code and output.
func moxie(t *testing.T, dir string, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(append([]string{"-C", dir}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

// newID constructs a Pet and returns its ID from the first output line.
func newID(t *testing.T, dir string, args ...string) string {
	t.Helper()
	code, out, errOut := moxie(t, dir, append([]string{"new", "Pet"}, args...)...)
	if code != 0 {
		t.Fatalf("new failed (%d): %s", code, errOut)
	}
	id, _, _ := strings.Cut(out, " ")
	return id
}

// ---------------------------------------------------------------------------
// Declarations
// ---------------------------------------------------------------------------

func TestTypesAndClasses(t *testing.T) {
	dir := project(t)

	code, out, _ := moxie(t, dir, "types")
	if code != 0 {
		t.Fatalf("types exit = %d", code)
	}
	if !strings.Contains(out, "Age < Int\n") {
		t.Errorf("types output missing Age:\n%s", out)
	}

	code, out, _ = moxie(t, dir, "classes")
	if code != 0 {
		t.Fatalf("classes exit = %d", code)
	}
	for _, want := range []string{"Pet\n", "name (rw) isa Str [required]", "age (rw) isa Age"} {
		if !strings.Contains(out, want) {
			t.Errorf("classes output missing %q:\n%s", want, out)
		}
	}
}

func TestCheck(t *testing.T) {
	dir := project(t)

	if code, out, _ := moxie(t, dir, "check", "Age", "3"); code != 0 || !strings.Contains(out, "ok") {
		t.Errorf("check Age 3 = %d %q", code, out)
	}
	code, _, errOut := moxie(t, dir, "check", "Age", "-1")
	if code != 1 {
		t.Errorf("check Age -1 exit = %d, want 1", code)
	}
	if !strings.Contains(errOut, "-1 is not an age") {
		t.Errorf("stderr = %q, want the type's message", errOut)
	}
	if code, _, _ := moxie(t, dir, "check", "ArrayRef[Int]", "[1,2]"); code != 0 {
		t.Errorf("check ArrayRef[Int] exit = %d", code)
	}
}

// ---------------------------------------------------------------------------
// Instances
// ---------------------------------------------------------------------------

func TestNewGetSet(t *testing.T) {
	dir := project(t)
	id := newID(t, dir, "name=Rex")
	if !strings.HasPrefix(id, "pet_") {
		t.Fatalf("id = %q, want pet_ prefix", id)
	}

	if code, out, _ := moxie(t, dir, "get", id, "name"); code != 0 || out != "\"Rex\"\n" {
		t.Errorf("get name = %d %q", code, out)
	}
	if code, out, _ := moxie(t, dir, "set", id, "age", "4"); code != 0 || out != "4\n" {
		t.Errorf("set age = %d %q", code, out)
	}
	if _, out, _ := moxie(t, dir, "get", id, "age"); out != "4\n" {
		t.Errorf("age after set = %q, want 4", out)
	}

	code, _, errOut := moxie(t, dir, "set", id, "age", "-2")
	if code != 1 || !strings.Contains(errOut, "does not pass the type constraint") {
		t.Errorf("invalid set = %d %q", code, errOut)
	}
	if _, out, _ := moxie(t, dir, "get", id, "age"); out != "4\n" {
		t.Errorf("age after rejected set = %q, want 4", out)
	}
}

func TestNewRequired(t *testing.T) {
	dir := project(t)
	code, _, errOut := moxie(t, dir, "new", "Pet")
	if code != 1 || !strings.Contains(errOut, "Attribute (name) is required") {
		t.Errorf("new without name = %d %q", code, errOut)
	}
}

func TestInstanceReferences(t *testing.T) {
	dir := project(t)
	owner := newID(t, dir, "name=Ann")
	pet := newID(t, dir, "name=Rex", "owner=@"+owner)

	code, out, _ := moxie(t, dir, "show", pet)
	if code != 0 {
		t.Fatalf("show exit = %d", code)
	}
	if !strings.Contains(out, owner) {
		t.Errorf("show should reference the owner %s:\n%s", owner, out)
	}

	if code, _, _ := moxie(t, dir, "new", "Pet", "name=Bo", "owner=@pet_missing"); code != 1 {
		t.Errorf("dangling @id exit = %d, want 1", code)
	}
}

func TestListAndRemove(t *testing.T) {
	dir := project(t)
	a := newID(t, dir, "name=A")
	b := newID(t, dir, "name=B")

	_, out, _ := moxie(t, dir, "ls")
	if !strings.Contains(out, a) || !strings.Contains(out, b) {
		t.Errorf("ls = %q, want both ids", out)
	}
	if code, _, _ := moxie(t, dir, "rm", a); code != 0 {
		t.Fatalf("rm exit = %d", code)
	}
	_, out, _ = moxie(t, dir, "ls", "Pet")
	if strings.Contains(out, a) || !strings.Contains(out, b) {
		t.Errorf("ls after rm = %q", out)
	}
	if code, _, _ := moxie(t, dir, "show", a); code != 1 {
		t.Errorf("show removed exit = %d, want 1", code)
	}
}

// ---------------------------------------------------------------------------
// Usage
// ---------------------------------------------------------------------------

func TestUsage(t *testing.T) {
	dir := project(t)
	if code, _, _ := moxie(t, dir); code != 2 {
		t.Errorf("no command exit = %d, want 2", code)
	}
	if code, _, errOut := moxie(t, dir, "frobnicate"); code != 2 || !strings.Contains(errOut, "unknown command") {
		t.Errorf("unknown command = %d %q", code, errOut)
	}
	if code, _, _ := moxie(t, dir, "get", "only-one"); code != 2 {
		t.Errorf("get with one arg exit = %d, want 2", code)
	}
}

func TestNoManifest(t *testing.T) {
	dir := t.TempDir()
	if code, out, _ := moxie(t, dir, "types"); code != 0 || !strings.Contains(out, "Int") {
		t.Errorf("types without manifest = %d %q", code, out)
	}
	code, _, errOut := moxie(t, dir, "ls")
	if code != 1 || !strings.Contains(errOut, "no [store]") {
		t.Errorf("ls without store = %d %q", code, errOut)
	}
}
