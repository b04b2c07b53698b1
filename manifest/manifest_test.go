package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/moxie/accessor"
	"github.com/chazu/moxie/meta"
	"github.com/chazu/moxie/value"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

const zooManifest = `
[project]
name = "zoo"
version = "0.1.0"

[store]
path = "data/zoo.db"

[[type]]
name = "Legs"
parent = "Int"
cue = "int & >=0 & <=8"
message = "{value} is not a leg count"

[[type]]
name = "FewLegs"
parent = "Legs"
cue = "int & <=4"

[[role]]
name = "Named"
requires = ["speak"]

  [[role.attribute]]
  name = "name"
  is = "ro"
  isa = "Str"
  required = true

[[class]]
name = "Keeper"

  [[class.attribute]]
  name = "animals"
  is = "rw"
  isa = "ArrayRef[Animal]"
  default = []
  auto_deref = true

[[class]]
name = "Dog"
extends = "Animal"

  [[class.attribute]]
  name = "tricks"
  is = "rw"
  isa = "HashRef"
  default = { sit = true }
  predicate = "has_tricks"

[[class]]
name = "Animal"
roles = ["Named"]

  [[class.attribute]]
  name = "legs"
  is = "rw"
  isa = "Legs"
  default = 4

  [[class.attribute]]
  name = "speak"
  is = "ro"
  isa = "Str"
  default = "..."
`

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, zooManifest)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Project.Name != "zoo" {
		t.Errorf("project name = %q, want zoo", m.Project.Name)
	}
	if m.Project.Version != "0.1.0" {
		t.Errorf("project version = %q, want 0.1.0", m.Project.Version)
	}
	if len(m.Types) != 2 {
		t.Errorf("types count = %d, want 2", len(m.Types))
	}
	if m.Types[0].CUE != "int & >=0 & <=8" {
		t.Errorf("type cue = %q", m.Types[0].CUE)
	}
	if len(m.Roles) != 1 || m.Roles[0].Requires[0] != "speak" {
		t.Errorf("roles = %+v", m.Roles)
	}
	if len(m.Classes) != 3 {
		t.Fatalf("classes count = %d, want 3", len(m.Classes))
	}
	dog := m.Classes[1]
	if dog.Name != "Dog" || dog.Extends != "Animal" {
		t.Errorf("class[1] = %s extends %s, want Dog extends Animal", dog.Name, dog.Extends)
	}
	if dog.Attributes[0].Predicate != "has_tricks" {
		t.Errorf("predicate = %q, want has_tricks", dog.Attributes[0].Predicate)
	}
	if !m.Classes[0].Attributes[0].AutoDeref {
		t.Error("auto_deref = false, want true")
	}
	if got := m.StorePath(); got != filepath.Join(m.Dir, "data", "zoo.db") {
		t.Errorf("StorePath() = %q", got)
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "")

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if m.Project.Name != filepath.Base(dir) {
		t.Errorf("default project name = %q, want %q", m.Project.Name, filepath.Base(dir))
	}
	if m.StorePath() != "" {
		t.Errorf("StorePath() = %q, want empty", m.StorePath())
	}
}

func TestLoadManifestErrors(t *testing.T) {
	if _, err := Load(t.TempDir()); err == nil || !strings.Contains(err.Error(), "cannot read") {
		t.Errorf("missing file error = %v", err)
	}

	dir := t.TempDir()
	writeManifest(t, dir, "[[class]\nname = ")
	if _, err := Load(dir); err == nil || !strings.Contains(err.Error(), "parse error") {
		t.Errorf("bad toml error = %v", err)
	}
}

func TestFindAndLoad(t *testing.T) {
	dir := t.TempDir()
	subDir := filepath.Join(dir, "a", "b", "c")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}
	writeManifest(t, dir, "[project]\nname = \"found-project\"\n")

	m, err := FindAndLoad(subDir)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if m.Project.Name != "found-project" {
		t.Errorf("project name = %q, want found-project", m.Project.Name)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	m, err := FindAndLoad(t.TempDir())
	if err != nil {
		t.Fatalf("FindAndLoad error: %v", err)
	}
	if m != nil {
		t.Error("expected nil manifest when no moxie.toml exists")
	}
}

func TestStorePathAbsolute(t *testing.T) {
	m := &Manifest{Dir: "/app", Store: Store{Path: "/var/db/x.db"}}
	if got := m.StorePath(); got != "/var/db/x.db" {
		t.Errorf("StorePath() = %q, want /var/db/x.db", got)
	}
}

// ---------------------------------------------------------------------------
// Ordering
// ---------------------------------------------------------------------------

func TestClassOrder(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, zooManifest)
	m, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	res, err := NewResolver(m)
	if err != nil {
		t.Fatal(err)
	}
	order, err := res.ClassOrder()
	if err != nil {
		t.Fatalf("ClassOrder: %v", err)
	}
	pos := make(map[string]int)
	for i, d := range order {
		pos[d.Name] = i
	}
	if len(pos) != 3 {
		t.Fatalf("order = %d classes, want 3", len(order))
	}
	if pos["Animal"] > pos["Dog"] {
		t.Error("Animal must precede its subclass Dog")
	}
	if pos["Animal"] > pos["Keeper"] {
		t.Error("Animal must precede Keeper, whose attribute names it")
	}
}

func TestTypeOrder(t *testing.T) {
	m := &Manifest{Types: []TypeDecl{
		{Name: "Small", Parent: "Medium"},
		{Name: "Medium", Parent: "Large"},
		{Name: "Large", Parent: "Int"},
	}}
	res, err := NewResolver(m)
	if err != nil {
		t.Fatal(err)
	}
	order, err := res.TypeOrder()
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, d := range order {
		names = append(names, d.Name)
	}
	if got := strings.Join(names, ","); got != "Large,Medium,Small" {
		t.Errorf("type order = %s, want Large,Medium,Small", got)
	}
}

func TestOrderCycles(t *testing.T) {
	m := &Manifest{Types: []TypeDecl{
		{Name: "A", Parent: "B"},
		{Name: "B", Parent: "A"},
	}}
	res, err := NewResolver(m)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := res.TypeOrder(); err == nil {
		t.Error("expected circular type error")
	}

	m = &Manifest{Classes: []ClassDecl{
		{Name: "A", Extends: "B"},
		{Name: "B", Extends: "A"},
	}}
	res, err = NewResolver(m)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := res.ClassOrder(); err == nil {
		t.Error("expected circular class error")
	}
}

func TestSelfReferenceIsNotACycle(t *testing.T) {
	m := &Manifest{Classes: []ClassDecl{{
		Name:       "Node",
		Attributes: []AttributeDecl{{Name: "next", Is: "rw", Isa: "Maybe[Node]"}},
	}}}
	r := meta.NewRegistry()
	if err := m.Apply(r, nil); err != nil {
		t.Fatalf("Apply: %v", err)
	}
}

func TestDuplicateDeclarations(t *testing.T) {
	cases := []*Manifest{
		{Types: []TypeDecl{{Name: "T"}, {Name: "T"}}},
		{Roles: []RoleDecl{{Name: "R"}, {Name: "R"}}},
		{Classes: []ClassDecl{{Name: "C"}, {Name: "C"}}},
		{Roles: []RoleDecl{{Name: "X"}}, Classes: []ClassDecl{{Name: "X"}}},
	}
	for i, m := range cases {
		if _, err := NewResolver(m); err == nil {
			t.Errorf("case %d: expected duplicate error", i)
		}
	}
}

// ---------------------------------------------------------------------------
// Apply
// ---------------------------------------------------------------------------

func applyZoo(t *testing.T) *meta.Registry {
	t.Helper()
	dir := t.TempDir()
	writeManifest(t, dir, zooManifest)
	m, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	r := meta.NewRegistry()
	if err := m.Apply(r, nil); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	return r
}

func TestApplyDeclaresEverything(t *testing.T) {
	r := applyZoo(t)

	for _, name := range []string{"Animal", "Dog", "Keeper"} {
		if _, err := r.Class(name); err != nil {
			t.Errorf("class %s: %v", name, err)
		}
	}
	if _, err := r.Role("Named"); err != nil {
		t.Errorf("role Named: %v", err)
	}
	few, err := r.Type("FewLegs")
	if err != nil {
		t.Fatal(err)
	}
	if !few.IsSubtypeOf("Legs") || !few.IsSubtypeOf("Int") {
		t.Error("FewLegs should be a subtype of Legs and Int")
	}
	dog, _ := r.Class("Dog")
	if !dog.DoesRole("Named") {
		t.Error("Dog should do Named through Animal")
	}
}

func TestApplyConstructsInstances(t *testing.T) {
	r := applyZoo(t)

	rex, err := r.NewInstance("Dog", map[string]value.Value{"name": value.StringValue("Rex")})
	if err != nil {
		t.Fatalf("NewInstance: %v", err)
	}
	legs, err := rex.Send("legs")
	if err != nil || legs.AsInt() != 4 {
		t.Errorf("legs = %v, %v; want 4", legs, err)
	}
	has, _ := rex.Send("has_tricks")
	if !has.IsTruthy() {
		t.Error("has_tricks should be true after the default")
	}
	tricks, _ := rex.Send("tricks")
	if sit, ok := tricks.RefVal.Hash.Get("sit"); !ok || !sit.IsTruthy() {
		t.Errorf("tricks = %v, want {sit => 1}", tricks)
	}

	if _, err := rex.Send("legs", value.IntValue(9)); err == nil {
		t.Fatal("expected constraint violation for 9 legs")
	} else {
		var cv *accessor.ConstraintViolation
		if !errors.As(err, &cv) {
			t.Fatalf("expected ConstraintViolation, got %v", err)
		}
		if !strings.Contains(cv.Error(), "9 is not a leg count") {
			t.Errorf("message = %q, want the declared message", cv.Error())
		}
	}

	var missing *meta.MissingRequiredError
	if _, err := r.NewInstance("Dog", nil); !errors.As(err, &missing) {
		t.Errorf("expected MissingRequiredError for name, got %v", err)
	}
}

func TestApplyClassTypedAttribute(t *testing.T) {
	r := applyZoo(t)

	rex, err := r.NewInstance("Dog", map[string]value.Value{"name": value.StringValue("Rex")})
	if err != nil {
		t.Fatal(err)
	}
	keeper, err := r.NewInstance("Keeper", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := keeper.Send("animals", value.RefValue(value.NewArrayRef(rex.AsValue()))); err != nil {
		t.Fatalf("setting animals: %v", err)
	}
	list, err := keeper.SendList("animals")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || !value.Same(list[0], rex.AsValue()) {
		t.Errorf("animals = %v, want [rex]", list)
	}

	bad := value.RefValue(value.NewArrayRef(value.StringValue("not an animal")))
	if _, err := keeper.Send("animals", bad); err == nil {
		t.Error("expected constraint violation for a non-Animal element")
	}
}

func TestApplyRoleRequirementsFromMethods(t *testing.T) {
	m := &Manifest{
		Roles: []RoleDecl{{Name: "Greeter", Requires: []string{"greet"}}},
		Classes: []ClassDecl{
			{Name: "Loud", Roles: []string{"Greeter"}},
		},
	}
	if err := m.Apply(meta.NewRegistry(), nil); !errors.Is(err, meta.ErrUnknownMethod) {
		t.Errorf("expected unmet requirement, got %v", err)
	}

	greet := func(self *meta.Instance, want accessor.Want, args []value.Value) ([]value.Value, error) {
		return []value.Value{value.StringValue("HELLO")}, nil
	}
	r := meta.NewRegistry()
	if err := m.Apply(r, Methods{"Loud": {"greet": greet}}); err != nil {
		t.Fatalf("Apply with methods: %v", err)
	}
	inst, err := r.NewInstance("Loud", nil)
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := inst.Send("greet"); got.AsString() != "HELLO" {
		t.Errorf("greet = %v, want HELLO", got)
	}
}

func TestApplyBuilderFromMethods(t *testing.T) {
	m := &Manifest{Classes: []ClassDecl{{
		Name: "Config",
		Attributes: []AttributeDecl{
			{Name: "port", Is: "ro", Isa: "Int", Lazy: true, Builder: "_build_port"},
		},
	}}}
	build := func(self *meta.Instance, want accessor.Want, args []value.Value) ([]value.Value, error) {
		return []value.Value{value.IntValue(8080)}, nil
	}
	r := meta.NewRegistry()
	if err := m.Apply(r, Methods{"Config": {"_build_port": build}}); err != nil {
		t.Fatal(err)
	}
	inst, err := r.NewInstance("Config", nil)
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := inst.Send("port"); got.AsInt() != 8080 {
		t.Errorf("port = %v, want 8080", got)
	}
}

func TestApplyRejectsInvalidAttribute(t *testing.T) {
	m := &Manifest{Classes: []ClassDecl{{
		Name:       "Bad",
		Attributes: []AttributeDecl{{Name: "x", Is: "rx"}},
	}}}
	err := m.Apply(meta.NewRegistry(), nil)
	if !errors.Is(err, meta.ErrInvalidOptions) {
		t.Errorf("expected ErrInvalidOptions, got %v", err)
	}
	if err != nil && !strings.Contains(err.Error(), "class Bad") {
		t.Errorf("error should name the class: %v", err)
	}
}

func TestAttributeDeclSpecDefaults(t *testing.T) {
	spec := AttributeDecl{Name: "tags", Default: []any{"a", int64(2)}}.Spec()
	if !spec.Default.IsRef() || spec.Default.RefVal.Type != value.RefArray {
		t.Fatalf("default = %v, want an array ref", spec.Default)
	}
	if n := spec.Default.RefVal.Array.Len(); n != 2 {
		t.Errorf("default length = %d, want 2", n)
	}
	if spec := (AttributeDecl{Name: "x"}).Spec(); spec.Default.IsDefined() {
		t.Errorf("absent default = %v, want undef", spec.Default)
	}
}
