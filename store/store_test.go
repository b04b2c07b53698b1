package store

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/chazu/moxie/meta"
	"github.com/chazu/moxie/value"
)

// newRegistry declares the classes the tests persist.
func newRegistry(t *testing.T) *meta.Registry {
	t.Helper()
	r := meta.NewRegistry()
	person, err := r.DefineClass("Person", "")
	if err != nil {
		t.Fatal(err)
	}
	specs := []meta.AttributeSpec{
		{Name: "name", Is: meta.IsReadWrite, Isa: "Str"},
		{Name: "age", Is: meta.IsReadWrite, Isa: "Int"},
		{Name: "tags", Is: meta.IsReadWrite, Isa: "ArrayRef[Str]"},
		{Name: "friend", Is: meta.IsReadWrite, Isa: "Maybe[Person]"},
		{Name: "parent", Is: meta.IsReadWrite, Isa: "Maybe[Person]", WeakRef: true},
		{Name: "nick", Is: meta.IsReadOnly, Lazy: true, Default: value.StringValue("anon"), Predicate: "has_nick"},
	}
	for _, spec := range specs {
		if _, err := person.AddAttribute(spec); err != nil {
			t.Fatalf("AddAttribute(%s): %v", spec.Name, err)
		}
	}
	return r
}

func openStore(t *testing.T, path string, r *meta.Registry) *Store {
	t.Helper()
	s, err := Open(path, r)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newPerson(t *testing.T, r *meta.Registry, args map[string]value.Value) *meta.Instance {
	t.Helper()
	inst, err := r.NewInstance("Person", args)
	if err != nil {
		t.Fatalf("NewInstance: %v", err)
	}
	return inst
}

// ---------------------------------------------------------------------------
// Round trips
// ---------------------------------------------------------------------------

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db", "moxie.db")
	r := newRegistry(t)
	s := openStore(t, path, r)

	alice := newPerson(t, r, map[string]value.Value{
		"name": value.StringValue("Alice"),
		"age":  value.IntValue(30),
		"tags": value.RefValue(value.NewArrayRef(value.StringValue("a"), value.StringValue("b"))),
	})
	if err := s.Save(alice); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// A fresh registry sees only what was stored.
	r2 := newRegistry(t)
	s2 := openStore(t, path, r2)
	loaded, err := s2.Load(alice.ID())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.ID() != alice.ID() {
		t.Errorf("ID = %s, want %s", loaded.ID(), alice.ID())
	}
	if got, _ := loaded.Send("name"); got.AsString() != "Alice" {
		t.Errorf("name = %v, want Alice", got)
	}
	if got, _ := loaded.Send("age"); got.AsInt() != 30 {
		t.Errorf("age = %v, want 30", got)
	}
	tags, _ := loaded.Send("tags")
	if !tags.IsRef() || tags.RefVal.Array.Len() != 2 || tags.RefVal.Array.At(1).AsString() != "b" {
		t.Errorf("tags = %v, want [a b]", tags)
	}
	if r2.Instance(alice.ID()) != loaded {
		t.Error("loaded instance should be tracked by the registry")
	}

	again, err := s2.Load(alice.ID())
	if err != nil || again != loaded {
		t.Errorf("second Load = %p, %v; want the tracked instance", again, err)
	}
}

func TestLazyStaysUnsetAcrossLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "moxie.db")
	r := newRegistry(t)
	s := openStore(t, path, r)

	p := newPerson(t, r, nil)
	if err := s.Save(p); err != nil {
		t.Fatal(err)
	}

	r2 := newRegistry(t)
	loaded, err := openStore(t, path, r2).Load(p.ID())
	if err != nil {
		t.Fatal(err)
	}
	if has, _ := loaded.Send("has_nick"); has.IsTruthy() {
		t.Error("lazy slot should still be unset after load")
	}
	if nick, _ := loaded.Send("nick"); nick.AsString() != "anon" {
		t.Errorf("nick = %v, want anon", nick)
	}
}

func TestReferencesResolveOnLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "moxie.db")
	r := newRegistry(t)
	s := openStore(t, path, r)

	a := newPerson(t, r, map[string]value.Value{"name": value.StringValue("A")})
	b := newPerson(t, r, map[string]value.Value{"name": value.StringValue("B"), "friend": a.AsValue()})
	if _, err := a.Send("friend", b.AsValue()); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveAll(); err != nil {
		t.Fatalf("SaveAll: %v", err)
	}

	r2 := newRegistry(t)
	s2 := openStore(t, path, r2)
	la, err := s2.Load(a.ID())
	if err != nil {
		t.Fatal(err)
	}
	friend, _ := la.Send("friend")
	lb := r2.Instance(b.ID())
	if lb == nil {
		t.Fatal("referenced instance should have been loaded")
	}
	if !value.Same(friend, lb.AsValue()) {
		t.Errorf("A.friend = %v, want B", friend)
	}
	back, _ := lb.Send("friend")
	if !value.Same(back, la.AsValue()) {
		t.Errorf("B.friend = %v, want A (cycle)", back)
	}
}

func TestWeakSlotStaysWeak(t *testing.T) {
	path := filepath.Join(t.TempDir(), "moxie.db")
	r := newRegistry(t)
	s := openStore(t, path, r)

	parent := newPerson(t, r, map[string]value.Value{"name": value.StringValue("P")})
	child := newPerson(t, r, map[string]value.Value{"name": value.StringValue("C"), "parent": parent.AsValue()})
	if err := s.SaveAll(); err != nil {
		t.Fatal(err)
	}

	r2 := newRegistry(t)
	lc, err := openStore(t, path, r2).Load(child.ID())
	if err != nil {
		t.Fatal(err)
	}
	got, _ := lc.Send("parent")
	lp := r2.Instance(parent.ID())
	if lp == nil || !value.Same(got, lp.AsValue()) {
		t.Errorf("parent = %v, want the loaded parent", got)
	}
}

func TestLoadAllAndFindByClass(t *testing.T) {
	path := filepath.Join(t.TempDir(), "moxie.db")
	r := newRegistry(t)
	s := openStore(t, path, r)
	for _, name := range []string{"x", "y", "z"} {
		newPerson(t, r, map[string]value.Value{"name": value.StringValue(name)})
	}
	if err := s.SaveAll(); err != nil {
		t.Fatal(err)
	}

	ids, err := s.FindByClass("Person")
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 3 {
		t.Errorf("FindByClass = %d ids, want 3", len(ids))
	}
	if ids, _ := s.FindByClass("Robot"); len(ids) != 0 {
		t.Errorf("FindByClass(Robot) = %v, want none", ids)
	}

	r2 := newRegistry(t)
	if err := openStore(t, path, r2).LoadAll(); err != nil {
		t.Fatal(err)
	}
	if n := r2.InstanceCount(); n != 3 {
		t.Errorf("InstanceCount after LoadAll = %d, want 3", n)
	}
}

// ---------------------------------------------------------------------------
// Failures
// ---------------------------------------------------------------------------

func TestLoadMissing(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "moxie.db"), newRegistry(t))
	if _, err := s.Load("person_nope"); !errors.Is(err, ErrInstanceNotFound) {
		t.Errorf("expected ErrInstanceNotFound, got %v", err)
	}
}

func TestLoadUnknownClass(t *testing.T) {
	path := filepath.Join(t.TempDir(), "moxie.db")
	r := newRegistry(t)
	p := newPerson(t, r, nil)
	if err := openStore(t, path, r).Save(p); err != nil {
		t.Fatal(err)
	}

	empty := meta.NewRegistry()
	if _, err := openStore(t, path, empty).Load(p.ID()); !errors.Is(err, meta.ErrUnknownClass) {
		t.Errorf("expected ErrUnknownClass, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	r := newRegistry(t)
	s := openStore(t, filepath.Join(t.TempDir(), "moxie.db"), r)
	p := newPerson(t, r, nil)
	if err := s.Save(p); err != nil {
		t.Fatal(err)
	}

	if err := s.Delete(p.ID()); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if r.Instance(p.ID()) != nil {
		t.Error("deleted instance should no longer be tracked")
	}
	if _, err := s.Load(p.ID()); !errors.Is(err, ErrInstanceNotFound) {
		t.Errorf("Load after Delete = %v, want ErrInstanceNotFound", err)
	}
	if err := s.Delete(p.ID()); !errors.Is(err, ErrInstanceNotFound) {
		t.Errorf("second Delete = %v, want ErrInstanceNotFound", err)
	}
}

func TestSaveUnserializable(t *testing.T) {
	r := meta.NewRegistry()
	c, _ := r.DefineClass("Holder", "")
	if _, err := c.AddAttribute(meta.AttributeSpec{Name: "fn", Is: meta.IsReadWrite}); err != nil {
		t.Fatal(err)
	}
	code := value.RefValue(value.NewCodeRef(nil))
	inst, err := r.NewInstance("Holder", map[string]value.Value{"fn": code})
	if err != nil {
		t.Fatal(err)
	}
	s := openStore(t, filepath.Join(t.TempDir(), "moxie.db"), r)
	if err := s.Save(inst); !errors.Is(err, value.ErrNotSerializable) {
		t.Errorf("expected ErrNotSerializable, got %v", err)
	}
}
