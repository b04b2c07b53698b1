package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/chazu/moxie/manifest"
	"github.com/chazu/moxie/meta"
	"github.com/chazu/moxie/store"
	"github.com/chazu/moxie/value"
)

var errUsage = errors.New("bad usage")

var errNoStore = errors.New("no [store] configured in moxie.toml")

// app is a loaded project: its registry and, when configured, its store.
type app struct {
	out      io.Writer
	manifest *manifest.Manifest
	registry *meta.Registry
	store    *store.Store
}

func openApp(dir string, out io.Writer) (*app, error) {
	a := &app{out: out, registry: meta.NewRegistry()}

	m, err := manifest.FindAndLoad(dir)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return a, nil
	}
	a.manifest = m
	if err := m.Apply(a.registry, nil); err != nil {
		return nil, fmt.Errorf("%s: %w", m.Project.Name, err)
	}
	if path := m.StorePath(); path != "" {
		s, err := store.Open(path, a.registry)
		if err != nil {
			return nil, err
		}
		a.store = s
	}
	return a, nil
}

func (a *app) close() {
	if a.store != nil {
		a.store.Close()
	}
}

func (a *app) dispatch(cmd string, args []string) error {
	switch cmd {
	case "types":
		return a.types()
	case "classes":
		return a.classes()
	case "check":
		if len(args) != 2 {
			return errUsage
		}
		return a.check(args[0], args[1])
	case "new":
		if len(args) < 1 {
			return errUsage
		}
		return a.newInstance(args[0], args[1:])
	case "show":
		if len(args) != 1 {
			return errUsage
		}
		return a.show(args[0])
	case "get":
		if len(args) != 2 {
			return errUsage
		}
		return a.get(args[0], args[1])
	case "set":
		if len(args) != 3 {
			return errUsage
		}
		return a.set(args[0], args[1], args[2])
	case "ls":
		if len(args) > 1 {
			return errUsage
		}
		return a.list(args)
	case "rm":
		if len(args) != 1 {
			return errUsage
		}
		return a.remove(args[0])
	default:
		return fmt.Errorf("%w: unknown command %s", errUsage, cmd)
	}
}

// ---------------------------------------------------------------------------
// Declarations
// ---------------------------------------------------------------------------

func (a *app) types() error {
	names := a.registry.TypeNames()
	sort.Strings(names)
	for _, name := range names {
		tc, err := a.registry.Type(name)
		if err != nil {
			return err
		}
		if p := tc.Parent(); p != nil {
			fmt.Fprintf(a.out, "%s < %s\n", name, p.Name())
		} else {
			fmt.Fprintln(a.out, name)
		}
	}
	return nil
}

func (a *app) classes() error {
	names := a.registry.ClassNames()
	sort.Strings(names)
	for _, name := range names {
		c, err := a.registry.Class(name)
		if err != nil {
			return err
		}
		if super := c.Superclass(); super != nil {
			fmt.Fprintf(a.out, "%s extends %s\n", name, super.Name())
		} else {
			fmt.Fprintln(a.out, name)
		}
		for _, attr := range c.AllAttributes() {
			fmt.Fprintf(a.out, "  %s\n", describeAttribute(attr))
		}
	}
	return nil
}

func describeAttribute(attr *meta.Attribute) string {
	spec := attr.Spec()
	var b strings.Builder
	b.WriteString(spec.Name)
	if spec.Is != "" {
		fmt.Fprintf(&b, " (%s)", spec.Is)
	}
	if spec.Isa != "" {
		fmt.Fprintf(&b, " isa %s", spec.Isa)
	}
	var opts []string
	for _, o := range []struct {
		on   bool
		name string
	}{
		{spec.Required, "required"},
		{spec.Lazy, "lazy"},
		{spec.WeakRef, "weak_ref"},
		{spec.Coerce, "coerce"},
		{spec.AutoDeref, "auto_deref"},
	} {
		if o.on {
			opts = append(opts, o.name)
		}
	}
	if len(opts) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(opts, " "))
	}
	return b.String()
}

func (a *app) check(typeName, literal string) error {
	tc, err := a.registry.Type(typeName)
	if err != nil {
		return err
	}
	v, err := a.parseValue(literal)
	if err != nil {
		return err
	}
	ok, err := tc.Check(v)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New(tc.ErrorMessage(v))
	}
	fmt.Fprintf(a.out, "ok: %s is a %s\n", v, tc.Name())
	return nil
}

// ---------------------------------------------------------------------------
// Instances
// ---------------------------------------------------------------------------

func (a *app) newInstance(className string, pairs []string) error {
	args := make(map[string]value.Value, len(pairs))
	for _, pair := range pairs {
		k, lit, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("%w: expected attr=value, got %s", errUsage, pair)
		}
		v, err := a.parseValue(lit)
		if err != nil {
			return err
		}
		args[k] = v
	}

	inst, err := a.registry.NewInstance(className, args)
	if err != nil {
		return err
	}
	if a.store != nil {
		if err := a.store.Save(inst); err != nil {
			return err
		}
	}
	return a.print(inst)
}

func (a *app) load(id string) (*meta.Instance, error) {
	if a.store == nil {
		return nil, errNoStore
	}
	return a.store.Load(id)
}

func (a *app) show(id string) error {
	inst, err := a.load(id)
	if err != nil {
		return err
	}
	return a.print(inst)
}

func (a *app) get(id, method string) error {
	inst, err := a.load(id)
	if err != nil {
		return err
	}
	vals, err := inst.SendList(method)
	if err != nil {
		return err
	}
	for _, v := range vals {
		fmt.Fprintln(a.out, formatValue(v))
	}
	return nil
}

func (a *app) set(id, method, literal string) error {
	inst, err := a.load(id)
	if err != nil {
		return err
	}
	v, err := a.parseValue(literal)
	if err != nil {
		return err
	}
	got, err := inst.Send(method, v)
	if err != nil {
		return err
	}
	if err := a.store.Save(inst); err != nil {
		return err
	}
	fmt.Fprintln(a.out, formatValue(got))
	return nil
}

func (a *app) list(args []string) error {
	if a.store == nil {
		return errNoStore
	}
	classes := args
	if len(classes) == 0 {
		classes = a.registry.ClassNames()
		sort.Strings(classes)
	}
	for _, c := range classes {
		ids, err := a.store.FindByClass(c)
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Fprintln(a.out, id)
		}
	}
	return nil
}

func (a *app) remove(id string) error {
	if a.store == nil {
		return errNoStore
	}
	return a.store.Delete(id)
}

// ---------------------------------------------------------------------------
// Values
// ---------------------------------------------------------------------------

// parseValue reads a command-line value: @<id> names a stored instance,
// anything else is a JSON literal or a bare string.
func (a *app) parseValue(lit string) (value.Value, error) {
	if id, ok := strings.CutPrefix(lit, "@"); ok && id != "" {
		inst, err := a.load(id)
		if err != nil {
			return value.Undef(), err
		}
		return inst.AsValue(), nil
	}
	return value.ParseLiteral(lit), nil
}

func formatValue(v value.Value) string {
	data, err := value.ToJSON(v)
	if err != nil {
		return v.String()
	}
	return string(data)
}

func (a *app) print(inst *meta.Instance) error {
	fmt.Fprintf(a.out, "%s (%s)\n", inst.ID(), inst.ClassName())
	slots := inst.Slots()
	names := make([]string, 0, len(slots))
	for name := range slots {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(a.out, "  %s = %s\n", name, formatValue(slots[name]))
	}
	return nil
}
