package meta

import (
	"fmt"
	"strings"
	"sync"
	"time"
	"weak"

	"github.com/google/uuid"

	"github.com/chazu/moxie/accessor"
	"github.com/chazu/moxie/value"
)

// slot is one attribute cell. A weak slot holds its referent through a
// weak pointer and reads back undef once the referent is collected.
type slot struct {
	set    bool
	v      value.Value
	isWeak bool
	weak   weak.Pointer[value.Ref]
}

func (s *slot) load() value.Value {
	if !s.isWeak {
		return s.v
	}
	return value.RefValue(s.weak.Value())
}

// Instance is an object created from a Class.
type Instance struct {
	id        string
	class     *Class
	self      *value.Ref
	CreatedAt time.Time

	mu    sync.RWMutex
	slots []slot
}

func newInstance(c *Class) *Instance {
	inst := &Instance{
		id:        GenerateID(c.name),
		class:     c,
		CreatedAt: time.Now(),
		slots:     make([]slot, c.NumSlots()),
	}
	inst.self = value.NewOpaqueRef(c.name, inst)
	return inst
}

// GenerateID creates a new unique instance ID for the given class name
func GenerateID(className string) string {
	idPrefix := strings.ToLower(strings.ReplaceAll(className, "::", "_"))
	return idPrefix + "_" + uuid.New().String()
}

// ID returns the instance ID.
func (inst *Instance) ID() string { return inst.id }

// InstanceID makes instances persistable by reference.
func (inst *Instance) InstanceID() string { return inst.id }

// Class returns the instance's class.
func (inst *Instance) Class() *Class { return inst.class }

// ClassName returns the name of the instance's class.
func (inst *Instance) ClassName() string { return inst.class.name }

// AsValue returns the blessed reference that stands for inst.
func (inst *Instance) AsValue() value.Value { return value.RefValue(inst.self) }

func (inst *Instance) String() string { return inst.self.String() }

// FindMethod resolves name on the instance's class as a zero-argument
// method, as builders are called.
func (inst *Instance) FindMethod(name string) accessor.Method {
	m := inst.class.LookupMethod(name)
	if m == nil {
		return nil
	}
	return func(self accessor.Instance) (value.Value, error) {
		s, ok := self.(*Instance)
		if !ok {
			return value.Undef(), accessor.ErrNotInstance
		}
		out, err := m.Impl(s, accessor.WantScalar, nil)
		if err != nil || len(out) == 0 {
			return value.Undef(), err
		}
		return out[0], nil
	}
}

// Send calls a method in scalar context.
func (inst *Instance) Send(selector string, args ...value.Value) (value.Value, error) {
	out, err := inst.send(selector, accessor.WantScalar, args)
	if err != nil || len(out) == 0 {
		return value.Undef(), err
	}
	return out[0], nil
}

// SendList calls a method in list context.
func (inst *Instance) SendList(selector string, args ...value.Value) ([]value.Value, error) {
	return inst.send(selector, accessor.WantList, args)
}

func (inst *Instance) send(selector string, want accessor.Want, args []value.Value) ([]value.Value, error) {
	m := inst.class.LookupMethod(selector)
	if m == nil {
		return nil, fmt.Errorf("%w: %s on %s", ErrUnknownMethod, selector, inst.class.name)
	}
	return m.Impl(inst, want, args)
}

// Slots returns the set slots by attribute name.
func (inst *Instance) Slots() map[string]value.Value {
	attrs := inst.class.AllAttributes()
	inst.mu.RLock()
	defer inst.mu.RUnlock()
	out := make(map[string]value.Value, len(attrs))
	for i, a := range attrs {
		if i < len(inst.slots) && inst.slots[i].set {
			out[a.spec.Name] = inst.slots[i].load()
		}
	}
	return out
}

// RestoreSlot stores v directly, bypassing constraints and triggers, as
// when reloading a saved instance. Weak attributes stay weak.
func (inst *Instance) RestoreSlot(name string, v value.Value) error {
	a := inst.class.FindAttribute(name)
	if a == nil {
		return fmt.Errorf("%s has no attribute %s", inst.class.name, name)
	}
	key := inst.class.storage.SlotKey(name)
	inst.class.storage.SetSlot(inst, key, v)
	if a.IsWeakRef() {
		inst.class.storage.WeakenSlot(inst, key)
	}
	return nil
}

// Restore creates an instance of c with a known ID and no slots set,
// for loading.
func (c *Class) Restore(id string) *Instance {
	c.freeze()
	inst := newInstance(c)
	inst.id = id
	return inst
}

// ---------------------------------------------------------------------------
// Slot storage strategy
// ---------------------------------------------------------------------------

// slotStorage lays attribute slots out as a per-instance array indexed by
// the class's slot layout.
type slotStorage struct {
	class *Class
}

func (s *slotStorage) SlotKey(name string) accessor.SlotKey {
	return s.class.SlotIndex(name)
}

// Owns reports whether inst is an instance of the storage's class or a
// subclass of it, the only instances whose slot arrays match its layout.
func (s *slotStorage) Owns(inst accessor.Instance) bool {
	i, ok := inst.(*Instance)
	return ok && i != nil && i.class.IsSubclassOf(s.class)
}

func (s *slotStorage) cell(inst accessor.Instance, key accessor.SlotKey) (*Instance, int, bool) {
	if !s.Owns(inst) {
		return nil, 0, false
	}
	i := inst.(*Instance)
	idx, ok := key.(int)
	if !ok || idx < 0 || idx >= len(i.slots) {
		return nil, 0, false
	}
	return i, idx, true
}

func (s *slotStorage) HasSlot(inst accessor.Instance, key accessor.SlotKey) bool {
	i, idx, ok := s.cell(inst, key)
	if !ok {
		return false
	}
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.slots[idx].set
}

func (s *slotStorage) GetSlot(inst accessor.Instance, key accessor.SlotKey) (value.Value, bool) {
	i, idx, ok := s.cell(inst, key)
	if !ok {
		return value.Undef(), false
	}
	i.mu.RLock()
	defer i.mu.RUnlock()
	sl := &i.slots[idx]
	if !sl.set {
		return value.Undef(), false
	}
	return sl.load(), true
}

func (s *slotStorage) SetSlot(inst accessor.Instance, key accessor.SlotKey, v value.Value) value.Value {
	i, idx, ok := s.cell(inst, key)
	if !ok {
		return v
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.slots[idx] = slot{set: true, v: v}
	return v
}

func (s *slotStorage) DeleteSlot(inst accessor.Instance, key accessor.SlotKey) {
	i, idx, ok := s.cell(inst, key)
	if !ok {
		return
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.slots[idx] = slot{}
}

// WeakenSlot swaps a reference held in the slot for a weak pointer to it.
// Non-references are left as they are.
func (s *slotStorage) WeakenSlot(inst accessor.Instance, key accessor.SlotKey) {
	i, idx, ok := s.cell(inst, key)
	if !ok {
		return
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	sl := &i.slots[idx]
	if !sl.set || sl.isWeak || !sl.v.IsRef() {
		return
	}
	sl.weak = weak.Make(sl.v.RefVal)
	sl.isWeak = true
	sl.v = value.Undef()
}
