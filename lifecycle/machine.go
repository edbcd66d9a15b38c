package lifecycle

import (
	"fmt"
	"strings"

	"example.com/backstage/services/clinops/errs"
)

// EntityType names an entity family
type EntityType string

const (
	EntityStudy           EntityType = "study"
	EntityPatient         EntityType = "patient"
	EntityProtocolVersion EntityType = "protocol_version"
	EntityVisit           EntityType = "visit"
)

// Status is a lifecycle status code
type Status string

// Definition declares one entity type's lifecycle.
type Definition struct {
	Entity      EntityType
	Initial     Status
	Statuses    []Status
	Transitions map[Status][]Status
	Terminal    []Status
	// Escape is reachable from every non-terminal status. Empty means none.
	Escape Status
}

// Machine is an immutable transition table for one entity type
type Machine struct {
	entity      EntityType
	initial     Status
	order       []Status
	known       map[Status]int
	transitions map[Status]map[Status]struct{}
	terminal    map[Status]struct{}
	escape      Status
}

// NewMachine builds a machine from a definition and checks it for consistency.
func NewMachine(def Definition) (*Machine, error) {
	if def.Entity == "" {
		return nil, fmt.Errorf("lifecycle definition has no entity type")
	}

	m := &Machine{
		entity:      def.Entity,
		initial:     def.Initial,
		order:       append([]Status(nil), def.Statuses...),
		known:       make(map[Status]int, len(def.Statuses)),
		transitions: make(map[Status]map[Status]struct{}),
		terminal:    make(map[Status]struct{}),
		escape:      def.Escape,
	}

	for i, s := range def.Statuses {
		if _, dup := m.known[s]; dup {
			return nil, fmt.Errorf("%s: duplicate status %s", def.Entity, s)
		}
		m.known[s] = i
	}

	if _, ok := m.known[def.Initial]; !ok {
		return nil, fmt.Errorf("%s: initial status %q is not declared", def.Entity, def.Initial)
	}
	if def.Escape != "" {
		if _, ok := m.known[def.Escape]; !ok {
			return nil, fmt.Errorf("%s: escape status %q is not declared", def.Entity, def.Escape)
		}
	}

	for _, s := range def.Terminal {
		if _, ok := m.known[s]; !ok {
			return nil, fmt.Errorf("%s: terminal status %q is not declared", def.Entity, s)
		}
		m.terminal[s] = struct{}{}
	}
	if def.Escape != "" {
		if _, ok := m.terminal[def.Escape]; !ok {
			return nil, fmt.Errorf("%s: escape status %s must be terminal", def.Entity, def.Escape)
		}
	}

	for from, targets := range def.Transitions {
		if _, ok := m.known[from]; !ok {
			return nil, fmt.Errorf("%s: transition from undeclared status %q", def.Entity, from)
		}
		if _, ok := m.terminal[from]; ok && len(targets) > 0 {
			return nil, fmt.Errorf("%s: terminal status %s has outgoing transitions", def.Entity, from)
		}
		set := make(map[Status]struct{}, len(targets))
		for _, to := range targets {
			if _, ok := m.known[to]; !ok {
				return nil, fmt.Errorf("%s: transition to undeclared status %q", def.Entity, to)
			}
			if to == from {
				return nil, fmt.Errorf("%s: self transition on %s", def.Entity, from)
			}
			set[to] = struct{}{}
		}
		m.transitions[from] = set
	}

	return m, nil
}

// Entity returns the entity type the machine governs
func (m *Machine) Entity() EntityType {
	return m.entity
}

// Initial returns the status new entities start in
func (m *Machine) Initial() Status {
	return m.initial
}

// Statuses returns every declared status in declaration order
func (m *Machine) Statuses() []Status {
	return append([]Status(nil), m.order...)
}

// Escape returns the universal escape status, or "" when there is none
func (m *Machine) Escape() Status {
	return m.escape
}

// Known reports whether s belongs to this entity type
func (m *Machine) Known(s Status) bool {
	_, ok := m.known[s]
	return ok
}

// IsTerminal reports whether s accepts no further transitions
func (m *Machine) IsTerminal(s Status) bool {
	_, ok := m.terminal[s]
	return ok
}

// Allowed lists the legal next statuses from s in declaration order.
func (m *Machine) Allowed(from Status) []Status {
	if !m.Known(from) || m.IsTerminal(from) {
		return nil
	}

	var allowed []Status
	for _, s := range m.order {
		if m.permits(from, s) {
			allowed = append(allowed, s)
		}
	}
	return allowed
}

func (m *Machine) permits(from, to Status) bool {
	if from == to || m.IsTerminal(from) {
		return false
	}
	if m.escape != "" && to == m.escape {
		return true
	}
	_, ok := m.transitions[from][to]
	return ok
}

// Validate returns nil when from -> to is legal, otherwise an
// *errs.IllegalTransitionError listing the legal alternatives.
func (m *Machine) Validate(from, to Status) error {
	if !m.Known(to) {
		return m.unknownStatus(to)
	}
	if m.permits(from, to) {
		return nil
	}

	allowed := m.Allowed(from)
	names := make([]string, len(allowed))
	for i, s := range allowed {
		names[i] = string(s)
	}

	return &errs.IllegalTransitionError{
		Entity:   string(m.entity),
		From:     string(from),
		To:       string(to),
		Allowed:  names,
		Terminal: m.IsTerminal(from),
	}
}

// Parse normalises a raw status string.
func (m *Machine) Parse(raw string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(raw)))
	if !m.Known(s) {
		return "", m.unknownStatus(s)
	}
	return s, nil
}

func (m *Machine) unknownStatus(s Status) error {
	names := make([]string, len(m.order))
	for i, st := range m.order {
		names[i] = string(st)
	}
	return &errs.ValidationError{
		Message: fmt.Sprintf("invalid %s status %q", m.entity, s),
		Fields:  map[string]string{"status": "must be one of " + strings.Join(names, ", ")},
	}
}

// Registry holds one machine per entity type
type Registry struct {
	machines map[EntityType]*Machine
}

// NewRegistry creates a registry; entity types must be unique.
func NewRegistry(machines ...*Machine) (*Registry, error) {
	r := &Registry{machines: make(map[EntityType]*Machine, len(machines))}
	for _, m := range machines {
		if _, dup := r.machines[m.entity]; dup {
			return nil, fmt.Errorf("duplicate lifecycle for %s", m.entity)
		}
		r.machines[m.entity] = m
	}
	return r, nil
}

// Machine returns the machine for an entity type
func (r *Registry) Machine(entity EntityType) (*Machine, error) {
	m, ok := r.machines[entity]
	if !ok {
		return nil, errs.NewValidationError("unknown entity type %q", entity)
	}
	return m, nil
}

// ValidateTransition checks current -> requested for the entity type.
func (r *Registry) ValidateTransition(entity EntityType, current, requested Status) error {
	m, err := r.Machine(entity)
	if err != nil {
		return err
	}
	return m.Validate(current, requested)
}

// EntityTypes lists the registered entity types
func (r *Registry) EntityTypes() []EntityType {
	types := make([]EntityType, 0, len(r.machines))
	for _, t := range []EntityType{EntityStudy, EntityPatient, EntityProtocolVersion, EntityVisit} {
		if _, ok := r.machines[t]; ok {
			types = append(types, t)
		}
	}
	for t := range r.machines {
		switch t {
		case EntityStudy, EntityPatient, EntityProtocolVersion, EntityVisit:
		default:
			types = append(types, t)
		}
	}
	return types
}
