package domain

import (
	"fmt"
	"maps"
	"slices"
)

// Resource names tracked on every investigator.
const (
	ResourceHP     = "hp"
	ResourceSanity = "san"
	ResourceMagic  = "mp"
	ResourceLuck   = "luck"
)

// Characteristics is the fixed set of primary attributes.
// DEX orders combat turns.
type Characteristics struct {
	STR int `json:"STR"`
	CON int `json:"CON"`
	SIZ int `json:"SIZ"`
	DEX int `json:"DEX"`
	APP int `json:"APP"`
	INT int `json:"INT"`
	POW int `json:"POW"`
	EDU int `json:"EDU"`
}

// Resource is a bounded pool such as hit points or sanity.
type Resource struct {
	Current int `json:"current"`
	Max     int `json:"max"`
}

// Actor is a participant in the session.
type Actor struct {
	ID              string              `json:"id"`
	Name            string              `json:"name"`
	IsNPC           bool                `json:"is_npc,omitempty"`
	Characteristics Characteristics     `json:"characteristics"`
	Resources       map[string]Resource `json:"resources"`
	Skills          map[string]int      `json:"skills"`
	Conditions      []string            `json:"conditions,omitempty"`
}

// Clone returns a deep copy of a.
func (a *Actor) Clone() *Actor {
	out := *a
	out.Resources = maps.Clone(a.Resources)
	out.Skills = maps.Clone(a.Skills)
	out.Conditions = slices.Clone(a.Conditions)
	return &out
}

// Validate checks that the actor has an id and in-range resources.
func (a *Actor) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("actor has no id")
	}
	for name, r := range a.Resources {
		if r.Max < 0 || r.Current < 0 || r.Current > r.Max {
			return fmt.Errorf("actor %s: resource %s out of range (%d/%d)", a.ID, name, r.Current, r.Max)
		}
	}
	return nil
}

// Resource returns the named pool.
func (a *Actor) Resource(name string) (Resource, bool) {
	r, ok := a.Resources[name]
	return r, ok
}

// Adjust adds delta to the named resource, clamped to [0, Max].
func (a *Actor) Adjust(name string, delta int) (Resource, error) {
	r, ok := a.Resources[name]
	if !ok {
		return Resource{}, fmt.Errorf("%w: %s on %s", ErrUnknownResource, name, a.ID)
	}
	r.Current = min(max(r.Current+delta, 0), r.Max)
	a.Resources[name] = r
	return r, nil
}

// Skill returns the actor's value for a skill.
func (a *Actor) Skill(name string) (int, bool) {
	v, ok := a.Skills[name]
	return v, ok
}

// HasCondition reports whether the actor carries condition c.
func (a *Actor) HasCondition(c string) bool {
	return slices.Contains(a.Conditions, c)
}

// AddCondition adds c once.
func (a *Actor) AddCondition(c string) {
	if !a.HasCondition(c) {
		a.Conditions = append(a.Conditions, c)
	}
}
