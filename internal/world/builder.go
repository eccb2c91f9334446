package world

import (
	"strconv"
	"strings"
)

// CharacterBuilder is the mutable snapshot accumulated during
// CharacterCreation, grounded on the teacher's CharacterCreate client
// packet fields (name, class, hair, face) minus the stat rolls the
// teacher's own server ignores and derives from the class template.
type CharacterBuilder struct {
	Name      string
	ClassID   int
	IsFemale  bool
	HairStyle int
	HairColor int
	Face      int
}

// Validate reports the first reason the builder cannot yet be finalized,
// or nil if it is ready.
func (b CharacterBuilder) Validate() error {
	name := strings.TrimSpace(b.Name)
	if name == "" {
		return &Error{Kind: ErrValidation, Message: "a name is required"}
	}
	if len(name) > 32 {
		return &Error{Kind: ErrValidation, Message: "name must be 32 characters or fewer"}
	}
	if b.ClassID < 0 {
		return &Error{Kind: ErrValidation, Message: "a class must be chosen"}
	}
	return nil
}

// Describe renders the builder's current state for a "show" command.
func (b CharacterBuilder) Describe() string {
	sex := "male"
	if b.IsFemale {
		sex = "female"
	}
	name := b.Name
	if name == "" {
		name = "(unnamed)"
	}
	return "name=" + name + " class=" + strconv.Itoa(b.ClassID) + " sex=" + sex +
		" hair=" + strconv.Itoa(b.HairStyle) + "/" + strconv.Itoa(b.HairColor) + " face=" + strconv.Itoa(b.Face)
}
