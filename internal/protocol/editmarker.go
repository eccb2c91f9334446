package protocol

import "strings"

// Editing's save/cancel chord has no wire-level opcode of its own — it
// travels as a SendInput whose text carries one of these reserved
// prefixes, per spec.md §4.5 ("a SendInput with a protocol-reserved
// marker distinguishing 'edit-saved' from 'edit-cancelled'"). Both the
// gateway's input-mode engine and the world router's Editing handler
// import this file so the encoding lives in exactly one place.
const (
	editSavePrefix = "\x01EDIT-SAVE\x01"
	editCancel     = "\x01EDIT-CANCEL\x01"
)

// EncodeEditSave produces the SendInput payload for a save chord.
func EncodeEditSave(content string) string {
	return editSavePrefix + content
}

// EncodeEditCancel produces the SendInput payload for a cancel chord.
func EncodeEditCancel() string {
	return editCancel
}

// DecodeEditMarker reports whether input is an edit-completion marker and,
// if so, whether it was a save (with its content) or a cancel.
func DecodeEditMarker(input string) (saved bool, content string, isMarker bool) {
	if input == editCancel {
		return false, "", true
	}
	if strings.HasPrefix(input, editSavePrefix) {
		return true, strings.TrimPrefix(input, editSavePrefix), true
	}
	return false, "", false
}
