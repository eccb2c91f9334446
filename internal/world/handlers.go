package world

import (
	"context"
	"strconv"
	"strings"

	"github.com/wyldlands/wyldlands/internal/gatewayrpc"
	"github.com/wyldlands/wyldlands/internal/ids"
	"github.com/wyldlands/wyldlands/internal/output"
	"github.com/wyldlands/wyldlands/internal/protocol"
)

func fields(input string) []string {
	return strings.Fields(strings.TrimSpace(input))
}

// handleCharacterSelectionInput implements spec.md §4.6's CharacterSelection
// commands: list, select <id>, create, delete <id>, quit. create/select
// transition state directly; list/delete act and stay.
func (r *Router) handleCharacterSelectionInput(ctx context.Context, sessionID ids.SessionId, entry *sessionEntry, st CharacterSelection, input string) (gatewayrpc.InputOutcome, string, error) {
	parts := fields(input)
	if len(parts) == 0 {
		return gatewayrpc.InputErr, "", &Error{Kind: ErrValidation, Message: "empty command"}
	}

	switch parts[0] {
	case "list":
		chars, err := r.characters.ListCharacters(ctx, st.AccountID)
		if err != nil {
			return gatewayrpc.InputErr, "", err
		}
		return gatewayrpc.InputOk, formatCharacterList(chars), nil

	case "select":
		if len(parts) != 2 {
			return gatewayrpc.InputErr, "", &Error{Kind: ErrValidation, Message: "usage: select <id>"}
		}
		if err := r.SelectCharacter(ctx, sessionID, parts[1]); err != nil {
			return gatewayrpc.InputErr, "", err
		}
		return gatewayrpc.InputOk, "", nil

	case "create":
		entry.mu.Lock()
		entry.state = CharacterCreation{AccountID: st.AccountID, Builder: CharacterBuilder{}}
		entry.mu.Unlock()
		return gatewayrpc.InputOk, "", nil

	case "delete":
		if len(parts) != 2 {
			return gatewayrpc.InputErr, "", &Error{Kind: ErrValidation, Message: "usage: delete <id>"}
		}
		owns, err := r.characters.Owns(ctx, st.AccountID, parts[1])
		if err != nil {
			return gatewayrpc.InputErr, "", err
		}
		if !owns {
			return gatewayrpc.InputErr, "", &Error{Kind: ErrValidation, Message: "no such character"}
		}
		if err := r.characters.DeleteCharacter(ctx, st.AccountID, parts[1]); err != nil {
			return gatewayrpc.InputErr, "", err
		}
		return gatewayrpc.InputOk, "", nil

	case "quit":
		return gatewayrpc.InputQuit, "", nil

	default:
		return gatewayrpc.InputErr, "", &Error{Kind: ErrValidation, Message: "unknown command: " + parts[0]}
	}
}

func formatCharacterList(chars []gatewayrpc.CharacterSummary) string {
	if len(chars) == 0 {
		return "(no characters)"
	}
	var b strings.Builder
	for i, c := range chars {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(c.CharacterID + ": " + c.Name + " (level " + strconv.Itoa(c.Level) + ")")
	}
	return b.String()
}

// handleCharacterCreationInput implements builder mutations plus
// {show, help, finalize, cancel} per spec.md §4.6.
func (r *Router) handleCharacterCreationInput(ctx context.Context, sessionID ids.SessionId, entry *sessionEntry, st CharacterCreation, input string) (gatewayrpc.InputOutcome, string, error) {
	parts := fields(input)
	if len(parts) == 0 {
		return gatewayrpc.InputErr, "", &Error{Kind: ErrValidation, Message: "empty command"}
	}

	b := st.Builder
	switch parts[0] {
	case "name":
		if len(parts) < 2 {
			return gatewayrpc.InputErr, "", &Error{Kind: ErrValidation, Message: "usage: name <name>"}
		}
		b.Name = strings.Join(parts[1:], " ")
	case "class":
		id, err := parseInt(parts, 1, "class")
		if err != nil {
			return gatewayrpc.InputErr, "", err
		}
		b.ClassID = id
	case "hair":
		if len(parts) != 3 {
			return gatewayrpc.InputErr, "", &Error{Kind: ErrValidation, Message: "usage: hair <style> <color>"}
		}
		style, err := strconv.Atoi(parts[1])
		if err != nil {
			return gatewayrpc.InputErr, "", &Error{Kind: ErrValidation, Message: "hair style must be a number"}
		}
		color, err := strconv.Atoi(parts[2])
		if err != nil {
			return gatewayrpc.InputErr, "", &Error{Kind: ErrValidation, Message: "hair color must be a number"}
		}
		b.HairStyle, b.HairColor = style, color
	case "face":
		id, err := parseInt(parts, 1, "face")
		if err != nil {
			return gatewayrpc.InputErr, "", err
		}
		b.Face = id
	case "male":
		b.IsFemale = false
	case "female":
		b.IsFemale = true
	case "show":
		return gatewayrpc.InputOk, b.Describe(), nil
	case "help":
		return gatewayrpc.InputOk, "commands: name, class, hair, face, male, female, show, finalize, cancel", nil
	case "cancel":
		entry.mu.Lock()
		entry.state = CharacterSelection{AccountID: st.AccountID}
		entry.mu.Unlock()
		return gatewayrpc.InputOk, "", nil
	case "finalize":
		if err := b.Validate(); err != nil {
			return gatewayrpc.InputErr, "", err
		}
		characterID, err := r.characters.CreateCharacter(ctx, st.AccountID, b)
		if err != nil {
			return gatewayrpc.InputErr, "", err
		}
		entry.mu.Lock()
		entry.state = Playing{AccountID: st.AccountID, CharacterID: characterID}
		entry.mu.Unlock()
		return gatewayrpc.InputOk, characterID, nil
	default:
		return gatewayrpc.InputErr, "", &Error{Kind: ErrValidation, Message: "unknown command: " + parts[0]}
	}

	entry.mu.Lock()
	entry.state = CharacterCreation{AccountID: st.AccountID, Builder: b}
	entry.mu.Unlock()
	return gatewayrpc.InputOk, "", nil
}

func parseInt(parts []string, idx int, field string) (int, error) {
	if len(parts) <= idx {
		return 0, &Error{Kind: ErrValidation, Message: "usage: " + field + " <id>"}
	}
	n, err := strconv.Atoi(parts[idx])
	if err != nil {
		return 0, &Error{Kind: ErrValidation, Message: field + " must be a number"}
	}
	return n, nil
}

// handlePlayingInput hands input to the external command system, which is
// out of scope for this core (spec.md §1 Non-goals, §4.6). The two
// commands handled here are router bookkeeping, not game logic: quit ends
// the session, and edit demonstrates the BeginEditing transition the
// world is responsible for driving.
func (r *Router) handlePlayingInput(ctx context.Context, sessionID ids.SessionId, entry *sessionEntry, st Playing, input string) (gatewayrpc.InputOutcome, string, error) {
	parts := fields(input)
	if len(parts) == 0 {
		return gatewayrpc.InputOk, "", nil
	}

	switch parts[0] {
	case "quit":
		return gatewayrpc.InputQuit, "", nil

	case "edit":
		title := "untitled"
		if len(parts) > 1 {
			title = strings.Join(parts[1:], " ")
		}
		handle := sessionID.String()
		if err := r.notify.BeginEditing(ctx, sessionID, title, "", handle); err != nil {
			return gatewayrpc.InputErr, "", err
		}
		entry.mu.Lock()
		entry.state = Editing{
			AccountID:   st.AccountID,
			CharacterID: st.CharacterID,
			Pending: EditContext{
				Title:              title,
				OriginOpaqueHandle: handle,
				OnComplete: func(ctx context.Context, content string, saved bool) output.Record {
					if saved {
						return output.Record{Text: "saved: " + content, Kind: output.KindSystem}
					}
					return output.Record{Text: "edit cancelled", Kind: output.KindSystem}
				},
			},
		}
		entry.mu.Unlock()
		return gatewayrpc.InputOk, "", nil

	default:
		// The external command system is out of scope; an InputOk with no
		// reply text acknowledges receipt without interpreting the command.
		return gatewayrpc.InputOk, "", nil
	}
}

// handleEditingInput implements spec.md §4.6's Editing state: exactly one
// kind of input, the save/cancel marker, resolved via the pending edit
// context's completion callback before returning to Playing
// unconditionally (S3/S4 in spec.md §8).
func (r *Router) handleEditingInput(ctx context.Context, sessionID ids.SessionId, entry *sessionEntry, st Editing, input string) (gatewayrpc.InputOutcome, string, error) {
	saved, content, isMarker := protocol.DecodeEditMarker(input)
	if !isMarker {
		return gatewayrpc.InputErr, "", &Error{Kind: ErrIllegalCommand, Message: "only the edit save/cancel marker is accepted while editing"}
	}

	rec := st.Pending.OnComplete(ctx, content, saved)

	entry.mu.Lock()
	entry.state = Playing{AccountID: st.AccountID, CharacterID: st.CharacterID}
	entry.mu.Unlock()

	if err := r.notify.SendOutput(ctx, sessionID, rec); err != nil {
		return gatewayrpc.InputErr, "", err
	}
	return gatewayrpc.InputOk, "", nil
}
