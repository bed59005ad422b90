package service

import (
	"github.com/atinyakov/DocLedger/internal/models"
)

// Action names an operation subject to authorization.
type Action string

const (
	ActionMint     Action = "mint"
	ActionTransfer Action = "transfer"
	ActionBurn     Action = "burn"
	ActionListAll  Action = "list_all"
)

// Policy decides who may perform registry actions.
type Policy struct {
	// AdminOnlyMint restricts minting to admins. When false, any
	// authenticated identity may mint documents it owns itself.
	AdminOnlyMint bool
}

// Authorize reports whether identity may perform action on doc.
// doc is the record as it stands inside the serialized update, or the
// record about to be created for ActionMint; it is ignored for ActionListAll.
func (p Policy) Authorize(identity models.Identity, doc *models.Document, action Action) error {
	if identity.ID == "" {
		return models.ErrUnauthenticated
	}
	if identity.IsAdmin {
		return nil
	}

	switch action {
	case ActionListAll:
		return models.ErrUnauthorized
	case ActionMint:
		if p.AdminOnlyMint || doc == nil || doc.Owner != identity.ID {
			return models.ErrUnauthorized
		}
		return nil
	case ActionTransfer, ActionBurn:
		if doc == nil || doc.Owner != identity.ID {
			return models.ErrUnauthorized
		}
		return nil
	default:
		return models.ErrUnauthorized
	}
}
