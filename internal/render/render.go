// Package render produces the plain-text reply bodies the bot sends back
// for each command outcome.
package render

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pagalhq/escrowbot/escrow"
)

// Welcome is the /start greeting.
func Welcome(firstName string) string {
	name := strings.TrimSpace(firstName)
	if name == "" {
		name = "there"
	}
	return fmt.Sprintf(`Welcome, %s!

I'm PagaLEscrowBot, a simple escrow service bot for secure transactions.

How it works:
1. /initiate <amount> <description> @seller - Start a new escrow (as buyer).
2. /list - List your escrows.
3. /confirm <id> - Confirm receipt (for buyer).
4. /release <id> - Release funds (for seller after confirmation).
5. /cancel <id> - Cancel an escrow.

No real funds move; this bot only tracks the state of a transaction.`, name)
}

// Initiated summarizes a freshly created escrow. The message carries the
// inline keyboard built by the transport.
func Initiated(e escrow.Escrow) string {
	return fmt.Sprintf("Escrow initiated!\nID: %d\nAmount: %s\nDescription: %s\nSeller: %s\n\nWaiting for seller confirmation.",
		e.ID, e.Amount, e.Description, e.Seller.Handle)
}

// SellerConfirmed announces the pending -> open transition.
func SellerConfirmed(e escrow.Escrow) string {
	return fmt.Sprintf("Escrow %d confirmed by seller!\nStatus: Open\nBuyer can now send payment (simulated).\nUse /confirm %d to confirm receipt.", e.ID, e.ID)
}

// ReceiptConfirmed announces the open -> confirmed transition.
func ReceiptConfirmed(e escrow.Escrow) string {
	return fmt.Sprintf("Receipt confirmed for Escrow %d!\nSeller can now release funds.\nUse /release %d.", e.ID, e.ID)
}

// Released announces the confirmed -> completed transition.
func Released(e escrow.Escrow) string {
	return fmt.Sprintf("Funds released for Escrow %d! Transaction completed.", e.ID)
}

// Cancelled announces removal of the escrow.
func Cancelled(id int64) string {
	return fmt.Sprintf("Escrow %d cancelled.", id)
}

const listDescriptionMax = 50

// List renders the caller's escrows, one row per record, with the caller's
// role in each.
func List(actor escrow.Actor, escrows []escrow.Escrow) string {
	if len(escrows) == 0 {
		return "No active escrows found."
	}
	var b strings.Builder
	b.WriteString("Your Escrows:\n")
	for _, e := range escrows {
		role := "Seller"
		if escrow.ByID(actor.ID).Equal(e.Buyer) {
			role = "Buyer"
		}
		b.WriteString(fmt.Sprintf("\nID: %d | Role: %s | Amount: %s | Status: %s | Desc: %s",
			e.ID, role, e.Amount, e.Status, truncate(e.Description, listDescriptionMax)))
	}
	return b.String()
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

// Rejection maps a typed lifecycle error to the user-facing message for the
// action that failed. Each reason stays observably distinct.
func Rejection(action escrow.Action, err error) string {
	switch {
	case errors.Is(err, escrow.ErrNotFound):
		return "Escrow not found."
	case errors.Is(err, escrow.ErrWrongRole):
		switch action {
		case escrow.ActionSellerConfirm, escrow.ActionSellerRelease:
			return "You are not the seller."
		case escrow.ActionBuyerConfirmReceipt:
			return "You are not the buyer."
		default:
			return "You are not part of this escrow."
		}
	case errors.Is(err, escrow.ErrInvalidState):
		switch action {
		case escrow.ActionSellerConfirm:
			return "Escrow already processed."
		case escrow.ActionBuyerConfirmReceipt:
			return "Escrow not open for confirmation."
		case escrow.ActionSellerRelease:
			return "Escrow not confirmed by buyer yet."
		default:
			return "Action not valid for this escrow's status."
		}
	case errors.Is(err, escrow.ErrAlreadyTerminal):
		if action == escrow.ActionCancel {
			return "Cannot cancel completed escrow."
		}
		return "Escrow already completed."
	case errors.Is(err, escrow.ErrConflict):
		return "Someone else just changed this escrow. Check /list and try again."
	default:
		return "Error: " + err.Error()
	}
}
