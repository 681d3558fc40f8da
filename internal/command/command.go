// Package command parses chat commands and inline-button callback data into
// typed requests, so malformed input is rejected before any escrow lookup
// happens.
package command

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind names one supported command.
type Kind string

const (
	KindStart         Kind = "start"
	KindInitiate      Kind = "initiate"
	KindList          Kind = "list"
	KindBuyerConfirm  Kind = "confirm"
	KindSellerRelease Kind = "release"
	KindCancel        Kind = "cancel"
	// KindSellerConfirm only arrives via the inline "I am the Seller"
	// button on the initiation message.
	KindSellerConfirm Kind = "seller_confirm"
)

// Command is a parsed request. Fields beyond Kind are set only where the
// command carries them.
type Command struct {
	Kind         Kind
	EscrowID     int64
	Amount       string
	Description  string
	SellerHandle string
}

const (
	usageInitiate = "Usage: /initiate <amount> <description> @seller_username\nExample: /initiate 100 USD for laptop @seller123"
	usageConfirm  = "Usage: /confirm <escrow_id>"
	usageRelease  = "Usage: /release <escrow_id>"
	usageCancel   = "Usage: /cancel <escrow_id>"
)

// InvalidInputError reports malformed command input along with the usage
// string to show the user.
type InvalidInputError struct {
	Reason string
	Usage  string
}

func (e *InvalidInputError) Error() string {
	return "invalid input: " + e.Reason
}

// ErrNotACommand marks text that is not addressed to the bot at all.
type notACommandError struct{}

func (notACommandError) Error() string { return "not a command" }

var ErrNotACommand error = notACommandError{}

// Parse turns a message text into a Command. Non-command text yields
// ErrNotACommand; a recognized command with bad arguments yields
// *InvalidInputError.
func Parse(text string) (Command, error) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return Command{}, ErrNotACommand
	}
	fields := strings.Fields(text)
	name := strings.ToLower(fields[0])
	// Commands may be addressed as /cmd@BotName in groups.
	if i := strings.IndexByte(name, '@'); i > 0 {
		name = name[:i]
	}
	args := fields[1:]

	switch name {
	case "/start":
		return Command{Kind: KindStart}, nil
	case "/list":
		return Command{Kind: KindList}, nil
	case "/initiate":
		return parseInitiate(args)
	case "/confirm":
		return parseWithID(KindBuyerConfirm, args, usageConfirm)
	case "/release":
		return parseWithID(KindSellerRelease, args, usageRelease)
	case "/cancel":
		return parseWithID(KindCancel, args, usageCancel)
	default:
		return Command{}, ErrNotACommand
	}
}

func parseInitiate(args []string) (Command, error) {
	if len(args) < 3 {
		return Command{}, &InvalidInputError{Reason: "initiate needs an amount, a description, and a seller", Usage: usageInitiate}
	}
	seller := args[len(args)-1]
	if !strings.HasPrefix(seller, "@") || len(seller) < 2 {
		return Command{}, &InvalidInputError{Reason: "seller must be a @username", Usage: usageInitiate}
	}
	return Command{
		Kind:         KindInitiate,
		Amount:       args[0],
		Description:  strings.Join(args[1:len(args)-1], " "),
		SellerHandle: seller,
	}, nil
}

func parseWithID(kind Kind, args []string, usage string) (Command, error) {
	if len(args) != 1 {
		return Command{}, &InvalidInputError{Reason: fmt.Sprintf("%s needs exactly one escrow id", kind), Usage: usage}
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return Command{}, &InvalidInputError{Reason: "invalid escrow ID", Usage: usage}
	}
	return Command{Kind: kind, EscrowID: id}, nil
}

// Callback data attached to the inline keyboard on initiation messages.
const (
	callbackSellerConfirmPrefix = "seller_confirm_"
	callbackCancelPrefix        = "cancel_"
)

// SellerConfirmCallback builds the callback data for the "I am the Seller"
// button of an escrow.
func SellerConfirmCallback(escrowID int64) string {
	return callbackSellerConfirmPrefix + strconv.FormatInt(escrowID, 10)
}

// CancelCallback builds the callback data for the "Cancel" button of an
// escrow.
func CancelCallback(escrowID int64) string {
	return callbackCancelPrefix + strconv.FormatInt(escrowID, 10)
}

// ParseCallback turns inline-button callback data into a Command.
func ParseCallback(data string) (Command, error) {
	data = strings.TrimSpace(data)
	switch {
	case strings.HasPrefix(data, callbackSellerConfirmPrefix):
		return callbackWithID(KindSellerConfirm, strings.TrimPrefix(data, callbackSellerConfirmPrefix))
	case strings.HasPrefix(data, callbackCancelPrefix):
		return callbackWithID(KindCancel, strings.TrimPrefix(data, callbackCancelPrefix))
	default:
		return Command{}, &InvalidInputError{Reason: fmt.Sprintf("unknown callback %q", data)}
	}
}

func callbackWithID(kind Kind, raw string) (Command, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return Command{}, &InvalidInputError{Reason: "invalid escrow ID"}
	}
	return Command{Kind: kind, EscrowID: id}, nil
}
