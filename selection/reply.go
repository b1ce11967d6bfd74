package selection

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/C0nstantin/mailrelay/transport/ldap"
)

const selectPrefix = "select_"

// Button is a selectable option attached to a reply.
type Button struct {
	Label   string
	Payload string
}

// Reply is what the chat transport shows the user. Edit asks the transport
// to replace the message the user pressed a button on instead of sending a
// new one.
type Reply struct {
	Text    string
	Buttons []Button
	Edit    bool
}

func text(format string, args ...interface{}) Reply {
	return Reply{Text: fmt.Sprintf(format, args...)}
}

// SelectPayload is the button payload for candidate index i.
func SelectPayload(i int) string {
	return selectPrefix + strconv.Itoa(i)
}

// ParseSelectPayload extracts the candidate index from a button payload.
func ParseSelectPayload(payload string) (int, bool) {
	if !strings.HasPrefix(payload, selectPrefix) {
		return 0, false
	}
	i, err := strconv.Atoi(strings.TrimPrefix(payload, selectPrefix))
	if err != nil || i < 0 {
		return 0, false
	}
	return i, true
}

func label(c ldap.Candidate) string {
	switch {
	case c.DisplayName == "":
		return c.Email
	case c.Email == "":
		return c.DisplayName
	}
	return fmt.Sprintf("%s (%s)", c.DisplayName, c.Email)
}

func candidateButtons(candidates []ldap.Candidate) []Button {
	buttons := make([]Button, len(candidates))
	for i, c := range candidates {
		buttons[i] = Button{Label: label(c), Payload: SelectPayload(i)}
	}
	return buttons
}

const (
	msgStart = "Hi! This bot forwards your messages to %s by email.\n" +
		"1. Find yourself with /find <surname>\n" +
		"2. Pick your entry from the list\n" +
		"3. Send the text of the message\n\n" +
		"Commands:\n/start - start over\n/help - help\n/find <surname> - search the directory\n/cancel - cancel the current selection"
	msgStartDirect = "Hi! Send a text message and it will be forwarded to %s by email.\n\n" +
		"Commands:\n/start - start over\n/help - help"
	msgHelp = "The bot relays text messages to %s by email, sent on behalf of the person you choose in the directory.\n" +
		"Use /find <surname>, choose a sender, then write the message. /cancel drops the current selection."
	msgHelpDirect = "The bot relays text messages to %s by email. Just write the text."

	msgFindUsage       = "Usage: /find <surname>"
	msgDirectoryOff    = "Sender search is not configured, just send the text."
	msgNotFound        = "Nobody with surname %q was found."
	msgTooMany         = "Too many matches (more than %d). Please refine the query."
	msgChoose          = "Found %d. Choose the sender:"
	msgExpired         = "The session has expired. Start over with /find <surname>."
	msgInvalid         = "Invalid selection. Choose one of the listed entries or start over with /find <surname>."
	msgNoEmail         = "%s has no email address in the directory. Choose another entry."
	msgChosen          = "Sender: %s\nNow send the text of the message."
	msgAskText         = "Please send a text message."
	msgNeedFind        = "First choose a sender: /find <surname>."
	msgSent            = "Email sent on behalf of %s."
	msgSentDirect      = "Email sent."
	msgFailed          = "Could not send the email. Please try again later, starting over with /find <surname>."
	msgFailedDirect    = "Could not send the email. Please try again later."
	msgCancelled       = "Cancelled."
	msgNothingToCancel = "Nothing to cancel."
)
