package model

import "strings"

// remoteStates maps both the numeric state codes and the lowercase string
// forms observed on the wire to the internal ticket status. The remote
// system emits either depending on API version.
var remoteStates = map[string]TicketStatus{
	"1":           TicketStatusNew,
	"2":           TicketStatusInProgress,
	"3":           TicketStatusOnHold,
	"4":           TicketStatusResolved,
	"5":           TicketStatusClosed,
	"6":           TicketStatusCancelled,
	"new":         TicketStatusNew,
	"in_progress": TicketStatusInProgress,
	"on_hold":     TicketStatusOnHold,
	"resolved":    TicketStatusResolved,
	"closed":      TicketStatusClosed,
	"cancelled":   TicketStatusCancelled,
}

// MapRemoteState translates a remote state representation into the internal
// ticket status. It is total: unrecognized values map to TicketStatusNew
// and ok=false so the caller can preserve the raw value for audit. Matching
// is case-insensitive and whitespace-tolerant.
func MapRemoteState(raw string) (status TicketStatus, ok bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if s, found := remoteStates[key]; found {
		return s, true
	}
	return TicketStatusNew, false
}
