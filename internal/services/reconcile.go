// Package services – reconciliation core
//
// This file implements the pure transformation step of the lead sync
// pipeline: deduplicating raw platform replies by responder email and mapping
// the survivors onto canonical Lead rows. It has no I/O so the dedupe and
// mapping rules can be tested exhaustively in isolation.
package services

import (
	"strconv"
	"strings"
	"time"

	"github.com/leadpulse/marketing-ops-backend/internal/bison"
	"github.com/leadpulse/marketing-ops-backend/internal/domain"
)

// PlaceholderEmail stands in for replies whose sender address is blank.
// Such replies are kept, not dropped, so the dedupe key stays total.
const PlaceholderEmail = "unknown@email.com"

// ExternalIDPrefix namespaces lead external ids derived from reply ids.
const ExternalIDPrefix = "bison_reply_"

// DedupeReplies collapses replies to one per responder email, keeping the
// reply with the highest id. Emails compare case-insensitively; blank emails
// share the placeholder key and therefore also collapse to one survivor.
// Input order does not affect the outcome.
func DedupeReplies(replies []bison.Reply) []bison.Reply {
	byEmail := make(map[string]bison.Reply, len(replies))
	for _, r := range replies {
		key := normalizeEmail(r.FromEmailAddress)
		if prev, ok := byEmail[key]; ok && prev.ID >= r.ID {
			continue
		}
		byEmail[key] = r
	}

	out := make([]bison.Reply, 0, len(byEmail))
	for _, r := range byEmail {
		out = append(out, r)
	}
	return out
}

// MapReplies converts deduplicated replies into Lead rows for one workspace.
// inboxBase is the instance site root used for conversation deep links; the
// link is only set when the source reply carries a UUID.
func MapReplies(workspace, inboxBase string, replies []bison.Reply) []domain.Lead {
	leads := make([]domain.Lead, 0, len(replies))
	for _, r := range replies {
		leads = append(leads, mapReply(workspace, inboxBase, r))
	}
	return leads
}

func mapReply(workspace, inboxBase string, r bison.Reply) domain.Lead {
	first, last := SplitName(r.FromName)

	l := domain.Lead{
		ExternalID:    ExternalIDPrefix + itoa64(r.ID),
		WorkspaceName: workspace,
		Email:         normalizeEmail(r.FromEmailAddress),
		FirstName:     first,
		LastName:      last,
		Interested:    true,
		PipelineStage: "new",
		BisonReplyID:  r.ID,
	}

	if t := parseReplyTime(r.DateReceived); t != nil {
		l.DateReceived = t
	}
	if r.UUID != "" {
		uuid := r.UUID
		l.BisonReplyUUID = &uuid
		if inboxBase != "" {
			url := strings.TrimRight(inboxBase, "/") + "/inbox?reply_uuid=" + uuid
			l.ConversationURL = &url
		}
	}
	if r.LeadID != 0 {
		id := itoa64(r.LeadID)
		l.BisonLeadID = &id
	}
	return l
}

// SplitName separates a display name into first name (first whitespace
// delimited token) and last name (the remainder). Both are nil when the
// display name is empty or whitespace.
func SplitName(name string) (first, last *string) {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return nil, nil
	}
	f := fields[0]
	first = &f
	if len(fields) > 1 {
		l := strings.Join(fields[1:], " ")
		last = &l
	}
	return first, last
}

func normalizeEmail(email string) string {
	e := strings.ToLower(strings.TrimSpace(email))
	if e == "" {
		return PlaceholderEmail
	}
	return e
}

// parseReplyTime accepts the timestamp formats the platform has been seen to
// emit. Unparseable values map to nil rather than failing the whole reply.
func parseReplyTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			u := t.UTC()
			return &u
		}
	}
	return nil
}

func itoa64(n int64) string { return strconv.FormatInt(n, 10) }
