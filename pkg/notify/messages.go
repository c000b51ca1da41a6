package notify

import (
	"fmt"
	"strings"

	"github.com/kumc-bmi/heron-portal/pkg/enterprise"
	"github.com/kumc-bmi/heron-portal/pkg/records"
)

// FilingNotice tells the review committee about a new filing. One
// notice covers the whole batch.
func FilingNotice(sponsor enterprise.Agent, title string, rows []records.Sponsorship, reviewerEmails []string) Message {
	var subjects []string
	for _, r := range rows {
		if r.Employee {
			subjects = append(subjects, r.UserID)
		} else {
			desc := ""
			if r.UserDescription != nil {
				desc = " (" + *r.UserDescription + ")"
			}
			subjects = append(subjects, r.UserID+desc+" [non-employee]")
		}
	}

	body := fmt.Sprintf(`A new HERON sponsorship request is awaiting review.

Project: %s
Sponsor: %s <%s>
Access type: %s
Sponsored users:
  %s

Please sign in to the HERON portal to review this request.`,
		title, sponsor.FullName(), sponsor.Email, rows[0].AccessType,
		strings.Join(subjects, "\n  "))

	return Message{
		To:      reviewerEmails,
		Subject: fmt.Sprintf("HERON sponsorship request: %s", title),
		Body:    body,
	}
}

// ApprovalNotice tells a user, with the sponsor copied, that every
// organization approved their access.
func ApprovalNotice(user, sponsor enterprise.Agent, title string) Message {
	body := fmt.Sprintf(`%s,

Your sponsored access to HERON for the project "%s" has been approved
by all reviewing organizations. You may now sign in to the HERON portal
and query the repository.

Remember that HERON data is for preparatory-to-research use only.

Sponsor: %s <%s>`,
		user.FullName(), title, sponsor.FullName(), sponsor.Email)

	return Message{
		To:      []string{user.Email},
		Cc:      []string{sponsor.Email},
		Subject: fmt.Sprintf("HERON access approved: %s", title),
		Body:    body,
	}
}

// DeferralNotice tells a user an organization deferred their request.
// Deferral is not final; the request stays in that org's queue.
func DeferralNotice(user, sponsor enterprise.Agent, title string, org records.Org) Message {
	body := fmt.Sprintf(`%s,

Your sponsored access to HERON for the project "%s" has been deferred
by the %s reviewer pending further discussion. Your sponsor may be
contacted for additional information. No action is needed from you at
this time.

Sponsor: %s <%s>`,
		user.FullName(), title, strings.ToUpper(string(org)), sponsor.FullName(), sponsor.Email)

	return Message{
		To:      []string{user.Email},
		Cc:      []string{sponsor.Email},
		Subject: fmt.Sprintf("HERON access deferred: %s", title),
		Body:    body,
	}
}

// ExpirationNotice tells a sponsor that a sponsorship lapsed
func ExpirationNotice(sponsor enterprise.Agent, sp records.Sponsorship) Message {
	body := fmt.Sprintf(`%s,

The HERON sponsorship below has expired. The sponsored user no longer
has access to the repository. File a new sponsorship request if access
is still needed.

Project: %s
Sponsored user: %s
Expired: %s`,
		sponsor.FullName(), sp.Title, sp.UserID, sp.Expires.Format("01/02/2006"))

	return Message{
		To:      []string{sponsor.Email},
		Subject: fmt.Sprintf("HERON sponsorship expired: %s", sp.Title),
		Body:    body,
	}
}

// ReminderNotice nudges reviewers about requests pending too long
func ReminderNotice(reviewerEmails []string, pending []records.Sponsorship) Message {
	var lines []string
	for _, sp := range pending {
		lines = append(lines, fmt.Sprintf("%s — %s (filed %s)",
			sp.Title, sp.UserID, sp.CreatedAt.Format("01/02/2006")))
	}

	body := fmt.Sprintf(`The following HERON sponsorship requests are still awaiting review:

  %s

Please sign in to the HERON portal to act on them.`,
		strings.Join(lines, "\n  "))

	return Message{
		To:      reviewerEmails,
		Subject: fmt.Sprintf("HERON: %d sponsorship request(s) awaiting review", len(pending)),
		Body:    body,
	}
}
