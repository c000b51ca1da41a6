// Package api is the portal's JSON HTTP surface: login and logout,
// the onboarding checklist, agreement signing, disclaimer
// acknowledgement, directory search, and the sponsorship workflow
// endpoints. Handlers return typed JSON, never HTML; presentation is a
// separate front end.
package api
