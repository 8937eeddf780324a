// Package cooldown tracks RPG ability cooldowns reported by a game bot and
// pings the owner when each one expires.
//
// A report is parsed into records (label + absolute expiry). The Supervisor
// keeps at most one active Group per owner: a newer report cancels the
// previous group and waits for it to drain before the new group is installed,
// so a superseded report never produces a notification after its successor
// was accepted.
package cooldown
