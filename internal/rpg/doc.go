// Package rpg connects chat messages to the cooldown supervisor.
//
// It recognises game bot messages (cooldown reports and server events),
// resolves report owners against the chat, decides eligibility from the RPG
// role and turns expirations into pings. It also serves the /rpg command.
package rpg
