// Package scheduler runs the bot's maintenance jobs on cron schedules.
//
// Jobs are registered by name before or after Start; registering a name
// again replaces the previous schedule. A run that is still going when its
// next tick comes is skipped.
package scheduler
