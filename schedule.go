package webservtester

import "github.com/robfig/cron/v3"

type ScheduledRun struct {
	// Schedule defines how often a run is triggered. For the format see
	// https://pkg.go.dev/github.com/robfig/cron#hdr-CRON_Expression_Format
	Schedule string
	// EntryID identifies the cronjob
	EntryID cron.EntryID
}
