package main

import (
	"fmt"
	"strings"

	ics "github.com/arran4/golang-ical"

	"github.com/julis-sh/intranet/shared/models"
)

// floatingStamp formats a day and HH:MM as a floating iCalendar date-time
func floatingStamp(d models.Date, clock string) string {
	return d.Format("20060102") + "T" + strings.ReplaceAll(clock, ":", "") + "00"
}

// singleLine keeps newlines out of summary and location
func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// renderICal publishes events as a VCALENDAR. Events without a start time are
// all-day events with an exclusive end date. contact is the mailbox given as
// the organizer address; without it no ORGANIZER is written.
func renderICal(events []models.Event, contact string) string {
	cal := ics.NewCalendar()
	cal.SetProductId("-//JuLis Intranet//Kalender//DE")
	cal.SetCalscale("GREGORIAN")
	cal.SetMethod(ics.MethodPublish)
	cal.SetXWRCalName("JuLis Kalender")

	for _, e := range events {
		ev := cal.AddEvent(fmt.Sprintf("event-%s@julis-intranet", e.ID))
		ev.SetDtStampTime(e.CreatedAt.UTC())

		if e.StartTime == "" {
			ev.SetAllDayStartAt(e.StartDate.Time)
			if e.EndDate != nil {
				ev.SetAllDayEndAt(e.EndDate.AddDate(0, 0, 1))
			}
		} else {
			ev.SetProperty(ics.ComponentPropertyDtStart, floatingStamp(e.StartDate, e.StartTime))
			switch {
			case e.EndTime != "":
				day := e.StartDate
				if e.EndDate != nil {
					day = *e.EndDate
				}
				ev.SetProperty(ics.ComponentPropertyDtEnd, floatingStamp(day, e.EndTime))
			case e.EndDate != nil:
				ev.SetProperty(ics.ComponentPropertyDtEnd, floatingStamp(*e.EndDate, "23:59"))
			}
		}

		ev.SetSummary(singleLine(e.Title))
		if e.Organizer != "" && contact != "" {
			ev.SetProperty(ics.ComponentPropertyOrganizer, "mailto:"+contact, ics.WithCN(singleLine(e.Organizer)))
		}
		if e.Description != "" {
			ev.SetDescription(e.Description)
		}
		if e.Location != "" {
			ev.SetLocation(singleLine(e.Location))
		}
		if e.LocationURL != "" {
			ev.SetURL(e.LocationURL)
		}
	}

	return cal.Serialize()
}
