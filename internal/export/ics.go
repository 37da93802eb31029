// Package export renders appointments as iCalendar data.
package export

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"time"

	ics "github.com/emersion/go-ical"

	"github.com/cpuguy83/bookwatch/internal/appointment"
)

// PropOverlap names an appointment a flagged event overlaps with. It is
// repeated once per partner.
const PropOverlap = "X-BOOKWATCH-OVERLAP"

const productID = "-//Bookwatch//Bookwatch//EN"

// Event builds a VEVENT for a single appointment. partners are the ids of
// the appointments it directly overlaps; none means it is not flagged.
func Event(a appointment.Appointment, partners []string, stamp time.Time) *ics.Component {
	comp := ics.NewComponent(ics.CompEvent)

	comp.Props.SetText(ics.PropUID, a.ID+"@bookwatch")
	comp.Props.SetText(ics.PropSummary, a.Title)
	comp.Props.SetDateTime(ics.PropDateTimeStamp, stamp.UTC())
	comp.Props.SetDateTime(ics.PropDateTimeStart, a.DateTime.UTC())
	comp.Props.SetDateTime(ics.PropDateTimeEnd, a.End().UTC())

	if a.Description != "" {
		comp.Props.SetText(ics.PropDescription, a.Description)
	}
	if a.Location != "" {
		comp.Props.SetText(ics.PropLocation, a.Location)
	}
	if a.MeetingURL != "" {
		comp.Props.SetText(ics.PropURL, a.MeetingURL)
	}
	for _, id := range partners {
		prop := ics.NewProp(PropOverlap)
		prop.SetText(id)
		// TEXT is already the default for extension properties.
		prop.Params.Del(ics.ParamValue)
		comp.Props.Add(prop)
	}

	return comp
}

// Digest identifies the content of the event Event would build for a,
// leaving out DTSTAMP. Equal digests mean the event has not changed.
func Digest(a appointment.Appointment, partners []string) string {
	h := sha256.New()
	writeDigest(h, a, partners)
	return hex.EncodeToString(h.Sum(nil))
}

// CalendarDigest is Digest over a whole calendar.
func CalendarDigest(appts []appointment.Appointment, pairs []appointment.Pair) string {
	h := sha256.New()
	for _, a := range appts {
		writeDigest(h, a, appointment.Partners(pairs, a.ID))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writeDigest(h hash.Hash, a appointment.Appointment, partners []string) {
	fmt.Fprintf(h, "%q %q %d %d %q %q %q %d",
		a.ID, a.Title, a.DateTime.Unix(), a.End().Unix(),
		a.Description, a.Location, a.MeetingURL, len(partners))
	for _, id := range partners {
		fmt.Fprintf(h, " %q", id)
	}
	h.Write([]byte{'\n'})
}

// Calendar builds a VCALENDAR holding one event per appointment.
func Calendar(appts []appointment.Appointment, pairs []appointment.Pair, stamp time.Time) *ics.Calendar {
	cal := ics.NewCalendar()
	cal.Props.SetText(ics.PropVersion, "2.0")
	cal.Props.SetText(ics.PropProductID, productID)

	for _, a := range appts {
		cal.Children = append(cal.Children, Event(a, appointment.Partners(pairs, a.ID), stamp))
	}
	return cal
}

// Encode writes appointments as an iCalendar stream.
func Encode(w io.Writer, appts []appointment.Appointment, pairs []appointment.Pair, stamp time.Time) error {
	if err := ics.NewEncoder(w).Encode(Calendar(appts, pairs, stamp)); err != nil {
		return fmt.Errorf("encode ICS: %w", err)
	}
	return nil
}

// WriteICS writes appointments to path atomically.
func WriteICS(path string, appts []appointment.Appointment, pairs []appointment.Pair) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	var buf bytes.Buffer
	if err := Encode(&buf, appts, pairs, time.Now()); err != nil {
		return err
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
