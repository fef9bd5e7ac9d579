package commands

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	sosv1 "github.com/wolfeidau/beacon/api/sosv1"
	"github.com/wolfeidau/beacon/internal/client"
	"github.com/wolfeidau/beacon/internal/logger"
)

type Globals struct {
	Debug   bool
	Version string
}

// stdout is swapped by tests.
var stdout io.Writer = os.Stdout

// ClientFlags are shared by every command talking to the server.
type ClientFlags struct {
	Server   string        `help:"Server URL" default:"http://localhost:8080" env:"BEACON_SERVER"`
	Timeout  time.Duration `help:"RPC timeout" default:"30s"`
	Compress bool          `help:"gzip requests" default:"false"`
}

func (f *ClientFlags) clients(globals *Globals) (*client.Clients, error) {
	if globals.Debug {
		logger.Setup(true)
	}

	clients, err := client.NewClients(client.Config{
		ServerURL: f.Server,
		Timeout:   f.Timeout,
		Debug:     globals.Debug,
		Compress:  f.Compress,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create clients: %w", err)
	}
	return clients, nil
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func printSession(w io.Writer, s *sosv1.Session) {
	fmt.Fprintf(w, "Session:      %s\n", s.SessionID)
	fmt.Fprintf(w, "User:         %s\n", s.UserID)
	fmt.Fprintf(w, "State:        %s\n", strings.ToUpper(s.State))
	fmt.Fprintf(w, "Trigger:      %s\n", s.TriggerType)
	fmt.Fprintf(w, "Created:      %s\n", formatTime(&s.CreatedAt))
	fmt.Fprintf(w, "Activated:    %s\n", formatTime(s.ActivatedAt))
	fmt.Fprintf(w, "Deactivated:  %s\n", formatTime(s.DeactivatedAt))

	if loc := s.LatestLocation; loc != nil {
		fmt.Fprintf(w, "Location:     %.6f,%.6f ±%.0fm at %s\n", loc.Latitude, loc.Longitude, loc.Accuracy, formatTime(&loc.CapturedAt))
	} else {
		fmt.Fprintf(w, "Location:     pending\n")
	}

	fmt.Fprintf(w, "Notified:     %d contact(s) %s\n", len(s.NotifiedContactIDs), strings.Join(s.NotifiedContactIDs, ", "))

	if len(s.Deliveries) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "%-12s %-20s %-10s %-8s %-10s %s\n", "Contact", "Kind", "Status", "Attempt", "Channel", "Last Error")
		fmt.Fprintln(w, strings.Repeat("─", 80))
		for _, d := range s.Deliveries {
			kind := d.Kind
			if d.Sequence > 0 {
				kind = fmt.Sprintf("%s#%d", d.Kind, d.Sequence)
			}
			fmt.Fprintf(w, "%-12s %-20s %-10s %-8d %-10s %s\n", d.ContactID, kind, d.Status, d.Attempt, d.Channel, d.LastError)
		}
	}

	for _, f := range s.Failures {
		fmt.Fprintf(w, "FAILED: contact %s (%s) after %d attempt(s): %s\n", f.ContactID, f.Kind, f.Attempts, f.LastError)
	}
}

func printSessions(w io.Writer, userID string, sessions []*sosv1.Session) {
	fmt.Fprintf(w, "SOS history for %s:\n", userID)

	if len(sessions) == 0 {
		fmt.Fprintln(w, "No sessions found.")
		return
	}

	fmt.Fprintf(w, "%-36s %-14s %-8s %-20s %-20s %s\n", "Session ID", "State", "Trigger", "Created At", "Deactivated At", "Notified")
	fmt.Fprintln(w, strings.Repeat("─", 115))

	for _, s := range sessions {
		fmt.Fprintf(w, "%-36s %-14s %-8s %-20s %-20s %d\n",
			s.SessionID,
			strings.ToUpper(s.State),
			s.TriggerType,
			formatTime(&s.CreatedAt),
			formatTime(s.DeactivatedAt),
			len(s.NotifiedContactIDs))
	}

	fmt.Fprintf(w, "\nTotal sessions: %d\n", len(sessions))
}
