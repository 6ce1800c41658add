package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/hamed0406/uptimemonitor/internal/domain"
)

type statusRow struct {
	ID                  string               `json:"id"`
	Name                string               `json:"name"`
	Kind                string               `json:"kind"`
	Address             string               `json:"address"`
	InFlight            bool                 `json:"in_flight"`
	ConsecutiveFailures int                  `json:"consecutive_failures"`
	NextDue             time.Time            `json:"next_due"`
	Down                bool                 `json:"down"`
	OpenIncident        *domain.Incident     `json:"open_incident"`
	LastOutcome         *domain.CheckOutcome `json:"last_outcome"`
}

type statusResponse struct {
	Running  int         `json:"running"`
	Targets  []statusRow `json:"targets"`
	Recorder struct {
		Degraded bool `json:"degraded"`
	} `json:"recorder"`
}

func main() {
	api := os.Getenv("API_BASE")
	if api == "" {
		api = "http://localhost:8080"
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(api + "/api/status")
	if err != nil {
		fmt.Println("Error contacting monitor:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		fmt.Println("Monitor returned status:", resp.Status)
		os.Exit(1)
	}

	var st statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		fmt.Println("Invalid response:", err)
		os.Exit(1)
	}

	now := time.Now()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TARGET\tKIND\tSTATE\tLATENCY\tDOWN FOR\tLAST ERROR")
	for _, t := range st.Targets {
		label := t.Name
		if label == "" {
			label = t.ID
		}
		state, latency, downFor, lastErr := "UP", "-", "-", ""
		if t.Down {
			state = "DOWN"
			if t.OpenIncident != nil {
				downFor = domain.FormatDuration(t.OpenIncident.Duration(now))
			}
		}
		if t.InFlight {
			state += "*"
		}
		if o := t.LastOutcome; o != nil {
			latency = fmt.Sprintf("%.0f ms", o.LatencyMS)
			lastErr = o.Error
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", label, t.Kind, state, latency, downFor, lastErr)
	}
	_ = w.Flush()

	fmt.Printf("\n%d checks running", st.Running)
	if st.Recorder.Degraded {
		fmt.Print(", history store DEGRADED")
	}
	fmt.Println()
}
