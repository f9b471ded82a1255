package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

const usage = `Usage: clippyctl [-server URL] <command> [args]

Commands:
  status              monitor and sink status
  dismiss             dismiss the current suggestion
  activity            report user activity (resets idle time)
  app <name>          set the foreground application
  events [n]          show recent classified batches
  recall <query>      search remembered screens
  providers           list model providers with health`

func main() {
	server := flag.String("server", "http://localhost:7777", "Clippy server URL")
	label := flag.String("label", "", "Restrict recall to one classification")
	flag.Usage = func() { fmt.Fprintln(os.Stderr, usage) }
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	c := &client{base: strings.TrimRight(*server, "/"), http: &http.Client{Timeout: 30 * time.Second}}
	var err error
	switch args[0] {
	case "status":
		err = c.status()
	case "dismiss":
		err = c.dismiss()
	case "activity":
		err = c.post("/api/activity", nil, nil)
		if err == nil {
			fmt.Println("Activity recorded.")
		}
	case "app":
		if len(args) < 2 {
			err = fmt.Errorf("app requires a name")
			break
		}
		err = c.post("/api/app", map[string]string{"app": strings.Join(args[1:], " ")}, nil)
		if err == nil {
			fmt.Printf("Current app: %s\n", strings.Join(args[1:], " "))
		}
	case "events":
		n := "10"
		if len(args) > 1 {
			n = args[1]
		}
		err = c.events(n)
	case "recall":
		if len(args) < 2 {
			err = fmt.Errorf("recall requires a query")
			break
		}
		err = c.recall(strings.Join(args[1:], " "), *label)
	case "providers":
		err = c.providers()
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}

type client struct {
	base string
	http *http.Client
}

func (c *client) get(path string, out interface{}) error {
	resp, err := c.http.Get(c.base + path)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	return decode(resp, out)
}

func (c *client) post(path string, body, out interface{}) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	resp, err := c.http.Post(c.base+path, "application/json", &buf)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	return decode(resp, out)
}

func decode(resp *http.Response, out interface{}) error {
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server error (%d): %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func (c *client) status() error {
	var st struct {
		Monitoring string `json:"monitoring"`
		Uptime     string `json:"uptime"`
		Monitor    *struct {
			Running    bool   `json:"running"`
			BatchSize  int    `json:"batch_size"`
			Pending    int    `json:"pending_frames"`
			Captured   uint64 `json:"frames_captured"`
			Dispatched uint64 `json:"batches_dispatched"`
			Dropped    uint64 `json:"batches_dropped"`
			Cycles     uint64 `json:"cycles"`
			InFlight   bool   `json:"in_flight"`
			Last       *struct {
				Classification string  `json:"classification"`
				Confidence     float64 `json:"confidence"`
				Agent          string  `json:"agent"`
				Decision       string  `json:"decision"`
			} `json:"last_cycle"`
		} `json:"monitor"`
		Sinks []struct {
			Name      string `json:"name"`
			Connected bool   `json:"connected"`
			Error     string `json:"error"`
			Details   string `json:"details"`
		} `json:"sinks"`
	}
	if err := c.get("/api/status", &st); err != nil {
		return err
	}

	fmt.Printf("Monitoring: %s (up %s)\n", st.Monitoring, st.Uptime)
	if m := st.Monitor; m != nil {
		fmt.Printf("  frames %d/%d pending, %d captured\n", m.Pending, m.BatchSize, m.Captured)
		fmt.Printf("  batches %d dispatched, %d dropped, %d cycles", m.Dispatched, m.Dropped, m.Cycles)
		if m.InFlight {
			fmt.Print(" (cycle running)")
		}
		fmt.Println()
		if l := m.Last; l != nil {
			fmt.Printf("  last: %s %.2f", l.Classification, l.Confidence)
			if l.Agent != "" {
				fmt.Printf(" -> %s", l.Agent)
			}
			if l.Decision != "" {
				fmt.Printf(" [%s]", l.Decision)
			}
			fmt.Println()
		}
	}
	fmt.Println("Sinks:")
	for _, s := range st.Sinks {
		icon := "\033[31m✗\033[0m"
		if s.Connected {
			icon = "\033[32m✓\033[0m"
		}
		fmt.Printf("  %s %s", icon, s.Name)
		if s.Details != "" {
			fmt.Printf(": %s", s.Details)
		}
		if s.Error != "" {
			fmt.Printf(" \033[31m(%s)\033[0m", s.Error)
		}
		fmt.Println()
	}
	return nil
}

func (c *client) dismiss() error {
	var out map[string]bool
	if err := c.post("/api/suggestion/dismiss", nil, &out); err != nil {
		return err
	}
	if out["dismissed"] {
		fmt.Println("Suggestion dismissed.")
	} else {
		fmt.Println("No active suggestion.")
	}
	return nil
}

func (c *client) events(limit string) error {
	var events []struct {
		Classification string         `json:"type"`
		Confidence     float64        `json:"confidence"`
		Timestamp      time.Time      `json:"timestamp"`
		Metadata       map[string]any `json:"metadata"`
	}
	if err := c.get("/api/events?limit="+url.QueryEscape(limit), &events); err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Println("No events yet.")
		return nil
	}
	for _, e := range events {
		fmt.Printf("%s  %-8s %.2f", e.Timestamp.Local().Format("15:04:05"), e.Classification, e.Confidence)
		if d, ok := e.Metadata["decision"]; ok {
			fmt.Printf("  %v", d)
		}
		if t, ok := e.Metadata["suggestion_title"]; ok {
			fmt.Printf("  \033[36m%v\033[0m", t)
		}
		fmt.Println()
	}
	return nil
}

func (c *client) recall(query, label string) error {
	q := url.Values{"q": {query}}
	if label != "" {
		q.Set("label", label)
	}
	var hits []struct {
		Description    string    `json:"description"`
		Classification string    `json:"classification"`
		CapturedAt     time.Time `json:"captured_at"`
		Score          float32   `json:"score"`
	}
	if err := c.get("/api/recall?"+q.Encode(), &hits); err != nil {
		return err
	}
	if len(hits) == 0 {
		fmt.Println("Nothing remembered matches.")
		return nil
	}
	for i, h := range hits {
		fmt.Printf("%d. [%s, %.2f] %s\n   %s\n", i+1, h.Classification, h.Score,
			h.CapturedAt.Local().Format("2006-01-02 15:04"), h.Description)
	}
	return nil
}

func (c *client) providers() error {
	var out []struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Default bool   `json:"default"`
		Healthy *bool  `json:"healthy"`
		Error   string `json:"error"`
	}
	if err := c.get("/api/providers?check=true", &out); err != nil {
		return err
	}
	for _, p := range out {
		mark := " "
		if p.Default {
			mark = "*"
		}
		health := ""
		if p.Healthy != nil && *p.Healthy {
			health = "\033[32mhealthy\033[0m"
		} else if p.Healthy != nil {
			health = "\033[31m" + p.Error + "\033[0m"
		}
		fmt.Printf("%s %-12s %-20s %s\n", mark, p.ID, p.Name, health)
	}
	return nil
}

func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "\033[31m"+format+"\033[0m\n", args...)
}
