package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	flag "github.com/spf13/pflag"
)

type statusResponse struct {
	ObservedAt        time.Time     `json:"observed_at"`
	AuthErrorNotified bool          `json:"auth_error_notified"`
	LastDigest        *time.Time    `json:"last_digest,omitempty"`
	DigestInterval    string        `json:"digest_interval"`
	Devices           []deviceState `json:"devices"`
}

type deviceState struct {
	DeviceID                string     `json:"device_id"`
	Status                  string     `json:"status,omitempty"`
	Readiness               string     `json:"readiness,omitempty"`
	LastChallengeSuccessful bool       `json:"last_challenge_successful"`
	Healthy                 bool       `json:"healthy"`
	LastChecked             *time.Time `json:"last_checked,omitempty"`
	LastAlert               *time.Time `json:"last_alert,omitempty"`
	Error                   string     `json:"error,omitempty"`
}

func main() {
	statusURL := flag.String("url", envDefault("STATUS_URL", "http://127.0.0.1:8080/"), "Monitor status endpoint URL")
	timeout := flag.Duration("timeout", envDuration("STATUS_TIMEOUT", 3*time.Second), "HTTP request timeout")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	resp, err := fetchStatus(ctx, *statusURL)
	if err != nil {
		log.Fatalf("fetch status: %v", err)
	}

	printStatus(resp, os.Stdout)
}

func fetchStatus(ctx context.Context, url string) (statusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return statusResponse{}, fmt.Errorf("build request: %w", err)
	}

	client := &http.Client{}
	res, err := client.Do(req)
	if err != nil {
		return statusResponse{}, fmt.Errorf("request status: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return statusResponse{}, fmt.Errorf("unexpected status %s: %s", res.Status, strings.TrimSpace(string(body)))
	}

	var status statusResponse
	if err := json.NewDecoder(res.Body).Decode(&status); err != nil {
		return statusResponse{}, fmt.Errorf("decode response: %w", err)
	}

	return status, nil
}

func printStatus(resp statusResponse, w io.Writer) {
	if resp.ObservedAt.IsZero() {
		resp.ObservedAt = time.Now()
	}
	fmt.Fprintf(w, "Observed at: %s\n", resp.ObservedAt.Format(time.RFC3339))
	if resp.LastDigest != nil {
		fmt.Fprintf(w, "Last digest: %s (every %s)\n", resp.LastDigest.Format(time.RFC3339), resp.DigestInterval)
	} else {
		fmt.Fprintf(w, "Last digest: never (every %s)\n", resp.DigestInterval)
	}
	if resp.AuthErrorNotified {
		fmt.Fprintln(w, "API token rejected; checks are suspended until it is replaced.")
	}

	if len(resp.Devices) == 0 {
		fmt.Fprintln(w, "No devices configured.")
		return
	}

	unhealthy := 0
	fmt.Fprintln(w)

	var buf bytes.Buffer
	tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STATE\tDEVICE\tSTATUS\tREADINESS\tCHALLENGE\tLAST CHECKED\tLAST ALERT")
	for _, d := range resp.Devices {
		state := summarizeDevice(d)
		if state == "DOWN" {
			unhealthy++
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			state,
			d.DeviceID,
			fallback(d.Status, "-"),
			fallback(d.Readiness, "-"),
			challenge(d),
			formatTime(d.LastChecked),
			formatTime(d.LastAlert),
		)
	}
	_ = tw.Flush()

	out := buf.String()
	if shouldColor(w) {
		out = colorizeStates(out)
	}

	fmt.Fprint(w, out)
	for _, d := range resp.Devices {
		if d.Error != "" {
			fmt.Fprintf(w, "  %s: %s\n", d.DeviceID, d.Error)
		}
	}
	fmt.Fprintf(w, "\n%d unhealthy across %d device(s)\n", unhealthy, len(resp.Devices))
}

func summarizeDevice(d deviceState) string {
	switch {
	case d.LastChecked == nil:
		return "PENDING"
	case d.Error != "":
		return "ERROR"
	case d.Healthy:
		return "OK"
	default:
		return "DOWN"
	}
}

func challenge(d deviceState) string {
	if d.Status == "" {
		return "-"
	}
	if d.LastChallengeSuccessful {
		return "passed"
	}
	return "failed"
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Format(time.RFC3339)
}

func fallback(v, defaultVal string) string {
	if strings.TrimSpace(v) == "" {
		return defaultVal
	}
	return v
}

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func shouldColor(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" || os.Getenv("TERM") == "dumb" {
		return false
	}

	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func applyColor(s string, colorize bool, code int) string {
	if !colorize {
		return s
	}
	return fmt.Sprintf("\x1b[%dm%s\x1b[0m", code, s)
}

func colorizeStates(out string) string {
	lines := strings.Split(out, "\n")
	for i, line := range lines {
		if line == "" || strings.HasPrefix(line, "STATE") {
			continue
		}
		spaceIdx := strings.IndexByte(line, ' ')
		if spaceIdx <= 0 {
			continue
		}
		status := line[:spaceIdx]
		rest := line[spaceIdx:]

		switch status {
		case "DOWN":
			status = applyColor(status, true, 31)
		case "ERROR", "PENDING":
			status = applyColor(status, true, 33)
		case "OK":
			status = applyColor(status, true, 32)
		default:
			// leave as-is
		}
		lines[i] = status + rest
	}
	return strings.Join(lines, "\n")
}
