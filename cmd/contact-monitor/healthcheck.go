package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/banshee-data/contact.monitor/internal/httputil"
)

// statusReport is the subset of /api/status the health check reads.
type statusReport struct {
	Healthy  bool   `json:"healthy"`
	Revision int    `json:"revision"`
	Version  string `json:"version"`
	Error    string `json:"error"`
}

var errUnhealthy = errors.New("contact monitor is unhealthy")

// checkHealth queries a running monitor and fails unless it reports healthy.
func checkHealth(c httputil.HTTPClient, baseURL string) (statusReport, error) {
	var st statusReport
	url := strings.TrimRight(baseURL, "/") + "/api/status"
	if err := httputil.GetJSON(c, url, &st); err != nil {
		return st, err
	}
	if !st.Healthy {
		return st, fmt.Errorf("%w: %s", errUnhealthy, st.Error)
	}
	return st, nil
}

func runHealthcheck(args []string, out io.Writer) int {
	fs := flag.NewFlagSet("healthcheck", flag.ContinueOnError)
	fs.SetOutput(out)
	url := fs.String("url", "http://localhost:8088", "Base URL of the monitor's HTTP server")
	timeout := fs.Duration("timeout", 3*time.Second, "Request timeout")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	c := httputil.NewStandardClient(&http.Client{Timeout: *timeout})
	st, err := checkHealth(c, *url)
	if err != nil {
		fmt.Fprintf(out, "unhealthy: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "healthy: revision %d, version %s\n", st.Revision, st.Version)
	return 0
}
