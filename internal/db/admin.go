package db

import (
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"

	"github.com/banshee-data/contact.monitor/internal/monitoring"
	"github.com/banshee-data/contact.monitor/internal/security"
)

const (
	echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"
	chartMaxCycles      = 5000
)

// AttachAdminRoutes mounts tailsql, a backup download and the contact
// distance chart and plot under /debug/.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+filepath.Base(db.path), db.DB, &tailsql.DBOptions{
		Label: "Contact history",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(db.serveBackup))
	debug.Handle("contacts-chart", "Minimum contact distance per cycle", http.HandlerFunc(db.serveChart))
	debug.Handle("contacts-plot", "Minimum contact distance as a PNG for reports", http.HandlerFunc(db.servePlot))
	return nil
}

func (db *DB) serveBackup(w http.ResponseWriter, r *http.Request) {
	dir := os.TempDir()
	name := security.SanitizeFilename(fmt.Sprintf("contact-history-%d.db", time.Now().Unix()))
	backupPath := filepath.Join(dir, name)
	if err := security.ValidatePathWithinDirectory(backupPath, dir); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if _, err := db.Exec("VACUUM INTO ?", backupPath); err != nil {
		http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
		return
	}
	backupFile, err := os.Open(backupPath)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
		return
	}
	defer func() {
		backupFile.Close()
		if err := os.Remove(backupPath); err != nil {
			monitoring.Logf("[History] failed to remove backup file: %v", err)
		}
	}()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", name))
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Encoding", "gzip")

	gz := gzip.NewWriter(w)
	defer gz.Close()
	if _, err := io.Copy(gz, backupFile); err != nil {
		monitoring.Logf("[History] failed to stream backup: %v", err)
	}
}

// recentCycles loads the cycles of the last ?minutes (default 60), oldest
// first.
func (db *DB) recentCycles(r *http.Request) ([]Cycle, int, error) {
	minutes := 60
	if v := r.URL.Query().Get("minutes"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, 0, errBadWindow
		}
		minutes = n
	}
	cycles, err := db.Cycles(time.Now().Add(-time.Duration(minutes)*time.Minute), chartMaxCycles)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load cycles: %w", err)
	}
	slices.Reverse(cycles)
	return cycles, minutes, nil
}

var errBadWindow = errors.New("invalid 'minutes' parameter")

func windowError(w http.ResponseWriter, err error) {
	if errors.Is(err, errBadWindow) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func (db *DB) serveChart(w http.ResponseWriter, r *http.Request) {
	cycles, minutes, err := db.recentCycles(r)
	if err != nil {
		windowError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := renderDistanceChart(&buf, cycles, minutes); err != nil {
		http.Error(w, fmt.Sprintf("render error: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (db *DB) servePlot(w http.ResponseWriter, r *http.Request) {
	cycles, minutes, err := db.recentCycles(r)
	if err != nil {
		windowError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := renderDistancePlot(&buf, cycles, minutes); err != nil {
		http.Error(w, fmt.Sprintf("render error: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}

// renderDistanceChart draws minimum distance and contact count per cycle,
// oldest first. Cycles without contacts leave a gap in the distance line.
func renderDistanceChart(w io.Writer, cycles []Cycle, minutes int) error {
	x := make([]string, 0, len(cycles))
	dist := make([]opts.LineData, 0, len(cycles))
	count := make([]opts.LineData, 0, len(cycles))
	for _, c := range cycles {
		x = append(x, c.Stamp.Format("15:04:05.000"))
		if c.MinDistance != nil {
			dist = append(dist, opts.LineData{Value: *c.MinDistance})
		} else {
			dist = append(dist, opts.LineData{Value: "-"})
		}
		count = append(count, opts.LineData{Value: c.ContactCount})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Contact distance", Width: "100%", Height: "600px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Contact distance", Subtitle: fmt.Sprintf("last %d min, %d cycles", minutes, len(cycles))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "distance (m)"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	line.SetXAxis(x).
		AddSeries("min distance", dist).
		AddSeries("contacts", count)
	return line.Render(w)
}
