package api

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.bug.st/serial"

	"github.com/banshee-data/contact.monitor/internal/jointfeed"
	"github.com/banshee-data/contact.monitor/internal/monitoring"
	"github.com/banshee-data/contact.monitor/internal/serialmux"
)

// SerialTestRequest represents the request body for probing a controller port
type SerialTestRequest struct {
	PortPath       string `json:"port_path"`
	BaudRate       int    `json:"baud_rate"`
	DataBits       int    `json:"data_bits"`
	StopBits       int    `json:"stop_bits"`
	Parity         string `json:"parity"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// SerialTestResponse represents the result of probing a controller port
type SerialTestResponse struct {
	Success        bool   `json:"success"`
	PortPath       string `json:"port_path"`
	BaudRate       int    `json:"baud_rate"`
	TestDurationMS int64  `json:"test_duration_ms"`
	LinesRead      int    `json:"lines_read"`
	JointStates    int    `json:"joint_states"`
	SampleData     string `json:"sample_data,omitempty"`
	Error          string `json:"error,omitempty"`
	Message        string `json:"message"`
	Suggestion     string `json:"suggestion,omitempty"`
}

// SerialDeviceInfo represents information about a discovered serial device
type SerialDeviceInfo struct {
	PortPath     string `json:"port_path"`
	FriendlyName string `json:"friendly_name"`
	Configured   bool   `json:"configured"`
}

// portOpener opens a port for probing; tests substitute it.
var portOpener = func(path string, opts serialmux.PortOptions) (io.ReadCloser, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	return serial.Open(path, mode)
}

// portLister enumerates serial ports; tests substitute it.
var portLister = serial.GetPortsList

// handleSerialTest handles POST /api/serial/test
func (s *Server) handleSerialTest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req SerialTestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.PortPath == "" {
		http.Error(w, "Port path is required", http.StatusBadRequest)
		return
	}
	if !isValidPortPath(req.PortPath) {
		http.Error(w, "Invalid port path. Must start with /dev/tty or /dev/serial", http.StatusBadRequest)
		return
	}
	if req.PortPath == s.opts.SerialPort && s.opts.Serial != nil {
		http.Error(w, "Port is in use by the joint state feed", http.StatusConflict)
		return
	}
	if req.TimeoutSeconds <= 0 || req.TimeoutSeconds > 30 {
		req.TimeoutSeconds = 3
	}

	opts, err := serialmux.PortOptions{
		BaudRate: req.BaudRate,
		DataBits: req.DataBits,
		StopBits: req.StopBits,
		Parity:   req.Parity,
	}.Normalize()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// A failed probe is a result, not an API error
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(probeSerialPort(req.PortPath, opts, time.Duration(req.TimeoutSeconds)*time.Second))
}

func isValidPortPath(path string) bool {
	return strings.HasPrefix(path, "/dev/tty") || strings.HasPrefix(path, "/dev/serial")
}

// probeSerialPort reads lines from the port until timeout and counts those
// that parse as joint states.
func probeSerialPort(path string, opts serialmux.PortOptions, timeout time.Duration) SerialTestResponse {
	start := time.Now()
	resp := SerialTestResponse{PortPath: path, BaudRate: opts.BaudRate}

	port, err := portOpener(path, opts)
	if err != nil {
		resp.TestDurationMS = time.Since(start).Milliseconds()
		resp.Error = fmt.Sprintf("Failed to open port: %v", err)
		resp.Message = "Serial port test failed"
		resp.Suggestion = getSuggestionForError(err)
		return resp
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scan := bufio.NewScanner(port)
		for scan.Scan() {
			lines <- scan.Text()
		}
	}()

	deadline := time.After(timeout)
read:
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				break read
			}
			resp.LinesRead++
			if _, err := jointfeed.ParseLine(line, start); err == nil {
				resp.JointStates++
				if resp.SampleData == "" {
					resp.SampleData = truncate(line, 100)
				}
			}
		case <-deadline:
			break read
		}
	}
	// closing unblocks the reader goroutine
	if err := port.Close(); err != nil {
		monitoring.Logf("[Serial] closing %s after probe: %v", path, err)
	}
	for range lines {
	}

	resp.TestDurationMS = time.Since(start).Milliseconds()
	switch {
	case resp.JointStates > 0:
		resp.Success = true
		resp.Message = fmt.Sprintf("Received %d joint states", resp.JointStates)
	case resp.LinesRead > 0:
		resp.Error = "No joint states in received data"
		resp.Message = "Serial port test failed"
		resp.Suggestion = "Device may be at wrong baud rate, or not emitting name=position lines or JSON."
	default:
		resp.Error = "No response from device"
		resp.Message = "Serial port test failed"
		resp.Suggestion = "Device may be at wrong baud rate. Try 9600, 115200, or other common rates. Ensure device is powered on."
	}
	return resp
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// getSuggestionForError provides helpful suggestions based on error type
func getSuggestionForError(err error) string {
	var portErr *serial.PortError
	if errors.As(err, &portErr) {
		switch portErr.Code() {
		case serial.PortNotFound:
			return "Check that the device is connected and appears in /dev/"
		case serial.PortBusy:
			return "Another process may be using the port. Stop other applications using this serial port."
		case serial.PermissionDenied:
			return "Run: sudo usermod -a -G dialout $USER && sudo reboot"
		}
	}

	errStr := err.Error()
	if strings.Contains(errStr, "no such file") || strings.Contains(errStr, "not found") {
		return "Check that the device is connected and appears in /dev/"
	}
	if strings.Contains(errStr, "permission denied") {
		return "Run: sudo usermod -a -G dialout $USER && sudo reboot"
	}
	return "Check device connection and permissions"
}

// handleSerialDevices handles GET /api/serial/devices - List available serial devices
func (s *Server) handleSerialDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ports, err := portLister()
	if err != nil {
		monitoring.Logf("[Serial] error enumerating serial ports: %v", err)
		http.Error(w, "Failed to enumerate serial ports", http.StatusInternalServerError)
		return
	}

	devices := make([]SerialDeviceInfo, 0, len(ports))
	for _, portPath := range ports {
		devices = append(devices, SerialDeviceInfo{
			PortPath:     portPath,
			FriendlyName: getFriendlyName(portPath),
			Configured:   portPath == s.opts.SerialPort,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(devices)
}

// getFriendlyName generates a user-friendly name for a serial port
func getFriendlyName(portPath string) string {
	parts := strings.Split(portPath, "/")
	deviceName := parts[len(parts)-1]
	switch {
	case strings.HasPrefix(deviceName, "ttyUSB"):
		return fmt.Sprintf("USB Serial Adapter (%s)", deviceName)
	case strings.HasPrefix(deviceName, "ttyACM"):
		return fmt.Sprintf("USB CDC Device (%s)", deviceName)
	case strings.HasPrefix(deviceName, "ttyAMA"):
		return fmt.Sprintf("Raspberry Pi Serial (%s)", deviceName)
	default:
		return deviceName
	}
}
