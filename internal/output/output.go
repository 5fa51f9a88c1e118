// Package output renders command results as a single-line JSON envelope.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

type Result struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	Error   *string     `json:"error"`
	// Details holds one line per joined cause when an error wraps several.
	Details []string `json:"details,omitempty"`
}

func Success(data interface{}) string {
	return render(Result{Success: true, Data: data})
}

func Error(err error) string {
	return Failure(err, nil)
}

// Failure reports err together with whatever data was produced before it.
func Failure(err error, data interface{}) string {
	lines := splitLines(err.Error())
	msg := strings.Join(lines, "; ")
	r := Result{Success: false, Data: data, Error: &msg}
	if len(lines) > 1 {
		r.Details = lines
	}
	return render(r)
}

// Print writes an envelope followed by a newline.
func Print(w io.Writer, envelope string) error {
	_, err := fmt.Fprintln(w, envelope)
	return err
}

func render(r Result) string {
	b, err := json.Marshal(r)
	if err != nil {
		msg := fmt.Sprintf("encode result: %v", err)
		b, _ = json.Marshal(Result{Success: false, Error: &msg})
	}
	return string(b)
}

func splitLines(s string) []string {
	var lines []string
	for _, l := range strings.Split(s, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}
