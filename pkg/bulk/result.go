// SPDX-FileCopyrightText: © 2025 Nfrastack <code@nfrastack.com>
//
// SPDX-License-Identifier: BSD-3-Clause

package bulk

import (
	"fmt"
	"strings"
)

// DetailTimeout marks an upsert that did not answer within the item timeout
const DetailTimeout = "Timeout"

// Outcome is the result of applying a request to one zone
type Outcome struct {
	Zone   string
	OK     bool
	Detail string
}

// Line renders the outcome as a chat result line
func (o Outcome) Line(ip string) string {
	if o.OK {
		return fmt.Sprintf("✅ %s -> %s", o.Detail, ip)
	}
	return fmt.Sprintf("❌ %s: %s", o.Zone, o.Detail)
}

// Result aggregates a run. Outcomes keep batch order; order inside a batch
// carries no meaning.
type Result struct {
	Total     int
	Succeeded int
	Failed    int
	Outcomes  []Outcome
	Cancelled bool
}

func (r *Result) add(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
	if o.OK {
		r.Succeeded++
	} else {
		r.Failed++
	}
}

// Processed is the number of zones that received an outcome
func (r *Result) Processed() int {
	return r.Succeeded + r.Failed
}

// Summary renders the completion message
func (r *Result) Summary() string {
	head := "✅ Operation completed!"
	if r.Cancelled {
		head = "⚠️ Operation cancelled."
	}
	return fmt.Sprintf("%s\nTotal: %d\nSuccess: %d\nFailed: %d", head, r.Total, r.Succeeded, r.Failed)
}

// Progress is a snapshot of a running sync
type Progress struct {
	Total     int
	Processed int
	Succeeded int
	Failed    int
	Recent    []string
	Done      bool
}

// Percent of zones processed
func (p Progress) Percent() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.Processed) / float64(p.Total) * 100
}

// Text renders the status message shown to the operator
func (p Progress) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 Progress: %.1f%%\n", p.Percent())
	fmt.Fprintf(&b, "✅ Successful: %d\n", p.Succeeded)
	fmt.Fprintf(&b, "❌ Failed: %d\n", p.Failed)
	fmt.Fprintf(&b, "⏳ Remaining: %d\n\n", p.Total-p.Processed)
	b.WriteString(strings.Join(p.Recent, "\n"))
	return b.String()
}
