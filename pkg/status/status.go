// Package status maps per-domain status codes to display labels and colors.
package status

import "sort"

// Label is how a status code is shown to users.
type Label struct {
	Label string `json:"label"`
	Color string `json:"color"`
}

// Domains with a label table.
const (
	Approval      = "approval"
	Timeline      = "timeline"
	Opportunity   = "opportunity"
	PurchaseOrder = "purchase_order"
	Invoice       = "invoice"
	Lead          = "lead"
	Installation  = "installation"
	Procurement   = "procurement"
	Project       = "project"
	Leave         = "leave"
)

// FallbackColor is used for unknown domains or codes.
const FallbackColor = "default"

var tables = map[string]map[string]Label{
	Approval: {
		"DRAFT":      {"Draft", "default"},
		"PENDING":    {"Pending", "processing"},
		"APPROVED":   {"Approved", "success"},
		"REJECTED":   {"Rejected", "error"},
		"WITHDRAWN":  {"Withdrawn", "warning"},
		"TERMINATED": {"Terminated", "default"},
	},
	Timeline: {
		"submitted": {"Submitted", "blue"},
		"completed": {"Approved", "green"},
		"rejected":  {"Rejected", "red"},
		"current":   {"In progress", "blue"},
		"pending":   {"Waiting", "gray"},
		"withdrawn": {"Withdrawn", "orange"},
	},
	Opportunity: {
		"DISCOVERY":   {"Discovery", "blue"},
		"QUALIFIED":   {"Qualified", "cyan"},
		"PROPOSAL":    {"Proposal", "purple"},
		"NEGOTIATION": {"Negotiation", "orange"},
		"WON":         {"Won", "green"},
		"LOST":        {"Lost", "red"},
	},
	PurchaseOrder: {
		"DRAFT":              {"Draft", "default"},
		"PENDING_APPROVAL":   {"Pending approval", "processing"},
		"APPROVED":           {"Approved", "success"},
		"ORDERED":            {"Ordered", "blue"},
		"PARTIALLY_RECEIVED": {"Partially received", "orange"},
		"RECEIVED":           {"Received", "green"},
		"CANCELLED":          {"Cancelled", "default"},
	},
	Invoice: {
		"DRAFT":          {"Draft", "default"},
		"ISSUED":         {"Issued", "blue"},
		"PARTIALLY_PAID": {"Partially paid", "orange"},
		"PAID":           {"Paid", "green"},
		"OVERDUE":        {"Overdue", "red"},
		"VOID":           {"Void", "default"},
	},
	Lead: {
		"NEW":         {"New", "blue"},
		"CONTACTED":   {"Contacted", "cyan"},
		"QUALIFIED":   {"Qualified", "green"},
		"UNQUALIFIED": {"Unqualified", "default"},
		"CONVERTED":   {"Converted", "purple"},
	},
	Installation: {
		"PENDING":     {"Pending dispatch", "default"},
		"DISPATCHED":  {"Dispatched", "blue"},
		"IN_PROGRESS": {"In progress", "processing"},
		"COMPLETED":   {"Completed", "success"},
		"CANCELLED":   {"Cancelled", "default"},
	},
	Procurement: {
		"DRAFT":     {"Draft", "default"},
		"SUBMITTED": {"Submitted", "processing"},
		"QUOTING":   {"Quoting", "cyan"},
		"AWARDED":   {"Awarded", "green"},
		"CLOSED":    {"Closed", "default"},
	},
	Project: {
		"PLANNING":    {"Planning", "default"},
		"IN_PROGRESS": {"In progress", "processing"},
		"ON_HOLD":     {"On hold", "warning"},
		"COMPLETED":   {"Completed", "success"},
		"CANCELLED":   {"Cancelled", "default"},
	},
	Leave: {
		"PENDING":   {"Pending", "processing"},
		"APPROVED":  {"Approved", "success"},
		"REJECTED":  {"Rejected", "error"},
		"CANCELLED": {"Cancelled", "default"},
	},
}

// Lookup returns the label for code in domain. Unknown codes render as the
// raw code with FallbackColor; ok reports whether the code was known.
func Lookup(domain, code string) (l Label, ok bool) {
	if l, ok = tables[domain][code]; ok {
		return l, true
	}
	return Label{Label: code, Color: FallbackColor}, false
}

// Domains lists the known domains in sorted order.
func Domains() []string {
	out := make([]string, 0, len(tables))
	for d := range tables {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Table returns a copy of the domain's table.
func Table(domain string) (map[string]Label, bool) {
	t, ok := tables[domain]
	if !ok {
		return nil, false
	}
	out := make(map[string]Label, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out, true
}

// All returns a copy of every table keyed by domain.
func All() map[string]map[string]Label {
	out := make(map[string]map[string]Label, len(tables))
	for d := range tables {
		out[d], _ = Table(d)
	}
	return out
}
