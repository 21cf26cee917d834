package ussd

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/tuitora/tuitora-gateway/internal/model"
)

const dateLayout = "02 Jan 2006"

func studentLabel(s model.Student) string {
	if s.ClassName == "" {
		return s.FullName()
	}
	return s.FullName() + " (" + s.ClassName + ")"
}

func renderAttendance(c *Copy, a model.AttendanceSummary, days int) string {
	lines := []string{
		c.T("AttendanceHeader", map[string]any{"Name": studentLabel(a.Student)}),
		c.T("AttendanceSummary", map[string]any{
			"Days":    days,
			"Present": a.Present,
			"Absent":  a.Absent,
			"Late":    a.Late,
		}),
	}
	if a.LastStatus != "" && !a.LastDate.IsZero() {
		lines = append(lines, c.T("AttendanceLast", map[string]any{
			"Status": statusLabel(c, a.LastStatus),
			"Date":   a.LastDate.Format(dateLayout),
		}))
	}
	return strings.Join(lines, "\n")
}

func statusLabel(c *Copy, s model.AttendanceStatus) string {
	switch s {
	case model.AttendancePresent:
		return c.T("StatusPresent", nil)
	case model.AttendanceAbsent:
		return c.T("StatusAbsent", nil)
	case model.AttendanceLate:
		return c.T("StatusLate", nil)
	}
	return string(s)
}

func renderFees(c *Copy, f model.FeeStatement) string {
	lines := []string{c.T("FeesHeader", map[string]any{"Name": studentLabel(f.Student)})}
	if f.Term != "" {
		lines = append(lines, c.T("FeesTerm", map[string]any{"Term": f.Term}))
	}
	lines = append(lines,
		c.T("FeesBilled", map[string]any{"Amount": c.Money(f.Billed, f.Currency)}),
		c.T("FeesPaid", map[string]any{"Amount": c.Money(f.Paid, f.Currency)}),
	)
	if f.Balance() <= 0 {
		lines = append(lines, c.T("FeesCleared", nil))
		return strings.Join(lines, "\n")
	}
	lines = append(lines, c.T("FeesBalance", map[string]any{"Amount": c.Money(f.Balance(), f.Currency)}))
	if f.DueDate != nil {
		lines = append(lines, c.T("FeesDue", map[string]any{"Date": f.DueDate.Format(dateLayout)}))
	}
	return strings.Join(lines, "\n")
}

func renderContact(c *Copy, ct model.SchoolContact) string {
	var lines []string
	if ct.Name != "" {
		lines = append(lines, ct.Name)
	}
	if ct.Phone != "" {
		lines = append(lines, c.T("ContactPhone", map[string]any{"Phone": ct.Phone}))
	}
	if ct.Email != "" {
		lines = append(lines, c.T("ContactEmail", map[string]any{"Email": ct.Email}))
	}
	if ct.Address != "" {
		lines = append(lines, c.T("ContactAddress", map[string]any{"Address": ct.Address}))
	}
	return strings.Join(lines, "\n")
}

// span is a page of the student list, [start, end).
type span struct{ start, end int }

// paginate splits students into pages whose select prompt fits in budget
// runes, room for an "Invalid option." line, the more line and the
// navigation lines included. Labels too long for a page are clipped. A
// budget <= 0 yields a single page.
func paginate(c *Copy, students []model.Student, budget int) ([]span, []string) {
	labels := make([]string, len(students))
	for i, s := range students {
		labels[i] = studentLabel(s)
	}
	if budget <= 0 || len(students) == 0 {
		return []span{{0, len(students)}}, labels
	}

	fixed := runes(c.T("InvalidOption", nil)) + 1 +
		runes(c.T("MenuSelectStudent", nil)) +
		1 + runes(c.T("MenuMore", nil)) +
		1 + runes(c.T("MenuNav", nil))
	room := budget - fixed

	var pages []span
	start, used := 0, 0
	for i := range labels {
		num := strconv.Itoa(i+1) + ". "
		labels[i] = clip(labels[i], max(room-1-runes(num), len(ellipsis)+1))
		cost := 1 + runes(num) + runes(labels[i])
		if i > start && used+cost > room {
			pages = append(pages, span{start, i})
			start, used = i, 0
		}
		used += cost
	}
	return append(pages, span{start, len(labels)}), labels
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimRight(string(r[:n-len(ellipsis)]), " ") + ellipsis
}

func runes(s string) int { return utf8.RuneCountInString(s) }
