package ussd

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/tuitora/tuitora-gateway/internal/model"
)

// Navigation keys understood on every non-root prompt.
const (
	KeyBack = "0"
	KeyHome = "00"
	// KeyMore pages forward through a student list that does not fit on one screen.
	KeyMore = "99"
)

// Root menu options.
const (
	OptionAttendance = "1"
	OptionFees       = "2"
	OptionContact    = "3"
)

const attendanceWindowDays = 30

// Directory is the read-only view of school records the menu needs.
// Lookups that find nothing return a nil pointer (or empty slice) and a nil error.
type Directory interface {
	StudentsByGuardianPhone(ctx context.Context, phone string) ([]model.Student, error)
	Attendance(ctx context.Context, student model.Student, from, to time.Time) (*model.AttendanceSummary, error)
	Fees(ctx context.Context, student model.Student) (*model.FeeStatement, error)
	SchoolContact(ctx context.Context, phone string) (*model.SchoolContact, error)
}

// Outcome is the result of one callback through the menu.
type Outcome struct {
	Response model.USSDResponse
	// Depth is how far below the root the caller ended up (0 = main menu).
	Depth int
	// LookupErr is set when a backing lookup failed; the response is already
	// the friendly terminal message.
	LookupErr error
}

// Machine maps the provider's cumulative input to the next prompt or a
// terminal result. It keeps no state between calls: the same text and phone
// number always produce the same outcome for the same records.
type Machine struct {
	dir            Directory
	copy           *Copy
	defaultContact *model.SchoolContact
	lookupTimeout  time.Duration
	maxLength      int
	now            func() time.Time
}

type Option func(*Machine)

// WithDefaultContact is shown for "School Contact" when the caller is not
// linked to any school. An empty contact leaves no default installed.
func WithDefaultContact(c model.SchoolContact) Option {
	return func(m *Machine) {
		if c.Empty() {
			m.defaultContact = nil
			return
		}
		m.defaultContact = &c
	}
}

func WithLookupTimeout(d time.Duration) Option {
	return func(m *Machine) { m.lookupTimeout = d }
}

// WithMaxLength is the provider's limit on the wire reply, prefix included.
// Student lists are paged so every prompt fits.
func WithMaxLength(n int) Option {
	return func(m *Machine) { m.maxLength = n }
}

func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

func NewMachine(dir Directory, cp *Copy, opts ...Option) *Machine {
	if cp == nil {
		cp = NewCopy("en")
	}
	m := &Machine{
		dir:           dir,
		copy:          cp,
		lookupTimeout: 2 * time.Second,
		now:           time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Segments splits the provider's text into keystroke groups. Empty text is
// the first callback of a session and yields no segments.
func Segments(text string) []string {
	parts := strings.Split(strings.TrimSpace(text), "*")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

type frameKind int

const (
	frameRoot frameKind = iota
	frameSelectStudent
)

type frame struct {
	kind   frameKind
	action string // root option that led to student selection
	page   int
}

// turn holds what one Handle call has looked up so far.
type turn struct {
	m        *Machine
	ctx      context.Context
	phone    string
	students []model.Student
	loaded   bool
	pages    []span
	labels   []string
}

func (t *turn) loadStudents() ([]model.Student, error) {
	if t.loaded {
		return t.students, nil
	}
	st, err := t.m.dir.StudentsByGuardianPhone(t.ctx, t.phone)
	if err != nil {
		return nil, err
	}
	t.students, t.loaded = st, true
	return st, nil
}

// Handle walks the menu along text for the caller identified by phone.
func (m *Machine) Handle(ctx context.Context, phone, text string) Outcome {
	if m.lookupTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.lookupTimeout)
		defer cancel()
	}

	t := &turn{m: m, ctx: ctx, phone: phone}
	stack := []frame{{kind: frameRoot}}
	segs := Segments(text)

	for i, seg := range segs {
		last := i == len(segs)-1
		cur := stack[len(stack)-1]

		if len(stack) > 1 {
			switch seg {
			case KeyHome:
				stack = stack[:1]
				continue
			case KeyBack:
				stack = stack[:len(stack)-1]
				continue
			}
		}

		next, done, ok := t.choose(cur, seg)
		if done != nil {
			done.Depth = len(stack)
			return *done
		}
		if !ok {
			// An earlier invalid key was already answered with a re-prompt;
			// the caller is still at this node.
			if last {
				return Outcome{
					Response: model.Continue(m.copy.T("InvalidOption", nil) + "\n" + t.prompt(cur)),
					Depth:    len(stack) - 1,
				}
			}
			continue
		}
		stack = append(stack, *next)
	}

	return Outcome{
		Response: model.Continue(t.prompt(stack[len(stack)-1])),
		Depth:    len(stack) - 1,
	}
}

// choose applies one input at frame f. It either descends (next), finishes
// the session (done), or reports the input as invalid (ok == false).
func (t *turn) choose(f frame, input string) (next *frame, done *Outcome, ok bool) {
	switch f.kind {
	case frameRoot:
		switch input {
		case OptionAttendance, OptionFees:
			students, err := t.loadStudents()
			if err != nil {
				return nil, t.failed(err), true
			}
			switch len(students) {
			case 0:
				return nil, t.end(t.m.copy.T("NoRecords", nil)), true
			case 1:
				return nil, t.leaf(input, students[0]), true
			default:
				return &frame{kind: frameSelectStudent, action: input}, nil, true
			}
		case OptionContact:
			return nil, t.contact(), true
		}
		return nil, nil, false

	case frameSelectStudent:
		if input == KeyMore && f.page+1 < len(t.selection()) {
			return &frame{kind: frameSelectStudent, action: f.action, page: f.page + 1}, nil, true
		}
		n, err := strconv.Atoi(input)
		if err != nil || n < 1 || n > len(t.students) {
			return nil, nil, false
		}
		return nil, t.leaf(f.action, t.students[n-1]), true
	}
	return nil, nil, false
}

func (t *turn) prompt(f frame) string {
	c := t.m.copy
	switch f.kind {
	case frameSelectStudent:
		pages := t.selection()
		pg := pages[min(f.page, len(pages)-1)]

		var b strings.Builder
		b.WriteString(c.T("MenuSelectStudent", nil))
		for i := pg.start; i < pg.end; i++ {
			b.WriteString("\n")
			b.WriteString(strconv.Itoa(i + 1))
			b.WriteString(". ")
			b.WriteString(t.labels[i])
		}
		if f.page+1 < len(pages) {
			b.WriteString("\n")
			b.WriteString(c.T("MenuMore", nil))
		}
		b.WriteString("\n")
		b.WriteString(c.T("MenuNav", nil))
		return b.String()
	default:
		return c.T("MenuRoot", nil)
	}
}

// selection pages the loaded students for the select prompt.
func (t *turn) selection() []span {
	if t.pages == nil {
		budget := 0
		if t.m.maxLength > len(PrefixContinue) {
			budget = t.m.maxLength - len(PrefixContinue)
		}
		t.pages, t.labels = paginate(t.m.copy, t.students, budget)
	}
	return t.pages
}

func (t *turn) leaf(action string, s model.Student) *Outcome {
	if action == OptionFees {
		return t.fees(s)
	}
	return t.attendance(s)
}

func (t *turn) attendance(s model.Student) *Outcome {
	to := t.m.now()
	from := to.AddDate(0, 0, -attendanceWindowDays)

	sum, err := t.m.dir.Attendance(t.ctx, s, from, to)
	if err != nil {
		return t.failed(err)
	}
	if sum == nil || sum.Total() == 0 {
		return t.end(t.m.copy.T("NoRecords", nil))
	}
	if sum.Student.ID == 0 {
		sum.Student = s
	}
	return t.end(renderAttendance(t.m.copy, *sum, attendanceWindowDays))
}

func (t *turn) fees(s model.Student) *Outcome {
	st, err := t.m.dir.Fees(t.ctx, s)
	if err != nil {
		return t.failed(err)
	}
	if st == nil {
		return t.end(t.m.copy.T("NoRecords", nil))
	}
	if st.Student.ID == 0 {
		st.Student = s
	}
	return t.end(renderFees(t.m.copy, *st))
}

func (t *turn) contact() *Outcome {
	ct, err := t.m.dir.SchoolContact(t.ctx, t.phone)
	if err != nil && t.m.defaultContact == nil {
		return t.failed(err)
	}
	if ct == nil || ct.Empty() {
		ct = t.m.defaultContact
	}
	if ct == nil {
		return t.end(t.m.copy.T("NoRecords", nil))
	}
	out := t.end(renderContact(t.m.copy, *ct))
	out.LookupErr = err
	return out
}

func (t *turn) end(text string) *Outcome {
	return &Outcome{Response: model.End(text)}
}

func (t *turn) failed(err error) *Outcome {
	return &Outcome{Response: model.End(t.m.copy.T("TryLater", nil)), LookupErr: err}
}
