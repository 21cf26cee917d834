package cmd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTermMonth(t *testing.T) {
	cases := map[time.Month]time.Month{
		time.January:   time.January,
		time.April:     time.January,
		time.May:       time.May,
		time.August:    time.May,
		time.September: time.September,
		time.December:  time.September,
	}
	for in, want := range cases {
		assert.Equal(t, want, termMonth(in), in.String())
	}
}

func TestDemoSchools_GuardiansReferenceKnownStudents(t *testing.T) {
	for _, s := range demoSchools {
		known := map[string]bool{}
		for _, st := range s.students {
			known[st.admissionNo] = true
		}
		for _, g := range s.guardians {
			for _, adm := range g.children {
				assert.True(t, known[adm], "%s links unknown student %s", g.phone, adm)
			}
		}
	}
}
