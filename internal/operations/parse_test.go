package operations

import (
	"testing"

	"github.com/signalsfoundry/orbital-federates/core"
)

func TestParse(t *testing.T) {
	cases := []struct {
		spec string
		want string
	}{
		{"d", "d6,10,10"},
		{"d3", "d3,10,10"},
		{"d4,a,2", "d4,a,2"},
		{"d4,25.5,0", "d4,25.5,0"},
		{"x", "x50,20,6,10,10"},
		{"x2", "x50,20,2,10,10"},
		{"x50,25,6", "x50,25,6,10,10"},
		{"x50,25,6,a,1", "x50,25,6,a,1"},
		{"x6,a,1", "x50,20,6,a,1"},
		{"x4,12.5,0.5", "x50,20,4,12.5,0.5"},
		// An integer third field keeps the price form.
		{"x6,10,1", "x6,10,1,10,10"},
	}
	for _, tc := range cases {
		ops := Parse(tc.spec)
		s, ok := ops.(interface{ String() string })
		if !ok {
			t.Fatalf("Parse(%q) = %T, want an allocation model", tc.spec, ops)
		}
		if got := s.String(); got != tc.want {
			t.Fatalf("Parse(%q) = %s, want %s", tc.spec, got, tc.want)
		}
	}
}

func TestParseVariant(t *testing.T) {
	if _, ok := Parse("x50,25,6,a,1").(*FixedCost); !ok {
		t.Fatalf("x form did not select FixedCost")
	}
	if _, ok := Parse("d6").(*Dynamic); !ok {
		t.Fatalf("d form did not select Dynamic")
	}
}

func TestParseFallsBackToNoOperations(t *testing.T) {
	for _, spec := range []string{"", "n", "d6,a", "x50,25", "dx", "d-1", " d6", "x50,25,6,b,1", "x6,a", "x6.5,a,1", "d6,a,1x"} {
		if _, ok := Parse(spec).(core.NoOperations); !ok {
			t.Fatalf("Parse(%q) = %T, want NoOperations", spec, Parse(spec))
		}
	}
}
