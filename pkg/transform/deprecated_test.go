package transform

import (
	"strings"
	"testing"
)

func TestModernizeDeprecatedMatches(t *testing.T) {
	tr := &modernizeDeprecated{}

	tests := []struct {
		goal string
		want bool
	}{
		{"modernize deprecated APIs", true},
		{"remove deprecated calls", true},
		{"Modernize the codebase", true},
		{"add docstrings", false},
	}
	for _, tt := range tests {
		if got := tr.Matches(tt.goal); got != tt.want {
			t.Errorf("Matches(%q) = %v, want %v", tt.goal, got, tt.want)
		}
	}
}

func TestModernizeDeprecatedApply(t *testing.T) {
	tests := []struct {
		name        string
		source      string
		want        string
		wantChanges int
	}{
		{
			name:        "pure ABC import moved",
			source:      "from collections import Mapping\n",
			want:        "from collections.abc import Mapping\n",
			wantChanges: 1,
		},
		{
			name:        "mixed import split",
			source:      "from collections import OrderedDict, Mapping\n",
			want:        "from collections import OrderedDict\nfrom collections.abc import Mapping\n",
			wantChanges: 1,
		},
		{
			name:        "attribute access rewritten",
			source:      "ok = isinstance(x, collections.Mapping)\n",
			want:        "ok = isinstance(x, collections.abc.Mapping)\n",
			wantChanges: 1,
		},
		{
			name:        "asyncio.async",
			source:      "task = asyncio.async(run())\n",
			want:        "task = asyncio.ensure_future(run())\n",
			wantChanges: 1,
		},
		{
			name:        "assertEquals family",
			source:      "self.assertEquals(a, b)\nself.assertNotEquals(a, c)\nself.assertRegexpMatches(s, p)\n",
			want:        "self.assertEqual(a, b)\nself.assertNotEqual(a, c)\nself.assertRegex(s, p)\n",
			wantChanges: 3,
		},
		{
			name:        "time.clock",
			source:      "start = time.clock()\n",
			want:        "start = time.perf_counter()\n",
			wantChanges: 1,
		},
		{
			name:        "logger.warn rewritten",
			source:      "logger.warn('slow')\nlog.warn('x')\nlogging.warn('y')\n",
			want:        "logger.warning('slow')\nlog.warning('x')\nlogging.warning('y')\n",
			wantChanges: 3,
		},
		{
			name:        "warnings.warn untouched",
			source:      "warnings.warn('use other')\n",
			want:        "warnings.warn('use other')\n",
			wantChanges: 0,
		},
		{
			name:        "modern code untouched",
			source:      "from collections.abc import Mapping\nok = isinstance(x, collections.abc.Mapping)\n",
			want:        "from collections.abc import Mapping\nok = isinstance(x, collections.abc.Mapping)\n",
			wantChanges: 0,
		},
		{
			name:        "docstring content untouched",
			source:      "NOTE = \"\"\"\ncall asyncio.async(x) here\n\"\"\"\n",
			want:        "NOTE = \"\"\"\ncall asyncio.async(x) here\n\"\"\"\n",
			wantChanges: 0,
		},
	}

	tr := &modernizeDeprecated{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := tr.Apply(tt.source)
			if err != nil {
				t.Fatalf("Apply: %v", err)
			}
			if res.Modified != tt.want {
				t.Errorf("Modified:\n%s\nwant:\n%s", res.Modified, tt.want)
			}
			if res.ChangeCount != tt.wantChanges {
				t.Errorf("ChangeCount = %d, want %d", res.ChangeCount, tt.wantChanges)
			}
		})
	}
}

func TestModernizeDeprecatedIdempotent(t *testing.T) {
	tr := &modernizeDeprecated{}
	source := strings.Join([]string{
		"from collections import Mapping, OrderedDict",
		"start = time.clock()",
		"task = asyncio.async(run())",
		"logger.warn('deep')",
		"",
	}, "\n")

	first, err := tr.Apply(source)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	if first.ChangeCount != 4 {
		t.Fatalf("first pass ChangeCount = %d, want 4: %v", first.ChangeCount, first.Descriptions)
	}
	second, err := tr.Apply(first.Modified)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if second.ChangeCount != 0 {
		t.Errorf("second pass made %d changes: %v", second.ChangeCount, second.Descriptions)
	}
	if second.Modified != first.Modified {
		t.Errorf("second pass altered output:\n%s", second.Modified)
	}
}

func TestModernizeDeprecatedDescriptions(t *testing.T) {
	tr := &modernizeDeprecated{}
	res, err := tr.Apply("from collections import Iterable\nstart = time.clock()\n")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(res.Descriptions) != 2 {
		t.Fatalf("Descriptions = %v, want two entries", res.Descriptions)
	}
	if res.Descriptions[0] != "Moved collections ABC imports to collections.abc" {
		t.Errorf("import description = %q", res.Descriptions[0])
	}
	if !strings.Contains(res.Descriptions[1], "time.clock()") {
		t.Errorf("clock description = %q", res.Descriptions[1])
	}
}
