package transform

import (
	"strings"
	"testing"
)

func TestTypeHintsMatches(t *testing.T) {
	tr := &typeHints{}

	tests := []struct {
		goal string
		want bool
	}{
		{"add type hints to all functions", true},
		{"Add Type Annotations", true},
		{"add docstrings", false},
		{"rename foo to bar", false},
	}
	for _, tt := range tests {
		if got := tr.Matches(tt.goal); got != tt.want {
			t.Errorf("Matches(%q) = %v, want %v", tt.goal, got, tt.want)
		}
	}
}

func TestTypeHintsApply(t *testing.T) {
	tests := []struct {
		name        string
		source      string
		want        string
		wantChanges int
	}{
		{
			name:        "int default with bare body",
			source:      "def f(count=3):\n    pass\n",
			want:        "def f(count: int = 3) -> None:\n    pass\n",
			wantChanges: 2,
		},
		{
			name:        "self skipped and value return blocks None",
			source:      "class C:\n    def update(self, retries=5):\n        return retries\n",
			want:        "class C:\n    def update(self, retries: int = 5):\n        return retries\n",
			wantChanges: 1,
		},
		{
			name:        "string and float defaults",
			source:      "def g(name=\"bob\", ratio=1.5):\n    return name\n",
			want:        "def g(name: str = \"bob\", ratio: float = 1.5):\n    return name\n",
			wantChanges: 2,
		},
		{
			name:        "dict and set defaults",
			source:      "def h(opts={}, tags={1, 2}):\n    pass\n",
			want:        "def h(opts: dict = {}, tags: set = {1, 2}) -> None:\n    pass\n",
			wantChanges: 3,
		},
		{
			name:        "list default with nested commas",
			source:      "def k(items=[1, (2, 3)]):\n    return items\n",
			want:        "def k(items: list = [1, (2, 3)]):\n    return items\n",
			wantChanges: 1,
		},
		{
			name:        "None default skipped",
			source:      "def cb(handler=None):\n    pass\n",
			want:        "def cb(handler=None) -> None:\n    pass\n",
			wantChanges: 1,
		},
		{
			name:        "star args skipped",
			source:      "def v(*args, **kwargs):\n    pass\n",
			want:        "def v(*args, **kwargs) -> None:\n    pass\n",
			wantChanges: 1,
		},
		{
			name:        "yield blocks None annotation",
			source:      "def gen(limit=2):\n    yield limit\n",
			want:        "def gen(limit: int = 2):\n    yield limit\n",
			wantChanges: 1,
		},
		{
			name:        "return None still counts as None",
			source:      "def reset(flag=True):\n    if flag:\n        return None\n    return\n",
			want:        "def reset(flag: bool = True) -> None:\n    if flag:\n        return None\n    return\n",
			wantChanges: 2,
		},
		{
			name:        "annotated def untouched",
			source:      "def h(n: int = 3):\n    return n\n",
			want:        "def h(n: int = 3):\n    return n\n",
			wantChanges: 0,
		},
		{
			name:        "return annotation untouched",
			source:      "def area(r=2) -> float:\n    return 3.14 * r * r\n",
			want:        "def area(r=2) -> float:\n    return 3.14 * r * r\n",
			wantChanges: 0,
		},
		{
			name:        "async def",
			source:      "async def fetch(timeout=30):\n    pass\n",
			want:        "async def fetch(timeout: int = 30) -> None:\n    pass\n",
			wantChanges: 2,
		},
		{
			name:        "trailing comment preserved",
			source:      "def f(a=1):  # setup\n    pass\n",
			want:        "def f(a: int = 1) -> None:  # setup\n    pass\n",
			wantChanges: 2,
		},
		{
			name:        "def inside docstring ignored",
			source:      "HELP = \"\"\"\ndef fake(x=1):\n\"\"\"\ndef real(x=1):\n    pass\n",
			want:        "HELP = \"\"\"\ndef fake(x=1):\n\"\"\"\ndef real(x: int = 1) -> None:\n    pass\n",
			wantChanges: 2,
		},
	}

	tr := &typeHints{}
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

func TestTypeHintsIdempotent(t *testing.T) {
	tr := &typeHints{}
	source := "def f(count=3, name=\"x\"):\n    pass\n\ndef g(data=[], flag=False):\n    return data\n"

	first, err := tr.Apply(source)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := tr.Apply(first.Modified)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if second.ChangeCount != 0 {
		t.Errorf("second pass made %d changes", second.ChangeCount)
	}
	if second.Modified != first.Modified {
		t.Errorf("second pass altered output:\n%s", second.Modified)
	}
}

func TestTypeHintsDescriptions(t *testing.T) {
	tr := &typeHints{}
	res, err := tr.Apply("def alpha(n=1):\n    pass\n")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(res.Descriptions) != 1 {
		t.Fatalf("Descriptions = %v, want one entry", res.Descriptions)
	}
	if !strings.Contains(res.Descriptions[0], "alpha") {
		t.Errorf("description should mention the function: %q", res.Descriptions[0])
	}
}
