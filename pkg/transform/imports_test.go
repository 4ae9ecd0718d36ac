package transform

import (
	"strings"
	"testing"
)

func TestRemoveUnusedImportsMatches(t *testing.T) {
	tr := &removeUnusedImports{}
	if !tr.Matches("Remove unused imports from the module") {
		t.Error("should match an unused-import goal")
	}
	if tr.Matches("remove dead code") {
		t.Error("should not match an unrelated goal")
	}
}

func TestRemoveUnusedImportsApply(t *testing.T) {
	tests := []struct {
		name        string
		source      string
		want        string
		wantChanges int
	}{
		{
			name:        "unused plain import dropped",
			source:      "import os\nimport sys\n\nprint(sys.argv)\n",
			want:        "import sys\n\nprint(sys.argv)\n",
			wantChanges: 1,
		},
		{
			name:        "unused alias dropped",
			source:      "import numpy as np\n\nx = 1\n",
			want:        "\nx = 1\n",
			wantChanges: 1,
		},
		{
			name:        "dotted import kept via usage",
			source:      "import os.path\n\np = os.path.join('a', 'b')\n",
			want:        "import os.path\n\np = os.path.join('a', 'b')\n",
			wantChanges: 0,
		},
		{
			name:        "from import partially rewritten",
			source:      "from typing import List, Dict\n\nnames: List[str] = []\n",
			want:        "from typing import List\n\nnames: List[str] = []\n",
			wantChanges: 1,
		},
		{
			name:        "from import fully dropped",
			source:      "from typing import Optional\n\nx = 1\n",
			want:        "\nx = 1\n",
			wantChanges: 1,
		},
		{
			name:        "future import always kept",
			source:      "from __future__ import annotations\n\nx = 1\n",
			want:        "from __future__ import annotations\n\nx = 1\n",
			wantChanges: 0,
		},
		{
			name:        "star import untouched",
			source:      "from os import *\n\nprint(path)\n",
			want:        "from os import *\n\nprint(path)\n",
			wantChanges: 0,
		},
		{
			name:        "parenthesized import untouched",
			source:      "from typing import (\n    List,\n)\n\nx: List = []\n",
			want:        "from typing import (\n    List,\n)\n\nx: List = []\n",
			wantChanges: 0,
		},
		{
			name:        "mention in comment keeps import",
			source:      "import json\n# json parsing happens downstream\n",
			want:        "import json\n# json parsing happens downstream\n",
			wantChanges: 0,
		},
		{
			name:        "multi-name plain import rewritten",
			source:      "import os, sys\n\nprint(sys.argv)\n",
			want:        "import sys\n\nprint(sys.argv)\n",
			wantChanges: 1,
		},
		{
			name:        "function-local import dropped",
			source:      "def f():\n    import re\n    return 1\n",
			want:        "def f():\n    return 1\n",
			wantChanges: 1,
		},
		{
			name:        "aliased from import kept via alias usage",
			source:      "from collections import OrderedDict as OD\n\nd = OD()\n",
			want:        "from collections import OrderedDict as OD\n\nd = OD()\n",
			wantChanges: 0,
		},
	}

	tr := &removeUnusedImports{}
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

func TestRemoveUnusedImportsIdempotent(t *testing.T) {
	tr := &removeUnusedImports{}
	source := "import os\nimport sys\nfrom typing import List, Dict\n\nnames: List[str] = list(sys.argv)\n"

	first, err := tr.Apply(source)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	if first.ChangeCount != 2 {
		t.Fatalf("first pass ChangeCount = %d, want 2: %v", first.ChangeCount, first.Descriptions)
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

func TestRemoveUnusedImportsDescriptions(t *testing.T) {
	tr := &removeUnusedImports{}
	res, err := tr.Apply("import json\n\nx = 1\n")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(res.Descriptions) != 1 {
		t.Fatalf("Descriptions = %v, want one entry", res.Descriptions)
	}
	if !strings.Contains(res.Descriptions[0], "'json'") {
		t.Errorf("description should name the import: %q", res.Descriptions[0])
	}
}
