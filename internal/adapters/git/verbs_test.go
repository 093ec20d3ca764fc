package git

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		command string
		want    Effects
	}{
		{"git status", Effects{Git: true}},
		{"git checkout main", Effects{Git: true, BranchChanged: true}},
		{"git checkout -b feature/x", Effects{Git: true, BranchChanged: true}},
		{"git checkout -- README.md", Effects{Git: true}},
		{"git switch develop", Effects{Git: true, BranchChanged: true}},
		{"git branch new-branch", Effects{Git: true, BranchChanged: true}},
		{"git branch -m old new", Effects{Git: true, BranchChanged: true}},
		{"git branch -d stale", Effects{Git: true}},
		{"git branch", Effects{Git: true}},
		{"git push origin main", Effects{Git: true, Pushed: true}},
		{"git -C /repo push", Effects{Git: true, Pushed: true}},
		{"git add . && git commit -m wip && git push", Effects{Git: true, Pushed: true}},
		{"git fetch; git checkout release", Effects{Git: true, BranchChanged: true}},
		{"/usr/bin/git switch main", Effects{Git: true, BranchChanged: true}},
		{"npm test", Effects{}},
		{"echo git push", Effects{}},
		{"", Effects{}},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			if got := Classify(tt.command); got != tt.want {
				t.Errorf("Classify(%q) = %+v, want %+v", tt.command, got, tt.want)
			}
		})
	}
}
