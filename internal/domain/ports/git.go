package ports

import "context"

// AheadBehind is the sync delta between a branch and its upstream.
type AheadBehind struct {
	HasUpstream    bool   `json:"hasUpstream"`
	UpstreamBranch string `json:"upstreamBranch,omitempty"`
	Ahead          int    `json:"ahead"`
	Behind         int    `json:"behind"`
}

// RepositoryFacts is the cached view of branch identity and sync state.
type RepositoryFacts interface {
	// CurrentBranch returns the checked-out branch name.
	CurrentBranch(ctx context.Context, force bool) (string, error)

	// UpstreamBranch returns the upstream of the current branch, or "" if none.
	UpstreamBranch(ctx context.Context, force bool) (string, error)

	// AheadBehind returns the sync delta against the upstream.
	AheadBehind(ctx context.Context, force bool) (AheadBehind, error)

	// InvalidateAll clears every cached fact and the push suppression flag.
	InvalidateAll()

	// MarkPushed records a successful push.
	MarkPushed()
}
