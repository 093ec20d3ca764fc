package config

// DefaultWatcherIgnorePatterns lists path components the working tree
// watcher never reports: version-control metadata, dependency caches and
// editor droppings.
var DefaultWatcherIgnorePatterns = []string{
	".git",
	".svn",
	".hg",
	"node_modules",
	"vendor",
	".venv",
	"venv",
	"__pycache__",
	"*.pyc",
	".pytest_cache",
	".mypy_cache",
	".tox",
	".gradle",
	".next",
	".nuxt",
	".cache",
	".parcel-cache",
	".turbo",
	".idea",
	".vscode",
	".DS_Store",
	"Thumbs.db",
	"*.swp",
	"*.swo",
	"*~",
}
