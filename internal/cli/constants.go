package cli

// Default values for CLI flags and output.
const (
	// DefaultSearchLimit is the default number of search results to return.
	DefaultSearchLimit = 50
	// MaxDescriptionLength is the maximum length of a package description in tables.
	MaxDescriptionLength = 50
	// TabWidth is the padding between columns in formatted output.
	TabWidth = 2
	// spinnerTick is how often the progress spinner advances.
	spinnerTick = 100
)
