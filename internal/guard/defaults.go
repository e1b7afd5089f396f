package guard

// DefaultKeywords are substrings that mark a target as restricted.
var DefaultKeywords = []string{
	".gov",
	".mil",
	".edu",
	"hospital",
	"police",
	"fbi",
	"cia",
	"localhost",
	"127.0.0.1",
}

// DefaultPatterns are host glob patterns that mark a target as restricted.
// Labels are separated by dots; "*" matches within one label and "**"
// matches any number of labels.
var DefaultPatterns = []string{
	"**.gov.*",
	"**.mil.*",
	"**.nhs.uk",
}
