package pinned

// Feed is one pinned public bookmark feed offered as a starting point
// on the browse surface.
type Feed struct {
	// Label is the display name, e.g. "Design inspiration".
	Label string `yaml:"label" json:"label"`
	// Identifier is the handle or DID whose bookmark feed to load.
	Identifier string `yaml:"identifier" json:"identifier"`
	// Default marks the feed served when neither a ?user parameter nor
	// a logged-in session selects one.
	Default bool `yaml:"default,omitempty" json:"default,omitempty"`
}

// File is the top-level structure of the pinned feeds YAML file.
type File struct {
	Feeds []Feed `yaml:"feeds"`
}
