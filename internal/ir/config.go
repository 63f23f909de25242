package ir

// Config is the parsed declaration set for a single run.
type Config struct {
	Resources []*Resource        `json:"resources"`
	Outputs   map[string]*Output `json:"outputs,omitempty"`
}

// Output is a named value exported from the configuration.
type Output struct {
	Value     any  `json:"value"`
	Sensitive bool `json:"sensitive,omitempty"`
}
