package provider

// Properties is an ordered string map used as a ticket property bag.
// Iteration follows insertion order so property echoing into token responses
// is deterministic. Updating an existing key keeps its original position.
//
// Anything placed here becomes a public field of the token response, so only
// non-secret data belongs in it.
type Properties struct {
	keys   []string
	values map[string]string
}

// NewProperties creates an empty property bag.
func NewProperties() *Properties {
	return &Properties{
		values: make(map[string]string),
	}
}

// Set stores a key/value pair, preserving insertion order for new keys.
func (p *Properties) Set(key, value string) {
	if _, exists := p.values[key]; !exists {
		p.keys = append(p.keys, key)
	}
	p.values[key] = value
}

// Get returns the value for a key.
func (p *Properties) Get(key string) (string, bool) {
	value, ok := p.values[key]
	return value, ok
}

// Len returns the number of stored properties.
func (p *Properties) Len() int {
	return len(p.keys)
}

// Each calls fn for every key/value pair in insertion order.
func (p *Properties) Each(fn func(key, value string)) {
	for _, key := range p.keys {
		fn(key, p.values[key])
	}
}
