package component

// Record is an installed component together with the dependency subtree it
// pulled in. Records are treated as values: functions that change a record
// return a modified copy.
type Record struct {
	Name      string   `yaml:"name" json:"name"`
	Version   string   `yaml:"version" json:"version"`
	Manifest  string   `yaml:"manifest" json:"manifest"`
	Source    string   `yaml:"source" json:"source"`
	FilePath  string   `yaml:"filePath" json:"filePath"`
	Protected bool     `yaml:"protected,omitempty" json:"protected,omitempty"`
	Requires  []Record `yaml:"requires,omitempty" json:"requires,omitempty"`
}

// Clone returns a deep copy of r
func (r Record) Clone() Record {
	out := r
	if r.Requires != nil {
		out.Requires = make([]Record, len(r.Requires))
		for i, req := range r.Requires {
			out.Requires[i] = req.Clone()
		}
	}
	return out
}

// WithRequirement returns a copy of r with dep replacing the direct
// requirement of the same name, or appended when there is none.
func (r Record) WithRequirement(dep Record) Record {
	out := r.Clone()
	for i, req := range out.Requires {
		if req.Name == dep.Name {
			out.Requires[i] = dep.Clone()
			return out
		}
	}
	out.Requires = append(out.Requires, dep.Clone())
	return out
}

// Descriptor is the remote manifest published next to a component source
type Descriptor struct {
	Name     string        `json:"name" validate:"required,excludesall=/\\,ne=.,ne=.."`
	Version  string        `json:"version" validate:"required"`
	Source   string        `json:"source" validate:"required"`
	Requires []Requirement `json:"requires,omitempty" validate:"omitempty,dive"`
}

// Requirement is one dependency entry of a descriptor. Name is optional;
// when present it lets the resolver match installed components without
// fetching the requirement's descriptor.
type Requirement struct {
	Manifest string `json:"manifest" validate:"required"`
	Version  string `json:"version" validate:"required"`
	Name     string `json:"name,omitempty"`
}

// Record builds the record for a descriptor fetched from manifestURL
func (d Descriptor) Record(manifestURL string, layout Layout) Record {
	return Record{
		Name:     d.Name,
		Version:  d.Version,
		Manifest: manifestURL,
		Source:   d.Source,
		FilePath: layout.FilePath(d.Name),
	}
}
