package component

// Forest is the ordered list of top-level records, each carrying its
// requirement subtree.
type Forest []Record

// Clone returns a deep copy of f
func (f Forest) Clone() Forest {
	if f == nil {
		return nil
	}
	out := make(Forest, len(f))
	for i, r := range f {
		out[i] = r.Clone()
	}
	return out
}

// Walk visits every record depth-first, parents before their requirements.
// Returning false from fn stops the walk.
func (f Forest) Walk(fn func(r Record, depth int) bool) {
	var visit func(rs []Record, depth int) bool
	visit = func(rs []Record, depth int) bool {
		for _, r := range rs {
			if !fn(r, depth) {
				return false
			}
			if !visit(r.Requires, depth+1) {
				return false
			}
		}
		return true
	}
	visit(f, 0)
}

// Find returns the first record with the given name at any depth
func (f Forest) Find(name string) (Record, bool) {
	return f.find(func(r Record) bool { return r.Name == name })
}

// FindByManifest returns the first record installed from manifestURL
func (f Forest) FindByManifest(manifestURL string) (Record, bool) {
	return f.find(func(r Record) bool { return r.Manifest == manifestURL })
}

func (f Forest) find(match func(Record) bool) (Record, bool) {
	var found Record
	ok := false
	f.Walk(func(r Record, _ int) bool {
		if match(r) {
			found, ok = r, true
			return false
		}
		return true
	})
	return found, ok
}

// Top returns the top-level record with the given name
func (f Forest) Top(name string) (Record, bool) {
	for _, r := range f {
		if r.Name == name {
			return r, true
		}
	}
	return Record{}, false
}

// Upsert returns a new forest with r replacing the top-level record of the
// same name, or appended when the name is new.
func (f Forest) Upsert(r Record) Forest {
	out := f.Clone()
	for i, existing := range out {
		if existing.Name == r.Name {
			out[i] = r.Clone()
			return out
		}
	}
	return append(out, r.Clone())
}

// Without returns a new forest without the top-level record name.
// Nested copies of the same component are left alone.
func (f Forest) Without(name string) Forest {
	out := make(Forest, 0, len(f))
	for _, r := range f {
		if r.Name != name {
			out = append(out, r.Clone())
		}
	}
	return out
}

// Names returns the names of the top-level records
func (f Forest) Names() []string {
	names := make([]string, len(f))
	for i, r := range f {
		names[i] = r.Name
	}
	return names
}

// FilePaths returns the set of file paths referenced anywhere in the forest
func (f Forest) FilePaths() map[string]bool {
	paths := make(map[string]bool)
	f.Walk(func(r Record, _ int) bool {
		if r.FilePath != "" {
			paths[r.FilePath] = true
		}
		return true
	})
	return paths
}
