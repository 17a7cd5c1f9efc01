package component

import (
	"path"
	"strings"
)

// DefaultExtension is the file extension given to component sources
const DefaultExtension = ".jsx"

// Layout maps component names to locations inside the content store
type Layout struct {
	Dir          string // components folder, relative to the store root
	ManifestName string // manifest document file name inside Dir
	IndexName    string // generated index file name inside Dir
	Extension    string // extension appended to component names
}

// DefaultLayout is the layout used when nothing is configured
func DefaultLayout() Layout {
	return Layout{
		Dir:          "components",
		ManifestName: "manifest.md",
		IndexName:    "index.js",
		Extension:    DefaultExtension,
	}
}

// FilePath derives the source location of a component from its name
func (l Layout) FilePath(name string) string {
	return path.Join(l.Dir, name+l.ext())
}

// ManifestPath is the location of the manifest document
func (l Layout) ManifestPath() string {
	return path.Join(l.Dir, l.ManifestName)
}

// IndexPath is the location of the generated index
func (l Layout) IndexPath() string {
	return path.Join(l.Dir, l.IndexName)
}

// SourceGlob matches every component source file in the components folder
func (l Layout) SourceGlob() string {
	return path.Join(l.Dir, "**", "*"+l.ext())
}

// NameFromPath reverses FilePath for files directly inside Dir
func (l Layout) NameFromPath(p string) string {
	return strings.TrimSuffix(path.Base(p), l.ext())
}

func (l Layout) ext() string {
	if l.Extension == "" {
		return DefaultExtension
	}
	if !strings.HasPrefix(l.Extension, ".") {
		return "." + l.Extension
	}
	return l.Extension
}
