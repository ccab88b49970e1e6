// Package pathguard resolves user-supplied relative paths against a sandbox
// root. Every filesystem-touching component goes through Resolve; no caller
// builds an on-disk path by string concatenation.
package pathguard

import (
	"path"
	"path/filepath"
	"strings"

	"cabinet/types"
)

// SandboxPath is an absolute path verified to live inside a sandbox root,
// together with its slash-separated sandbox-relative form ("" means the root
// itself). Only Resolve constructs values of this type.
type SandboxPath struct {
	Abs string
	Rel string
}

// reserved device names on Windows-style filesystems; rejected in any
// segment so a sandbox on a network mount cannot be tricked into opening one.
var reservedNames = map[string]struct{}{
	"con": {}, "prn": {}, "aux": {}, "nul": {},
	"com1": {}, "com2": {}, "com3": {}, "com4": {}, "com5": {},
	"com6": {}, "com7": {}, "com8": {}, "com9": {},
	"lpt1": {}, "lpt2": {}, "lpt3": {}, "lpt4": {}, "lpt5": {},
	"lpt6": {}, "lpt7": {}, "lpt8": {}, "lpt9": {},
}

// CleanRel normalizes a user path like "", ".", "/a/b", "a//b", "a\b" into a
// slash-based relative path with no leading slash ("" means the sandbox root).
func CleanRel(p string) string {
	p = strings.TrimSpace(p)
	if p == "" || p == "." || p == "/" {
		return ""
	}
	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean("/" + p) // force absolute for stable cleaning
	p = strings.TrimPrefix(p, "/")
	if p == "." {
		return ""
	}
	return p
}

// Resolve maps a user-supplied relative path to an absolute path under
// baseDir. It fails closed: any input that would resolve at or outside the
// sandbox boundary, or that contains a hostile segment, returns
// types.ErrPathTraversal and no filesystem call is made.
func Resolve(baseDir, rel string) (SandboxPath, error) {
	if strings.ContainsRune(rel, 0) {
		return SandboxPath{}, types.ErrPathTraversal
	}
	for _, r := range rel {
		if r < 0x20 || r == 0x7f {
			return SandboxPath{}, types.ErrPathTraversal
		}
	}

	cleaned := CleanRel(rel)
	if cleaned != "" {
		for _, seg := range strings.Split(cleaned, "/") {
			if err := checkSegment(seg); err != nil {
				return SandboxPath{}, err
			}
		}
	}

	rootClean := filepath.Clean(baseDir)
	abs := filepath.Join(rootClean, filepath.FromSlash(cleaned))
	abs = filepath.Clean(abs)

	// Belt and braces: even after segment checks, verify the computed path
	// still sits under the root.
	relBack, err := filepath.Rel(rootClean, abs)
	if err != nil {
		return SandboxPath{}, types.ErrPathTraversal
	}
	relBack = filepath.ToSlash(relBack)
	if relBack == ".." || strings.HasPrefix(relBack, "../") || filepath.IsAbs(relBack) {
		return SandboxPath{}, types.ErrPathTraversal
	}
	if relBack == "." {
		relBack = ""
	}

	return SandboxPath{Abs: abs, Rel: relBack}, nil
}

func checkSegment(seg string) error {
	if seg == "" || seg == "." || seg == ".." {
		return types.ErrPathTraversal
	}
	// CleanRel already splits on both separator styles; a separator surviving
	// inside a segment means an encoding trick got this far.
	if strings.ContainsAny(seg, `/\`) {
		return types.ErrPathTraversal
	}
	if strings.HasSuffix(seg, ".") || strings.HasSuffix(seg, " ") {
		return types.ErrPathTraversal
	}
	base := strings.ToLower(seg)
	if i := strings.IndexByte(base, '.'); i >= 0 {
		base = base[:i]
	}
	if _, bad := reservedNames[base]; bad {
		return types.ErrPathTraversal
	}
	return nil
}

// Parent returns the sandbox-relative parent of rel ("" for top-level items).
func Parent(rel string) string {
	rel = CleanRel(rel)
	dir := path.Dir(rel)
	if dir == "." || dir == "/" {
		return ""
	}
	return dir
}
