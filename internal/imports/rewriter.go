package imports

import "bytes"

// LookupFunc maps a source-level import specifier to the reference that
// should replace it in compiled output (a cache filename plus version
// token, e.g. "./a_b.ts.mjs?v=3"). ok=false leaves the specifier alone.
type LookupFunc func(spec string) (string, bool)

// Rewrite replaces every project import specifier in transpiled code with
// its cache reference. Specifiers the lookup does not know (ecosystem
// packages) are left untouched.
//
// The operation is idempotent by construction: a rewritten specifier no
// longer matches any source-level specifier in the lookup, so running
// Rewrite again returns byte-identical output. Callers still guard with
// the record's importsTransformed flag to avoid the wasted scan.
func Rewrite(code []byte, lookup LookupFunc) []byte {
	refs := Scan(code)
	if len(refs) == 0 {
		return code
	}

	var buf bytes.Buffer
	buf.Grow(len(code) + 64)
	last := 0
	for _, ref := range refs {
		replacement, ok := lookup(ref.Specifier)
		if !ok {
			continue
		}
		buf.Write(code[last:ref.Start])
		buf.WriteString(replacement)
		last = ref.End
	}
	if last == 0 {
		return code
	}
	buf.Write(code[last:])
	return buf.Bytes()
}
