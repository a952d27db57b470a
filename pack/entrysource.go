package pack

// EntrySource is the injectable "foreach_pack_entry" collaborator: the
// writer consumes one pack's objects through this interface without this
// module needing to own full per-pack index parsing, which is out of
// scope per the purpose statement's external-collaborator list.
type EntrySource interface {
	// ForEachEntry calls cb once per object in the pack, with its hash and
	// byte offset. Iteration halts on cb's first non-nil return, which
	// ForEachEntry returns verbatim.
	ForEachEntry(cb func(hash [20]byte, offset uint64) error) error
}

// OpenEntrySource opens the entry collaborator for the pack at canonical
// path. It is a package variable, following the teacher's own dependency
// injection idiom (concurrent.go's OpenFunc), so callers embedding this
// module against a non-filesystem object store can substitute their own
// implementation. The default understands Git's on-disk ".idx" v2 format.
var OpenEntrySource func(path string) (EntrySource, error) = openGitIdx
