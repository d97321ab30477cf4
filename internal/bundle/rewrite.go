package bundle

// Rewrite mutates the single attribute identified by the ref's target
// handle, replacing the remote URL with the local archive filename.
// Safe under concurrent completions because every ref targets a
// distinct node/attribute pair fixed during discovery.
func Rewrite(ref ResourceRef, localName string) {
	ref.Target.SetAttr(ref.Attribute, localName)
}
