package domain

// TreeTarget is a named local source tree a series can be applied to.
// Branch is optional; when empty the tree's current branch is used.
type TreeTarget struct {
	Name   string
	Path   string
	Branch string
}
