package host

// Execution points are symbolic tags identifying where in the host request
// lifecycle stored snippets replay. The hourly tick and the comment filter are
// reserved extension points; nothing is bound to them yet.
const (
	PointInit          = "init"
	PointHead          = "head"
	PointFooter        = "footer"
	PointPreRender     = "pre_render"
	PointHourly        = "hourly"
	PointCommentFilter = "comment_filter"
	PointMailSetup     = "mail_setup"
)

// KnownPoint reports whether p is a recognized execution point.
func KnownPoint(p string) bool {
	switch p {
	case PointInit, PointHead, PointFooter, PointPreRender, PointHourly, PointCommentFilter, PointMailSetup:
		return true
	}
	return false
}
