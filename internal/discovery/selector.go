package discovery

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var plainIdent = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)

// cssPath builds a selector for s that a live DOM resolves to the same
// element: the nearest id-bearing ancestor, then nth-of-type steps.
func cssPath(s *goquery.Selection) string {
	var steps []string
	for n := s; n.Length() > 0; n = n.Parent() {
		name := goquery.NodeName(n)
		if name == "html" || name == "#document" || name == "" {
			break
		}
		if id := n.AttrOr("id", ""); plainIdent.MatchString(id) {
			steps = append(steps, "#"+id)
			break
		}
		if name == "body" {
			steps = append(steps, "body")
			break
		}
		idx := 1
		n.PrevAll().Each(func(_ int, sib *goquery.Selection) {
			if goquery.NodeName(sib) == name {
				idx++
			}
		})
		steps = append(steps, name+":nth-of-type("+strconv.Itoa(idx)+")")
	}
	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}
	return strings.Join(steps, " > ")
}
