package highlight

import (
	"regexp"
	"strings"
)

var ansiCSI = regexp.MustCompile(`\x1b\[[0-?]*[ -/]*[@-~]`)

type Result struct {
	Text      string
	Count     int
	LineIndex []int
}

// ApplyANSI wraps every case-insensitive occurrence of query in input.
// Escape sequences are left untouched and matches never span them.
func ApplyANSI(input, query string, wrap func(string) string) Result {
	query = strings.TrimSpace(query)
	if query == "" {
		return Result{Text: input}
	}
	if wrap == nil {
		wrap = func(s string) string { return s }
	}
	m := matcher{re: regexp.MustCompile("(?i)" + regexp.QuoteMeta(query)), wrap: wrap}

	lines := strings.Split(input, "\n")
	var res Result
	for i, line := range lines {
		out, n := m.line(line)
		lines[i] = out
		if n > 0 {
			res.Count += n
			res.LineIndex = append(res.LineIndex, i)
		}
	}
	res.Text = strings.Join(lines, "\n")
	return res
}

type matcher struct {
	re   *regexp.Regexp
	wrap func(string) string
}

func (m matcher) line(s string) (string, int) {
	var out strings.Builder
	total := 0
	pos := 0
	for _, esc := range ansiCSI.FindAllStringIndex(s, -1) {
		total += m.plain(&out, s[pos:esc[0]])
		out.WriteString(s[esc[0]:esc[1]])
		pos = esc[1]
	}
	total += m.plain(&out, s[pos:])
	return out.String(), total
}

func (m matcher) plain(out *strings.Builder, s string) int {
	if s == "" {
		return 0
	}
	count := 0
	out.WriteString(m.re.ReplaceAllStringFunc(s, func(match string) string {
		count++
		return m.wrap(match)
	}))
	return count
}
