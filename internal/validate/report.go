package validate

import "fmt"

// Issue codes.
const (
	CodePinnedPrefix    = "V101"
	CodeBijection       = "V102"
	CodeGate            = "V103"
	CodeSketchIDs       = "V104"
	CodeReference       = "V105"
	CodeDanglingRef     = "V106"
	CodeSchema          = "V110"
	CodeDecode          = "V111"
	CodeForwardRef      = "V112"
	CodeDependencyCycle = "V113"
	CodeMalformed       = "V120"
)

// Issue is one finding.
type Issue struct {
	Code    string `json:"code"`
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (i Issue) Error() string {
	if i.Path == "" {
		return fmt.Sprintf("[%s] %s", i.Code, i.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", i.Code, i.Path, i.Message)
}

// Report collects every issue found; checks never stop at the first one.
type Report struct {
	OK       bool    `json:"ok"`
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings,omitempty"`
}

type collector struct {
	errs  []Issue
	warns []Issue
}

func (c *collector) errorf(code, path, format string, args ...any) {
	c.errs = append(c.errs, Issue{Code: code, Path: path, Message: fmt.Sprintf(format, args...)})
}

func (c *collector) warnf(code, path, format string, args ...any) {
	c.warns = append(c.warns, Issue{Code: code, Path: path, Message: fmt.Sprintf(format, args...)})
}

func (c *collector) report() Report {
	errs := c.errs
	if errs == nil {
		errs = []Issue{}
	}
	return Report{OK: len(c.errs) == 0, Errors: errs, Warnings: c.warns}
}

// HasCode reports whether the report holds an error or warning with code.
func (r Report) HasCode(code string) bool {
	for _, list := range [][]Issue{r.Errors, r.Warnings} {
		for _, i := range list {
			if i.Code == code {
				return true
			}
		}
	}
	return false
}
