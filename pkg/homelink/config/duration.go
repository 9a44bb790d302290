package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/sosodev/duration"
	"github.com/zclconf/go-cty/cty"
)

// isProvided reports whether an optional expression was written in the
// file. Absent attributes decode to zero-length expressions.
func isProvided(expr hcl.Expression) bool {
	return expr != nil && expr.Range().End.Byte > expr.Range().Start.Byte
}

// parseDuration evaluates expr as a duration: a number of seconds, an
// ISO 8601 string ("PT5M") or a Go duration string ("1500ms").
func parseDuration(expr hcl.Expression, ctx *hcl.EvalContext) (time.Duration, hcl.Diagnostics) {
	val, diags := expr.Value(ctx)
	if diags.HasErrors() {
		return 0, diags
	}

	invalid := func(detail string) (time.Duration, hcl.Diagnostics) {
		return 0, diags.Append(&hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Invalid duration",
			Detail:   detail,
			Subject:  expr.Range().Ptr(),
		})
	}

	if val.IsNull() || !val.IsKnown() {
		return invalid("Duration must not be null")
	}

	var d time.Duration
	switch val.Type() {
	case cty.Number:
		seconds, _ := val.AsBigFloat().Float64()
		d = time.Duration(seconds * float64(time.Second))

	case cty.String:
		str := strings.TrimSpace(val.AsString())
		if strings.HasPrefix(str, "P") {
			iso, err := duration.Parse(str)
			if err != nil {
				return invalid(fmt.Sprintf("Failed to parse ISO 8601 duration %q: %v", str, err))
			}
			d = iso.ToTimeDuration()
		} else {
			var err error
			d, err = time.ParseDuration(str)
			if err != nil {
				return invalid(fmt.Sprintf("Failed to parse duration %q: %v. Expected a number (seconds), ISO 8601 duration (e.g. \"PT5M\") or Go duration (e.g. \"5m\")", str, err))
			}
		}

	default:
		return invalid(fmt.Sprintf("Duration must be a number (seconds) or string, got %s", val.Type().FriendlyName()))
	}

	if d < 0 {
		return invalid("Duration must be positive")
	}
	return d, diags
}
