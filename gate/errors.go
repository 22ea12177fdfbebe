package gate

import (
	"errors"
	"fmt"
)

// GatingError marks conditions that invalidate a gating run entirely:
// missing child population definitions, density estimates with no peaks or
// an undefined threshold, clustering that resolves nothing but noise, or an
// empty control sample. Soft anomalies are reported through Diagnostics
// instead and never carry this type.
type GatingError string

func (e GatingError) Error() string { return string(e) }

// Errorf builds a GatingError from a format string.
func Errorf(format string, args ...any) error {
	return GatingError(fmt.Sprintf(format, args...))
}

// IsGatingError reports whether any error in err's chain is a GatingError.
func IsGatingError(err error) bool {
	var g GatingError
	return errors.As(err, &g)
}
