package elektroid

import (
	"fmt"
	"time"

	"github.com/lestrrat-go/strftime"
)

// TimestampedName formats pattern (a strftime pattern, e.g.
// "%Y%m%d-%H%M%S-backup.syx") against now, for naming OS-upgrade backups
// and downloaded-sample files that must not collide across repeated runs.
// Grounded on the teacher's strftime.Format(pattern, time.Now()) call
// sites in xmit.go/kissutil.go.
func TimestampedName(pattern string, now time.Time) (string, error) {
	f, err := strftime.New(pattern)
	if err != nil {
		return "", fmt.Errorf("%w: invalid timestamp pattern %q: %v", ErrInvalidArg, pattern, err)
	}
	return f.FormatString(now), nil
}
