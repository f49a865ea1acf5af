package jettalib

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Size units.
const (
	B  int64 = 1
	KB       = 1024 * B
	MB       = 1024 * KB
	GB       = 1024 * MB
)

// copyBufferSize is the read size of the response pipeline.
const copyBufferSize = 32 * KB

// rateLimitedReader throttles reads to a byte rate. Each read is capped
// at the limiter burst so WaitN never fails on size.
type rateLimitedReader struct {
	ctx     context.Context
	r       io.Reader
	limiter *rate.Limiter
}

func newRateLimitedReader(ctx context.Context, r io.Reader, bytesPerSecond int64) io.Reader {
	if bytesPerSecond <= 0 {
		return r
	}
	burst := int(copyBufferSize)
	if bytesPerSecond < copyBufferSize {
		burst = int(bytesPerSecond)
	}
	lim := rate.NewLimiter(rate.Limit(bytesPerSecond), burst)
	// start empty so the first burst is throttled too
	lim.ReserveN(time.Now(), burst)
	return &rateLimitedReader{ctx: ctx, r: r, limiter: lim}
}

func (r *rateLimitedReader) Read(p []byte) (int, error) {
	if b := r.limiter.Burst(); len(p) > b {
		p = p[:b]
	}
	n, err := r.r.Read(p)
	if n > 0 {
		if werr := r.limiter.WaitN(r.ctx, n); werr != nil && err == nil {
			err = werr
		}
	}
	return n, err
}

// ParseSize parses a human readable byte count such as "512KB", "1.5mb"
// or "100". "0" means unlimited.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size")
	}
	if s == "0" {
		return 0, nil
	}
	s = strings.ToUpper(s)

	numStr, unit := s, ""
	for i, c := range s {
		if (c < '0' || c > '9') && c != '.' && c != '-' {
			numStr, unit = s[:i], strings.TrimSpace(s[i:])
			break
		}
	}
	if numStr == "" {
		return 0, fmt.Errorf("invalid size: no numeric value in %q", s)
	}
	if strings.HasPrefix(numStr, "-") {
		return 0, fmt.Errorf("invalid size: negative value not allowed in %q", s)
	}
	num, err := strconv.ParseFloat(numStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size: %q is not a valid number", numStr)
	}

	var multiplier int64
	switch strings.TrimSuffix(unit, "/S") {
	case "", "B":
		multiplier = B
	case "KB", "K":
		multiplier = KB
	case "MB", "M":
		multiplier = MB
	case "GB", "G":
		multiplier = GB
	default:
		return 0, fmt.Errorf("invalid size unit: %q (use B, KB, MB, or GB)", unit)
	}

	result := int64(num * float64(multiplier))
	if result < 0 {
		return 0, fmt.Errorf("invalid size: result is negative")
	}
	return result, nil
}
