// Package resample converts sample buffers between rates with libsamplerate.
package resample

import (
	"fmt"

	"github.com/dh1tw/gosamplerate"

	"github.com/hiway/moodreel/pkg/sample"
)

// To returns buf converted to rate. A buffer already at rate is returned
// unchanged.
func To(buf *sample.Buffer, rate int) (*sample.Buffer, error) {
	if err := buf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid buffer: %w", err)
	}
	if rate <= 0 {
		return nil, fmt.Errorf("target sample rate must be positive, got %d", rate)
	}
	if buf.SampleRate == rate {
		return buf, nil
	}
	nch := buf.NumChannels()
	ratio := float64(rate) / float64(buf.SampleRate)
	out, err := gosamplerate.Simple(buf.Interleave(), ratio, nch, gosamplerate.SRC_SINC_FASTEST)
	if err != nil {
		return nil, fmt.Errorf("failed to resample %d Hz to %d Hz: %w", buf.SampleRate, rate, err)
	}
	return sample.Deinterleave(out, nch, rate), nil
}
