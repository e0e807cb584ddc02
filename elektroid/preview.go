package elektroid

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// PlayPreview plays pcm (mono, signed 16-bit little-endian samples) at
// sampleRate through the default output device and blocks until playback
// finishes. This is deliberately the entire audio surface this package
// offers: no mixing, no transport controls, no format conversion beyond
// what WAV sample data already is — a full audio engine is explicitly out
// of scope, this exists only so a caller can audition a downloaded sample
// without shelling out to another program.
func PlayPreview(pcm []int16, sampleRate float64) error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("%w: initializing audio: %v", ErrIO, err)
	}
	defer portaudio.Terminate()

	const framesPerBuffer = 1024
	pos := 0
	cb := func(out []int16) {
		n := copy(out, pcm[pos:])
		for i := n; i < len(out); i++ {
			out[i] = 0
		}
		pos += n
	}

	stream, err := portaudio.OpenDefaultStream(0, 1, sampleRate, framesPerBuffer, cb)
	if err != nil {
		return fmt.Errorf("%w: opening audio stream: %v", ErrIO, err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("%w: starting audio stream: %v", ErrIO, err)
	}
	defer stream.Stop()

	for pos < len(pcm) {
		portaudio.Sleep(10)
	}
	return nil
}
