package decoder

import "fmt"

// ToS16 converts interleaved little-endian PCM of the given bit depth to
// 16-bit, which is all the output device speaks. 16-bit input is returned
// unchanged.
func ToS16(pcm []byte, bitDepth int) ([]byte, error) {
	switch bitDepth {
	case 16:
		return pcm, nil
	case 24:
		if len(pcm)%3 != 0 {
			return nil, fmt.Errorf("24-bit pcm not sample aligned: %d bytes", len(pcm))
		}
		out := make([]byte, len(pcm)/3*2)
		for i, j := 0, 0; i < len(pcm); i, j = i+3, j+2 {
			// keep the two most significant bytes
			out[j] = pcm[i+1]
			out[j+1] = pcm[i+2]
		}
		return out, nil
	case 32:
		if len(pcm)%4 != 0 {
			return nil, fmt.Errorf("32-bit pcm not sample aligned: %d bytes", len(pcm))
		}
		out := make([]byte, len(pcm)/4*2)
		for i, j := 0, 0; i < len(pcm); i, j = i+4, j+2 {
			out[j] = pcm[i+2]
			out[j+1] = pcm[i+3]
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported bit depth: %d", bitDepth)
	}
}
