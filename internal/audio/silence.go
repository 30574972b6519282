package audio

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/assessli/carebot/backend/internal/apperr"
)

// FrameProcessor removes non-speech frames from a waveform.
type FrameProcessor struct {
	vad VoiceActivityDetector
}

// NewFrameProcessor wires a voice-activity capability; nil selects an EnergyDetector.
func NewFrameProcessor(vad VoiceActivityDetector) *FrameProcessor {
	if vad == nil {
		vad = NewEnergyDetector(0)
	}
	return &FrameProcessor{vad: vad}
}

// RemoveSilence splits samples into 30 ms frames, keeps the voiced ones in
// order and drops the trailing partial frame. When no frame is voiced it
// returns a single zero sample so that downstream stages never see an empty
// buffer. samples are float32 in [-1, 1].
func (p *FrameProcessor) RemoveSilence(samples []float32, sampleRate int) ([]float32, error) {
	if sampleRate != RequiredSampleRate {
		return nil, apperr.InvalidInput("sample rate must be %d Hz, got %d", RequiredSampleRate, sampleRate)
	}

	pcm := FloatToPCM16(samples)
	frameBytes := sampleRate * FrameDurationMs / 1000 * 2

	voiced := make([]byte, 0, len(pcm))
	for offset := 0; offset+frameBytes <= len(pcm); offset += frameBytes {
		frame := pcm[offset : offset+frameBytes]
		speech, err := p.vad.IsSpeech(frame, sampleRate)
		if err != nil {
			return nil, fmt.Errorf("voice activity detection failed at byte %d: %w", offset, err)
		}
		if speech {
			voiced = append(voiced, frame...)
		}
	}

	if len(voiced) == 0 {
		return []float32{0}, nil
	}
	return PCM16ToFloat(voiced), nil
}

// MeanAbsAmplitude is the mean of |x| over samples, a rough energy proxy in [0, 1].
func MeanAbsAmplitude(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += math.Abs(float64(s))
	}
	return sum / float64(len(samples))
}

// FloatToPCM16 converts [-1, 1] samples to 16-bit little-endian PCM, clipping out-of-range values.
func FloatToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := float64(s) * 32768
		if v > math.MaxInt16 {
			v = math.MaxInt16
		} else if v < math.MinInt16 {
			v = math.MinInt16
		}
		binary.LittleEndian.PutUint16(out[2*i:], uint16(int16(v)))
	}
	return out
}

// PCM16ToFloat converts 16-bit little-endian PCM to [-1, 1] samples.
func PCM16ToFloat(pcm []byte) []float32 {
	out := make([]float32, len(pcm)/2)
	for i := range out {
		out[i] = float32(int16(binary.LittleEndian.Uint16(pcm[2*i:]))) / 32768
	}
	return out
}
