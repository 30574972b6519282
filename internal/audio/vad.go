// Package audio holds the waveform preprocessing stage: voice-activity
// segmentation, silence removal and WAV conversion.
package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// RequiredSampleRate is the only rate the voice-activity stage accepts.
const RequiredSampleRate = 16000

// FrameDurationMs is the frame length used when segmenting a waveform.
const FrameDurationMs = 30

// VoiceActivityDetector decides whether a single frame of 16-bit little-endian
// mono PCM contains speech.
type VoiceActivityDetector interface {
	IsSpeech(frame []byte, sampleRate int) (bool, error)
}

// DefaultEnergyThreshold is the RMS level (in int16 units) above which a frame
// counts as speech, roughly -36 dBFS.
const DefaultEnergyThreshold = 500.0

// EnergyDetector 基于帧能量（RMS）的语音活动检测。
type EnergyDetector struct {
	Threshold float64
}

// NewEnergyDetector returns a detector; threshold <= 0 selects DefaultEnergyThreshold.
func NewEnergyDetector(threshold float64) *EnergyDetector {
	if threshold <= 0 {
		threshold = DefaultEnergyThreshold
	}
	return &EnergyDetector{Threshold: threshold}
}

// IsSpeech accepts 10, 20 or 30 ms frames at 16 kHz.
func (d *EnergyDetector) IsSpeech(frame []byte, sampleRate int) (bool, error) {
	if sampleRate != RequiredSampleRate {
		return false, fmt.Errorf("unsupported sample rate %d", sampleRate)
	}
	samples := len(frame) / 2
	if len(frame)%2 != 0 || !validFrameLength(samples, sampleRate) {
		return false, fmt.Errorf("invalid frame length %d bytes", len(frame))
	}

	var sumSquares float64
	for i := 0; i < samples; i++ {
		v := float64(int16(binary.LittleEndian.Uint16(frame[2*i:])))
		sumSquares += v * v
	}
	rms := math.Sqrt(sumSquares / float64(samples))
	return rms >= d.Threshold, nil
}

func validFrameLength(samples, sampleRate int) bool {
	for _, ms := range []int{10, 20, 30} {
		if samples == sampleRate*ms/1000 {
			return true
		}
	}
	return false
}
