package audio

import (
	"encoding/base64"
	"fmt"
	"math"
)

// The therapy backend speaks LINEAR16: 16-bit signed little-endian PCM.
// Agent audio clips arrive base64-encoded at 48 kHz; the browser microphone
// feeds raw LINEAR16 frames at the configured capture rate.

// SamplesFromLE converts little-endian 16-bit PCM bytes to samples.
func SamplesFromLE(data []byte) ([]int16, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("PCM data length must be even (16-bit samples)")
	}

	samples := make([]int16, len(data)/2)
	for i := 0; i < len(samples); i++ {
		samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return samples, nil
}

// LEFromSamples converts samples back to little-endian 16-bit PCM bytes.
func LEFromSamples(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, sample := range samples {
		data[i*2] = byte(sample)
		data[i*2+1] = byte(sample >> 8)
	}
	return data
}

// DecodeBase64PCM decodes a base64 LINEAR16 payload into samples.
func DecodeBase64PCM(payload string) ([]int16, error) {
	if payload == "" {
		return nil, fmt.Errorf("empty audio payload")
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 audio: %w", err)
	}
	return SamplesFromLE(raw)
}

// Resample performs linear interpolation resampling. Good enough for
// speech; a sinc resampler would be overkill for this pipeline.
func Resample(samples []int16, inputRate, outputRate int) []int16 {
	if inputRate == outputRate || len(samples) == 0 {
		return samples
	}

	ratio := float64(outputRate) / float64(inputRate)
	outputLength := int(float64(len(samples)) * ratio)
	output := make([]int16, outputLength)

	for i := 0; i < outputLength; i++ {
		srcPos := float64(i) / ratio

		idx0 := int(srcPos)
		idx1 := idx0 + 1
		if idx1 >= len(samples) {
			idx1 = len(samples) - 1
		}

		fraction := srcPos - float64(idx0)
		output[i] = int16(float64(samples[idx0])*(1.0-fraction) + float64(samples[idx1])*fraction)
	}

	return output
}

// CalculateRMS calculates the root mean square of audio samples.
// Used for detecting audio levels and silence.
func CalculateRMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0.0
	}

	sum := 0.0
	for _, sample := range samples {
		sum += float64(sample) * float64(sample)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
