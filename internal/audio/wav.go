package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

var (
	ErrUnsupportedWAV = errors.New("unsupported wav format")
	ErrInvalidWAV     = errors.New("invalid wav file")
)

const (
	formatPCM   = 1
	formatFloat = 3
)

// Clip holds the decoded header and raw sample data of a WAV file.
type Clip struct {
	Format        uint16
	Channels      int
	SampleRate    int
	BitsPerSample int
	Data          []byte
}

// Info summarizes a WAV file for logging and status reporting.
type Info struct {
	Channels   int
	SampleRate int
	Duration   float64
	Frames     int64
	RMSdBFS    float64
	PeakdBFS   float64
}

// Load reads and validates a WAV file.
func Load(path string) (*Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	return Decode(f)
}

// Decode parses a RIFF/WAVE stream. Unknown chunks are skipped.
func Decode(r io.Reader) (*Clip, error) {
	header := make([]byte, 12)
	if _, err := io.ReadFull(r, header); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
		}
		return nil, fmt.Errorf("read wav header: %w", err)
	}
	if string(header[:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return nil, ErrInvalidWAV
	}

	clip := &Clip{}
	var hasFmt, hasData bool

	for !hasData {
		chunkHeader := make([]byte, 8)
		if _, err := io.ReadFull(r, chunkHeader); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return nil, fmt.Errorf("read wav chunk header: %w", err)
		}

		id := string(chunkHeader[:4])
		size := int64(binary.LittleEndian.Uint32(chunkHeader[4:8]))
		padded := size + size%2

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, ErrInvalidWAV
			}
			buf := make([]byte, padded)
			if _, err := io.ReadFull(r, buf); err != nil {
				return nil, fmt.Errorf("read wav fmt chunk: %w", err)
			}
			clip.Format = binary.LittleEndian.Uint16(buf[0:2])
			clip.Channels = int(binary.LittleEndian.Uint16(buf[2:4]))
			clip.SampleRate = int(binary.LittleEndian.Uint32(buf[4:8]))
			clip.BitsPerSample = int(binary.LittleEndian.Uint16(buf[14:16]))
			hasFmt = true
		case "data":
			data := make([]byte, size)
			n, err := io.ReadFull(r, data)
			if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, fmt.Errorf("read wav data: %w", err)
			}
			// Recorders that were interrupted leave a data size larger than the payload.
			clip.Data = data[:n]
			hasData = true
		default:
			if _, err := io.CopyN(io.Discard, r, padded); err != nil {
				return nil, fmt.Errorf("skip wav chunk %s: %w", id, err)
			}
		}
	}

	if !hasFmt || !hasData {
		return nil, ErrInvalidWAV
	}
	if err := validateFormat(clip.Format, clip.BitsPerSample); err != nil {
		return nil, err
	}
	if clip.Channels <= 0 || clip.SampleRate <= 0 {
		return nil, ErrInvalidWAV
	}

	return clip, nil
}

// Frames is the number of sample frames across all channels.
func (c *Clip) Frames() int64 {
	frameSize := c.Channels * c.BitsPerSample / 8
	if frameSize <= 0 {
		return 0
	}
	return int64(len(c.Data) / frameSize)
}

// Duration is the playback length in seconds.
func (c *Clip) Duration() float64 {
	return float64(c.Frames()) / float64(c.SampleRate)
}

// Mono decodes the clip into float32 samples in [-1, 1], averaging channels.
func (c *Clip) Mono() ([]float32, error) {
	bytesPerSample := c.BitsPerSample / 8
	frames := c.Frames()
	out := make([]float32, frames)

	for i := int64(0); i < frames; i++ {
		var sum float64
		for ch := 0; ch < c.Channels; ch++ {
			off := (int(i)*c.Channels + ch) * bytesPerSample
			value, err := decodeSample(c.Data[off:off+bytesPerSample], c.Format, c.BitsPerSample)
			if err != nil {
				return nil, err
			}
			sum += value
		}
		out[i] = float32(sum / float64(c.Channels))
	}

	return out, nil
}

// Probe loads path and measures its duration and levels.
func Probe(path string) (Info, error) {
	clip, err := Load(path)
	if err != nil {
		return Info{}, err
	}

	peak, rms, err := levels(clip)
	if err != nil {
		return Info{}, err
	}

	return Info{
		Channels:   clip.Channels,
		SampleRate: clip.SampleRate,
		Duration:   clip.Duration(),
		Frames:     clip.Frames(),
		RMSdBFS:    amplitudeToDBFS(rms),
		PeakdBFS:   amplitudeToDBFS(peak),
	}, nil
}

// IsSilent reports whether the measured levels stay under thresholdDBFS. The
// peak may exceed the threshold by 6 dB to tolerate clicks.
func (i Info) IsSilent(thresholdDBFS float64) bool {
	if i.Frames == 0 {
		return true
	}
	if math.IsInf(i.RMSdBFS, -1) && math.IsInf(i.PeakdBFS, -1) {
		return true
	}
	return i.RMSdBFS <= thresholdDBFS && i.PeakdBFS <= thresholdDBFS+6
}

func levels(c *Clip) (float64, float64, error) {
	bytesPerSample := c.BitsPerSample / 8
	if bytesPerSample <= 0 {
		return 0, 0, ErrUnsupportedWAV
	}

	var peak, sumSquares float64
	var samples int64
	for i := 0; i+bytesPerSample <= len(c.Data); i += bytesPerSample {
		value, err := decodeSample(c.Data[i:i+bytesPerSample], c.Format, c.BitsPerSample)
		if err != nil {
			return 0, 0, err
		}
		peak = math.Max(peak, math.Abs(value))
		sumSquares += value * value
		samples++
	}

	if samples == 0 {
		return 0, 0, nil
	}
	return peak, math.Sqrt(sumSquares / float64(samples)), nil
}

func validateFormat(format uint16, bits int) error {
	switch format {
	case formatPCM:
		switch bits {
		case 8, 16, 24, 32:
			return nil
		}
	case formatFloat:
		switch bits {
		case 32, 64:
			return nil
		}
	}
	return ErrUnsupportedWAV
}

func decodeSample(sample []byte, format uint16, bits int) (float64, error) {
	if format == formatFloat {
		switch bits {
		case 32:
			return float64(math.Float32frombits(binary.LittleEndian.Uint32(sample))), nil
		case 64:
			return math.Float64frombits(binary.LittleEndian.Uint64(sample)), nil
		}
		return 0, ErrUnsupportedWAV
	}

	switch bits {
	case 8:
		return (float64(sample[0]) - 128.0) / 128.0, nil
	case 16:
		return float64(int16(binary.LittleEndian.Uint16(sample))) / 32768.0, nil
	case 24:
		v := int32(sample[0]) | int32(sample[1])<<8 | int32(sample[2])<<16
		if v&0x800000 != 0 {
			v |= ^0xFFFFFF
		}
		return float64(v) / 8388608.0, nil
	case 32:
		return float64(int32(binary.LittleEndian.Uint32(sample))) / 2147483648.0, nil
	}
	return 0, ErrUnsupportedWAV
}

func amplitudeToDBFS(amplitude float64) float64 {
	if amplitude <= 0 {
		return math.Inf(-1)
	}
	return 20.0 * math.Log10(amplitude)
}
