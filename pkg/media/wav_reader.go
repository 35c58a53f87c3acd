package media

import (
	"encoding/binary"
	"io"
	"os"

	"speaker-diarizer/pkg/errors"
)

// WAVReader streams 16-bit PCM WAV files as mono float samples.
type WAVReader struct {
	file          *os.File
	SampleRate    int
	Channels      int
	BitsPerSample int

	dataOffset int64
	dataSize   int64
	bytesRead  int64
}

// NewWAVReader opens a WAV file for streaming reads.
func NewWAVReader(path string) (*WAVReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open WAV file", map[string]interface{}{"path": path})
	}

	reader := &WAVReader{
		file: f,
	}

	if err := reader.parseHeader(); err != nil {
		f.Close()
		return nil, errors.Wrap(err, "invalid WAV file", map[string]interface{}{"path": path})
	}
	return reader, nil
}

func (wr *WAVReader) parseHeader() error {
	header := make([]byte, 12)
	if _, err := io.ReadFull(wr.file, header); err != nil {
		return errors.NewInvalidAudio("truncated RIFF header")
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return errors.NewUnsupportedFormat("missing RIFF/WAVE header")
	}

	var fmtFound bool
	var dataFound bool

	for !dataFound {
		chunkHeader := make([]byte, 8)
		if _, err := io.ReadFull(wr.file, chunkHeader); err != nil {
			return errors.NewInvalidAudio("missing fmt or data chunk")
		}
		chunkID := string(chunkHeader[0:4])
		chunkSize := int64(binary.LittleEndian.Uint32(chunkHeader[4:8]))

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return errors.NewInvalidAudio("fmt chunk too short", map[string]interface{}{"size": chunkSize})
			}
			fmtChunk := make([]byte, chunkSize)
			if _, err := io.ReadFull(wr.file, fmtChunk); err != nil {
				return errors.NewInvalidAudio("truncated fmt chunk")
			}
			audioFormat := binary.LittleEndian.Uint16(fmtChunk[0:2])
			if audioFormat != 1 {
				return errors.NewUnsupportedFormat("only PCM WAV files are supported", map[string]interface{}{
					"audio_format": audioFormat,
				})
			}
			wr.Channels = int(binary.LittleEndian.Uint16(fmtChunk[2:4]))
			wr.SampleRate = int(binary.LittleEndian.Uint32(fmtChunk[4:8]))
			wr.BitsPerSample = int(binary.LittleEndian.Uint16(fmtChunk[14:16]))
			if wr.BitsPerSample != 16 {
				return errors.NewUnsupportedFormat("only 16-bit WAV files are supported", map[string]interface{}{
					"bits_per_sample": wr.BitsPerSample,
				})
			}
			if wr.Channels < 1 || wr.SampleRate < 1 {
				return errors.NewInvalidAudio("invalid channel count or sample rate")
			}
			fmtFound = true
		case "data":
			if !fmtFound {
				return errors.NewInvalidAudio("data chunk before fmt chunk")
			}
			wr.dataOffset, _ = wr.file.Seek(0, io.SeekCurrent)
			wr.dataSize = chunkSize
			dataFound = true
		default:
			// RIFF chunks are padded to an even size
			skip := chunkSize + chunkSize%2
			if _, err := wr.file.Seek(skip, io.SeekCurrent); err != nil {
				return err
			}
		}
	}

	return nil
}

// Duration returns the length of the audio in seconds
func (wr *WAVReader) Duration() float64 {
	bytesPerSecond := wr.SampleRate * wr.Channels * wr.BitsPerSample / 8
	if bytesPerSecond == 0 {
		return 0
	}
	return float64(wr.dataSize) / float64(bytesPerSecond)
}

// ReadFrames reads up to maxFrames frames and downmixes them to mono samples
// in [-1, 1). Returns io.EOF when no frames remain.
func (wr *WAVReader) ReadFrames(maxFrames int) ([]float64, error) {
	if wr.file == nil {
		return nil, io.EOF
	}
	if maxFrames <= 0 {
		maxFrames = 1024
	}

	bytesPerFrame := int64(wr.Channels * (wr.BitsPerSample / 8))
	remainingFrames := (wr.dataSize - wr.bytesRead) / bytesPerFrame
	if remainingFrames <= 0 {
		return nil, io.EOF
	}
	if int64(maxFrames) > remainingFrames {
		maxFrames = int(remainingFrames)
	}

	readBuffer := make([]byte, int64(maxFrames)*bytesPerFrame)
	n, err := io.ReadFull(wr.file, readBuffer)
	if err != nil && err != io.ErrUnexpectedEOF {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, errors.Wrap(err, "failed to read WAV data")
	}
	wr.bytesRead += int64(n)

	frameCount := n / int(bytesPerFrame)
	if frameCount == 0 {
		return nil, io.EOF
	}

	samples := make([]float64, frameCount)
	for i := range samples {
		sum := 0.0
		for ch := 0; ch < wr.Channels; ch++ {
			offset := (i*wr.Channels + ch) * 2
			sum += float64(int16(binary.LittleEndian.Uint16(readBuffer[offset:])))
		}
		samples[i] = sum / float64(wr.Channels) / pcm16Scale
	}

	return samples, nil
}

// Close closes the underlying file.
func (wr *WAVReader) Close() error {
	if wr.file == nil {
		return nil
	}
	err := wr.file.Close()
	wr.file = nil
	return err
}
