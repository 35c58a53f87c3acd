package media

import (
	"encoding/binary"
	"io"
	"math"
	"os"
	"sync"

	"speaker-diarizer/pkg/errors"
)

const wavHeaderSize = 44

// WAVWriter writes mono or multi-channel 16-bit PCM into a WAV container.
type WAVWriter struct {
	file         *os.File
	sampleRate   int
	channels     int
	bytesWritten uint32
	finalized    bool
	mu           sync.Mutex
}

// NewWAVWriter creates a WAV writer and writes an initial header.
func NewWAVWriter(file *os.File, sampleRate, channels int) (*WAVWriter, error) {
	if file == nil {
		return nil, errors.NewInvalidInput("nil file provided for WAV writer")
	}
	if sampleRate <= 0 {
		return nil, errors.NewInvalidInput("sample rate must be positive", map[string]interface{}{
			"sample_rate": sampleRate,
		})
	}
	if channels <= 0 {
		channels = 1
	}

	writer := &WAVWriter{
		file:       file,
		sampleRate: sampleRate,
		channels:   channels,
	}

	if err := writer.writeHeader(); err != nil {
		return nil, err
	}
	return writer, nil
}

// Write appends raw little-endian PCM16 bytes.
func (w *WAVWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.finalized {
		return 0, errors.New("write after finalize")
	}

	n, err := w.file.Write(p)
	w.bytesWritten += uint32(n)
	return n, err
}

// WriteSamples clips samples to [-1, 1] and appends them as PCM16.
func (w *WAVWriter) WriteSamples(samples []float64) error {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		s = math.Max(-1, math.Min(1, s))
		v := int16(math.Round(s * 32767))
		binary.LittleEndian.PutUint16(buf[2*i:], uint16(v))
	}
	_, err := w.Write(buf)
	return err
}

// Finalize updates the WAV header with the final data sizes.
func (w *WAVWriter) Finalize() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.finalized {
		return nil
	}
	if err := w.updateSizesLocked(); err != nil {
		return err
	}

	w.finalized = true
	return nil
}

func (w *WAVWriter) writeHeader() error {
	header := make([]byte, wavHeaderSize)

	copy(header[0:], "RIFF")
	binary.LittleEndian.PutUint32(header[4:], 36)
	copy(header[8:], "WAVE")
	copy(header[12:], "fmt ")
	binary.LittleEndian.PutUint32(header[16:], 16)
	binary.LittleEndian.PutUint16(header[20:], 1)
	binary.LittleEndian.PutUint16(header[22:], uint16(w.channels))
	binary.LittleEndian.PutUint32(header[24:], uint32(w.sampleRate))
	binary.LittleEndian.PutUint32(header[28:], uint32(w.sampleRate*w.channels*2))
	binary.LittleEndian.PutUint16(header[32:], uint16(w.channels*2))
	binary.LittleEndian.PutUint16(header[34:], 16)
	copy(header[36:], "data")

	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	_, err := w.file.Write(header)
	return err
}

func (w *WAVWriter) updateSizesLocked() error {
	if _, err := w.file.Seek(4, io.SeekStart); err != nil {
		return err
	}
	if err := binary.Write(w.file, binary.LittleEndian, w.bytesWritten+36); err != nil {
		return err
	}
	if _, err := w.file.Seek(40, io.SeekStart); err != nil {
		return err
	}
	if err := binary.Write(w.file, binary.LittleEndian, w.bytesWritten); err != nil {
		return err
	}
	_, err := w.file.Seek(0, io.SeekEnd)
	return err
}
