package media

import (
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"testing"

	"speaker-diarizer/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeWAV(t *testing.T, sampleRate, channels int, write func(w *WAVWriter)) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w, err := NewWAVWriter(f, sampleRate, channels)
	require.NoError(t, err)
	write(w)
	require.NoError(t, w.Finalize())
	return path
}

func pcm(values ...int16) []byte {
	buf := make([]byte, len(values)*2)
	for i, v := range values {
		binary.LittleEndian.PutUint16(buf[2*i:], uint16(v))
	}
	return buf
}

func TestWAVWriteAndReadMono(t *testing.T) {
	path := writeWAV(t, 16000, 1, func(w *WAVWriter) {
		require.NoError(t, w.WriteSamples([]float64{0, 0.5, -0.5, 1, -1.2}))
	})

	r, err := NewWAVReader(path)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, 16000, r.SampleRate)
	assert.Equal(t, 1, r.Channels)
	assert.Equal(t, 16, r.BitsPerSample)
	assert.InDelta(t, 5.0/16000, r.Duration(), 1e-12)

	first, err := r.ReadFrames(3)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0.5, -0.5}, first)

	rest, err := r.ReadFrames(10)
	require.NoError(t, err)
	require.Len(t, rest, 2)
	assert.InDelta(t, 32767.0/32768, rest[0], 1e-12)
	assert.InDelta(t, -32767.0/32768, rest[1], 1e-12, "samples are clipped")

	_, err = r.ReadFrames(10)
	assert.Equal(t, io.EOF, err)
}

func TestWAVReaderDownmixesStereo(t *testing.T) {
	path := writeWAV(t, 8000, 2, func(w *WAVWriter) {
		_, err := w.Write(pcm(16384, 0, -16384, -16384))
		require.NoError(t, err)
	})

	r, err := NewWAVReader(path)
	require.NoError(t, err)
	defer r.Close()

	samples, err := r.ReadFrames(0)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.25, -0.5}, samples)
}

func TestWAVReaderSkipsUnknownChunks(t *testing.T) {
	var file []byte
	file = append(file, "RIFF"...)
	file = binary.LittleEndian.AppendUint32(file, 0)
	file = append(file, "WAVE"...)

	file = append(file, "fmt "...)
	file = binary.LittleEndian.AppendUint32(file, 16)
	file = binary.LittleEndian.AppendUint16(file, 1)
	file = binary.LittleEndian.AppendUint16(file, 1)
	file = binary.LittleEndian.AppendUint32(file, 16000)
	file = binary.LittleEndian.AppendUint32(file, 32000)
	file = binary.LittleEndian.AppendUint16(file, 2)
	file = binary.LittleEndian.AppendUint16(file, 16)

	// odd-sized chunk plus its pad byte
	file = append(file, "LIST"...)
	file = binary.LittleEndian.AppendUint32(file, 3)
	file = append(file, 'a', 'b', 'c', 0)

	file = append(file, "data"...)
	file = binary.LittleEndian.AppendUint32(file, 4)
	file = append(file, pcm(8192, -8192)...)

	path := filepath.Join(t.TempDir(), "list.wav")
	require.NoError(t, os.WriteFile(path, file, 0644))

	r, err := NewWAVReader(path)
	require.NoError(t, err)
	defer r.Close()

	samples, err := r.ReadFrames(16)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.25, -0.25}, samples)
}

func TestWAVReaderRejectsInvalidFiles(t *testing.T) {
	dir := t.TempDir()

	notWAV := filepath.Join(dir, "text.wav")
	require.NoError(t, os.WriteFile(notWAV, []byte("this is not a riff file"), 0644))
	_, err := NewWAVReader(notWAV)
	require.Error(t, err)
	assert.True(t, errors.IsErrorType(err, errors.ErrUnsupportedFormat))

	truncated := filepath.Join(dir, "short.wav")
	require.NoError(t, os.WriteFile(truncated, []byte("RIFF"), 0644))
	_, err = NewWAVReader(truncated)
	require.Error(t, err)
	assert.True(t, errors.IsErrorType(err, errors.ErrInvalidAudio))

	_, err = NewWAVReader(filepath.Join(dir, "missing.wav"))
	assert.Error(t, err)
}

func TestWAVWriterRejectsBadArguments(t *testing.T) {
	_, err := NewWAVWriter(nil, 16000, 1)
	assert.True(t, errors.IsErrorType(err, errors.ErrInvalidInput))

	f, err := os.Create(filepath.Join(t.TempDir(), "x.wav"))
	require.NoError(t, err)
	defer f.Close()

	_, err = NewWAVWriter(f, 0, 1)
	assert.True(t, errors.IsErrorType(err, errors.ErrInvalidInput))

	w, err := NewWAVWriter(f, 16000, 1)
	require.NoError(t, err)
	require.NoError(t, w.Finalize())
	_, err = w.Write([]byte{0, 0})
	assert.Error(t, err)
}
