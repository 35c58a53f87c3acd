package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"speaker-diarizer/pkg/config"
	"speaker-diarizer/pkg/diarization"
	"speaker-diarizer/pkg/media"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	analyzeBlockSize int
	analyzeJSON      bool
	analyzeSplitDir  string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file.wav>",
	Short: "Diarize a WAV file",
	Long: `Streams a 16-bit PCM WAV file through the diarization engine block by
block and prints the merged speaker segments and per-speaker talk time.

Engine thresholds are read from the DIARIZATION_* environment variables.`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().IntVar(&analyzeBlockSize, "block-size", diarization.AnalysisSize, "Samples per analysis block")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "Print the result as JSON")
	analyzeCmd.Flags().StringVar(&analyzeSplitDir, "split", "", "Write the voiced audio of each speaker to DIR/speaker_N.wav")
	rootCmd.AddCommand(analyzeCmd)
}

// AnalysisResult is the outcome of diarizing one file
type AnalysisResult struct {
	File       string                     `json:"file"`
	SampleRate int                        `json:"sample_rate"`
	Duration   float64                    `json:"duration"`
	Segments   []diarization.Segment      `json:"segments"`
	Speakers   []diarization.SpeakerTotal `json:"speakers"`
	Stats      diarization.Stats          `json:"stats"`
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.WarnLevel)
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	if analyzeBlockSize < 256 {
		return fmt.Errorf("block size must be at least 256 samples, got %d", analyzeBlockSize)
	}

	cfg, err := config.Load(logger)
	if err != nil {
		return err
	}

	result, err := analyzeFile(args[0], cfg.Diarization.Settings(), analyzeBlockSize, analyzeSplitDir)
	if err != nil {
		return err
	}

	if analyzeJSON {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(result)
	}
	printAnalysis(cmd.OutOrStdout(), result)
	return nil
}

func analyzeFile(path string, settings diarization.Settings, blockSize int, splitDir string) (*AnalysisResult, error) {
	reader, err := media.NewWAVReader(path)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	engine := diarization.NewEngine(
		diarization.WithSettings(settings),
		diarization.WithLogger(logger),
		diarization.WithSessionID(filepath.Base(path)),
	)

	var splitter *speakerSplitter
	if splitDir != "" {
		splitter, err = newSpeakerSplitter(splitDir, reader.SampleRate)
		if err != nil {
			return nil, err
		}
	}

	var timeline diarization.Timeline
	var consumed int64
	for {
		block, err := reader.ReadFrames(blockSize)
		if err == io.EOF {
			break
		}
		if err != nil {
			if splitter != nil {
				splitter.Close()
			}
			return nil, err
		}

		timestamp := float64(consumed) / float64(reader.SampleRate)
		engine.ProcessAudioBuffer(block, reader.SampleRate, timestamp)
		assignment := engine.LastAssignment()
		timeline.Add(assignment, float64(len(block))/float64(reader.SampleRate))

		if splitter != nil && assignment.Voiced {
			if err := splitter.Write(assignment.SpeakerID, block); err != nil {
				splitter.Close()
				return nil, err
			}
		}
		consumed += int64(len(block))
	}

	if splitter != nil {
		if err := splitter.Close(); err != nil {
			return nil, err
		}
	}

	timeline.Relabel(engine.Speakers())
	logger.WithFields(logrus.Fields{
		"file":     path,
		"speakers": len(engine.Speakers()),
		"seconds":  reader.Duration(),
	}).Info("Analysis complete")

	return &AnalysisResult{
		File:       path,
		SampleRate: reader.SampleRate,
		Duration:   reader.Duration(),
		Segments:   timeline.Segments(),
		Speakers:   timeline.Totals(),
		Stats:      engine.Stats(),
	}, nil
}

func printAnalysis(out io.Writer, result *AnalysisResult) {
	fmt.Fprintf(out, "%s: %.2fs at %d Hz\n\n", result.File, result.Duration, result.SampleRate)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "START\tEND\tSPEAKER")
	for _, s := range result.Segments {
		fmt.Fprintf(w, "%.2f\t%.2f\t%s\n", s.Start, s.End, s.Label)
	}
	w.Flush()

	fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SPEAKER\tSEGMENTS\tSECONDS")
	for _, total := range result.Speakers {
		fmt.Fprintf(w, "%s\t%d\t%.2f\n", total.Label, total.Segments, total.Seconds)
	}
	w.Flush()
}

// speakerSplitter writes voiced blocks into one WAV file per speaker
type speakerSplitter struct {
	dir        string
	sampleRate int
	files      map[int]*os.File
	writers    map[int]*media.WAVWriter
}

func newSpeakerSplitter(dir string, sampleRate int) (*speakerSplitter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create split directory: %w", err)
	}
	return &speakerSplitter{
		dir:        dir,
		sampleRate: sampleRate,
		files:      make(map[int]*os.File),
		writers:    make(map[int]*media.WAVWriter),
	}, nil
}

func (s *speakerSplitter) Write(speakerID int, samples []float64) error {
	w, ok := s.writers[speakerID]
	if !ok {
		path := filepath.Join(s.dir, fmt.Sprintf("speaker_%d.wav", speakerID+1))
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", path, err)
		}
		w, err = media.NewWAVWriter(f, s.sampleRate, 1)
		if err != nil {
			f.Close()
			return err
		}
		s.files[speakerID] = f
		s.writers[speakerID] = w
	}
	return w.WriteSamples(samples)
}

func (s *speakerSplitter) Close() error {
	var firstErr error
	for id, w := range s.writers {
		if err := w.Finalize(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := s.files[id].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.writers = map[int]*media.WAVWriter{}
	s.files = map[int]*os.File{}
	return firstErr
}
